package catalog

import (
	"testing"

	"SquizFM/model"
)

func track(name string, artists []string, preview string) *model.CatalogTrack {
	as := make([]model.CatalogArtist, len(artists))
	for i, a := range artists {
		as[i] = model.CatalogArtist{ID: a, Name: a}
	}
	return &model.CatalogTrack{
		ID:         "t-" + name,
		Name:       name,
		Artists:    as,
		PreviewURL: preview,
	}
}

func TestEligible(t *testing.T) {
	cases := []struct {
		name  string
		track *model.CatalogTrack
		want  bool
	}{
		{"ok", track("Hey Jude", []string{"The Beatles"}, "https://p/x.mp3"), true},
		{"nil", nil, false},
		{"no preview", track("Hey Jude", []string{"The Beatles"}, ""), false},
		{"long name", track("A Very Long Song Title That Overflows", []string{"X"}, "https://p/x.mp3"), false},
		{"long artists", track("Short", []string{"First Artist", "Second Artist"}, "https://p/x.mp3"), false},
		{"boundary name", track("123456789012345678901234", []string{"X"}, "https://p/x.mp3"), false},
		{"under boundary", track("12345678901234567890123", []string{"X"}, "https://p/x.mp3"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Eligible(c.track); got != c.want {
				t.Errorf("Eligible = %v, want %v", got, c.want)
			}
		})
	}
}

func TestDecoyEligible(t *testing.T) {
	cases := []struct {
		name  string
		track *model.CatalogTrack
		want  bool
	}{
		{"no preview still fine", track("Hey Jude", []string{"The Beatles"}, ""), true},
		{"nil", nil, false},
		{"long name", track("A Very Long Song Title That Overflows", []string{"X"}, ""), false},
		{"long artists", track("Short", []string{"First Artist", "Second Artist"}, ""), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DecoyEligible(c.track); got != c.want {
				t.Errorf("DecoyEligible = %v, want %v", got, c.want)
			}
		})
	}
}

func TestNextPath(t *testing.T) {
	base := "https://api.example.com/v1"
	if got := nextPath("", base); got != "" {
		t.Errorf("empty next should stay empty, got %q", got)
	}
	if got := nextPath(base+"/playlists/p1/tracks?offset=100", base); got != "/playlists/p1/tracks?offset=100" {
		t.Errorf("nextPath = %q", got)
	}
	if got := nextPath("https://evil.example.com/x", base); got != "" {
		t.Errorf("foreign next should be dropped, got %q", got)
	}
}
