package store

import (
	"context"
	"testing"
	"time"
)

func TestParentPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"games/g1", "games"},
		{"games-players/g1/p1", "games-players/g1"},
		{"games", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ParentPath(c.path); got != c.want {
			t.Errorf("ParentPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestPathMatches(t *testing.T) {
	cases := []struct {
		prefix string
		path   string
		want   bool
	}{
		{"games/g1", "games/g1", true},
		{"games/g1", "games/g1/x", true},
		{"games/g1", "games/g10", false},
		{"games", "rounds/r1", false},
	}
	for _, c := range cases {
		if got := PathMatches(c.prefix, c.path); got != c.want {
			t.Errorf("PathMatches(%q, %q) = %v, want %v", c.prefix, c.path, got, c.want)
		}
	}
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type doc struct {
		Name string `json:"name"`
	}
	if err := s.Set(ctx, "games/g1", doc{Name: "alpha"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got doc
	found, err := s.Get(ctx, "games/g1", &got)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Name != "alpha" {
		t.Errorf("got name %q, want alpha", got.Name)
	}

	found, err = s.Get(ctx, "games/missing", &got)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if found {
		t.Error("expected missing document")
	}
}

func TestMemoryStoreUpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "games/g1", map[string]interface{}{"a": 1, "b": 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Update(ctx, "games/g1", map[string]interface{}{"b": 3, "a": nil}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got map[string]interface{}
	if _, err := s.Get(ctx, "games/g1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got["a"]; ok {
		t.Error("field a should be removed")
	}
	if got["b"].(float64) != 3 {
		t.Errorf("field b = %v, want 3", got["b"])
	}
}

func TestMemoryStoreChildrenOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Set(ctx, "rounds/"+id, map[string]interface{}{"id": id}); err != nil {
			t.Fatalf("Set %s: %v", id, err)
		}
	}
	// 覆盖写不改变集合顺序
	if err := s.Set(ctx, "rounds/c", map[string]interface{}{"id": "c", "v": 2}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	docs, err := s.Children(ctx, "rounds")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(docs) != len(want) {
		t.Fatalf("got %d docs, want %d", len(docs), len(want))
	}
	for i, w := range want {
		if docs[i].ID != w {
			t.Errorf("docs[%d].ID = %q, want %q", i, docs[i].ID, w)
		}
	}

	last, err := s.LastN(ctx, "rounds", 2)
	if err != nil {
		t.Fatalf("LastN: %v", err)
	}
	if len(last) != 2 || last[0].ID != "a" || last[1].ID != "b" {
		t.Errorf("LastN(2) = %v", last)
	}
}

func TestMemoryStoreChildrenOnlyDirect(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "games-rounds/g1/r1", map[string]interface{}{"id": "r1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "games-rounds/g1/r1/nested", map[string]interface{}{}); err != nil {
		t.Fatalf("Set nested: %v", err)
	}

	docs, err := s.Children(ctx, "games-rounds/g1")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "r1" {
		t.Errorf("Children = %v, want only r1", docs)
	}
}

func TestMemoryStoreRemoveChildren(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if err := s.Set(ctx, "tracks-players/t1/"+id, map[string]interface{}{"id": id}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := s.RemoveChildren(ctx, "tracks-players/t1"); err != nil {
		t.Fatalf("RemoveChildren: %v", err)
	}
	docs, err := s.Children(ctx, "tracks-players/t1")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty collection, got %v", docs)
	}
}

func TestMemoryStoreSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var events []Event
	unsub := s.Subscribe("games/g1", func(e Event) { events = append(events, e) })

	if err := s.Set(ctx, "games/g1", map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "games/g2", map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(events) != 1 || events[0].Path != "games/g1" || events[0].Kind != EventSet {
		t.Fatalf("events = %v", events)
	}

	unsub()
	if err := s.Remove(ctx, "games/g1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected no events after unsubscribe, got %d", len(events))
	}
}

func TestMemoryStoreMonotonicNow(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.UnixMilli(1000)
	s.NowFunc = func() time.Time { return fixed }
	ctx := context.Background()

	a, _ := s.Now(ctx)
	b, _ := s.Now(ctx)
	if b <= a {
		t.Errorf("timestamps not monotonic: %d then %d", a, b)
	}
}
