package game

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"SquizFM/model"
)

func makePool(n int) []model.CatalogTrack {
	pool := make([]model.CatalogTrack, n)
	for i := 0; i < n; i++ {
		pool[i] = model.CatalogTrack{
			ID:         fmt.Sprintf("t%d", i),
			Name:       fmt.Sprintf("Song %d", i),
			Popularity: 100 - i,
			Artists:    []model.CatalogArtist{{ID: "a", Name: "Artist"}},
			PreviewURL: "https://p/x.mp3",
		}
	}
	return pool
}

func TestPickWeightedTrackSkipsUsed(t *testing.T) {
	s := NewSelector(1)
	pool := makePool(3)
	used := map[string]bool{"t0": true, "t2": true}

	for i := 0; i < 20; i++ {
		got, err := s.PickWeightedTrack(pool, used)
		if err != nil {
			t.Fatalf("PickWeightedTrack: %v", err)
		}
		if got.ID != "t1" {
			t.Fatalf("picked used track %s", got.ID)
		}
	}
}

func TestPickWeightedTrackExhausted(t *testing.T) {
	s := NewSelector(1)
	pool := makePool(2)
	used := map[string]bool{"t0": true, "t1": true}

	if _, err := s.PickWeightedTrack(pool, used); err != ErrPoolExhausted {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if _, err := s.PickWeightedTrack(nil, nil); err != ErrPoolExhausted {
		t.Fatalf("empty pool err = %v, want ErrPoolExhausted", err)
	}
}

func TestPickWeightedTrackFavorsTopOfList(t *testing.T) {
	s := NewSelector(42)
	pool := makePool(10)

	counts := make(map[string]int)
	for i := 0; i < 5000; i++ {
		got, err := s.PickWeightedTrack(pool, nil)
		if err != nil {
			t.Fatalf("PickWeightedTrack: %v", err)
		}
		counts[got.ID]++
	}
	// 热度和榜单位置都更高的曲目应明显更常被抽中
	if counts["t0"] <= counts["t9"] {
		t.Errorf("top track picked %d times, bottom %d", counts["t0"], counts["t9"])
	}
}

func TestPickWeightedTrackFrequency(t *testing.T) {
	s := NewSelector(42)
	pool := makePool(4)

	// 抽中频率应逼近 weight[i]/sum(weights)
	total := 0.0
	want := make(map[string]float64, len(pool))
	for i := range pool {
		total += trackWeight(&pool[i], i, len(pool))
	}
	for i := range pool {
		want[pool[i].ID] = trackWeight(&pool[i], i, len(pool)) / total
	}

	const draws = 30000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		got, err := s.PickWeightedTrack(pool, nil)
		if err != nil {
			t.Fatalf("PickWeightedTrack: %v", err)
		}
		counts[got.ID]++
	}
	for id, w := range want {
		freq := float64(counts[id]) / draws
		if math.Abs(freq-w) > 0.02 {
			t.Errorf("track %s frequency = %.3f, want %.3f ±0.02", id, freq, w)
		}
	}
}

func TestPickWeightedTrackReindexesAfterFilter(t *testing.T) {
	s := NewSelector(42)
	// 热度全为零时权重只剩位置加成。留下首尾两个候选，
	// 位置加成按剩余候选的次序算，抽中概率应为 2:1。
	pool := makePool(10)
	used := make(map[string]bool)
	for i := range pool {
		pool[i].Popularity = 0
		if i != 0 && i != 9 {
			used[pool[i].ID] = true
		}
	}

	const draws = 30000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		got, err := s.PickWeightedTrack(pool, used)
		if err != nil {
			t.Fatalf("PickWeightedTrack: %v", err)
		}
		counts[got.ID]++
	}
	first := float64(counts["t0"]) / draws
	if math.Abs(first-2.0/3.0) > 0.02 {
		t.Errorf("t0 frequency = %.3f, want %.3f ±0.02", first, 2.0/3.0)
	}
}

func TestAssembleDecoys(t *testing.T) {
	s := NewSelector(7)
	pool := makePool(6)
	correct := &pool[0]

	decoys, err := s.AssembleDecoys(correct, pool)
	if err != nil {
		t.Fatalf("AssembleDecoys: %v", err)
	}
	if len(decoys) != 3 {
		t.Fatalf("got %d decoys, want 3", len(decoys))
	}
	seen := make(map[string]bool)
	for _, d := range decoys {
		if d.ID == correct.ID || d.Name == correct.Name {
			t.Errorf("decoy %s collides with correct track", d.ID)
		}
		if seen[d.ID] {
			t.Errorf("duplicate decoy %s", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestAssembleDecoysExcludesSameName(t *testing.T) {
	s := NewSelector(7)
	pool := makePool(5)
	// 同名不同ID的翻唱版本不能作为干扰项
	pool[1].Name = pool[0].Name

	// 剩余候选 t2 t3 t4 正好三个，应该成功
	if _, err := s.AssembleDecoys(&pool[0], pool); err != nil {
		t.Fatalf("AssembleDecoys: %v", err)
	}

	pool = pool[:4] // 排除同名后只剩两个候选
	pool[1].Name = pool[0].Name
	if _, err := s.AssembleDecoys(&pool[0], pool); err != ErrNotEnoughDecoys {
		t.Fatalf("err = %v, want ErrNotEnoughDecoys", err)
	}
}

func TestAssembleDecoysWeighted(t *testing.T) {
	s := NewSelector(11)
	correct := &model.CatalogTrack{ID: "c", Name: "Correct", PreviewURL: "https://p/c.mp3"}
	pool := makePool(10)
	for i := range pool {
		pool[i].Popularity = 0
	}
	pool[0].Popularity = 500

	// 干扰项也按权重抽取，高权重候选应远比低权重候选常见
	const trials = 2000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		decoys, err := s.AssembleDecoys(correct, pool)
		if err != nil {
			t.Fatalf("AssembleDecoys: %v", err)
		}
		for _, d := range decoys {
			counts[d.ID]++
		}
	}
	if counts["t0"] <= 2*counts["t9"] {
		t.Errorf("heavy decoy t0 picked %d times, light t9 %d times", counts["t0"], counts["t9"])
	}
}

func TestSelectNextTrackRerollsOnDecoyShortage(t *testing.T) {
	s := NewSelector(5)
	pool := []model.CatalogTrack{
		{ID: "bad", Name: "Hit", Popularity: 500, PreviewURL: "https://p/bad.mp3"},
		{ID: "good", Name: "Other", Popularity: 0, PreviewURL: "https://p/good.mp3"},
	}
	decoyPool := []model.CatalogTrack{
		{ID: "d1", Name: "Hit"},
		{ID: "d2", Name: "P"},
		{ID: "d3", Name: "Q"},
	}

	// "Hit" 作为正确曲目时同名排除后凑不够干扰项，
	// 应换另一首正确曲目重试而不是直接失败
	for i := 0; i < 50; i++ {
		correct, track, err := s.SelectNextTrack(pool, decoyPool, nil)
		if err != nil {
			t.Fatalf("SelectNextTrack: %v", err)
		}
		if correct.ID != "good" || track.CorrectID != "good" {
			t.Fatalf("selected %s, only good can assemble decoys", correct.ID)
		}
	}

	// 所有候选都凑不够干扰项时才报错
	_, _, err := s.SelectNextTrack(pool[:1], decoyPool, nil)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestSelectNextTrack(t *testing.T) {
	s := NewSelector(3)
	pool := makePool(8)

	correct, track, err := s.SelectNextTrack(pool, pool, nil)
	if err != nil {
		t.Fatalf("SelectNextTrack: %v", err)
	}
	if track.CorrectID != correct.ID {
		t.Errorf("CorrectID = %s, want %s", track.CorrectID, correct.ID)
	}
	if track.Src != correct.PreviewURL {
		t.Errorf("Src = %s, want %s", track.Src, correct.PreviewURL)
	}
	if len(track.Choices) != 4 {
		t.Fatalf("got %d choices, want 4", len(track.Choices))
	}

	found := false
	for _, c := range track.Choices {
		if c.ID == correct.ID {
			found = true
		}
	}
	if !found {
		t.Error("correct track missing from choices")
	}
	if track.Timestamp != 0 {
		t.Error("timestamp should be unset until the track is published")
	}
}
