package game

import (
	"testing"
	"time"

	"SquizFM/model"
)

func testRules() Rules {
	return Rules{
		RoundsLimit:    5,
		TracksLimit:    10,
		ChoicesTimeout: 10 * time.Second,
		ChoicesStartup: 1 * time.Second,
		ResultsTimeout: 3 * time.Second,
		GuessAttempts:  1,
	}
}

func TestPointsForGuess(t *testing.T) {
	rules := testRules()
	track := &model.Track{
		ID:        "tr1",
		CorrectID: "c1",
		Timestamp: 100_000,
	}

	cases := []struct {
		name  string
		guess model.Guess
		want  int
	}{
		{"wrong choice", model.Guess{ChoiceID: "c2", Timestamp: 101_000}, 0},
		{"within startup grace", model.Guess{ChoiceID: "c1", Timestamp: 100_500}, 100},
		{"exactly at grace end", model.Guess{ChoiceID: "c1", Timestamp: 101_000}, 100},
		{"halfway through window", model.Guess{ChoiceID: "c1", Timestamp: 106_000}, 50},
		{"at window end", model.Guess{ChoiceID: "c1", Timestamp: 111_000}, 0},
		{"after window end", model.Guess{ChoiceID: "c1", Timestamp: 120_000}, 0},
		{"quarter through", model.Guess{ChoiceID: "c1", Timestamp: 103_500}, 75},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := PointsForGuess(c.guess, track, rules); got != c.want {
				t.Errorf("PointsForGuess = %d, want %d", got, c.want)
			}
		})
	}
}

func TestPointsForGuessNilTrack(t *testing.T) {
	if got := PointsForGuess(model.Guess{ChoiceID: "c1"}, nil, testRules()); got != 0 {
		t.Errorf("PointsForGuess(nil track) = %d, want 0", got)
	}
}

func TestAggregateScoresOrderIndependent(t *testing.T) {
	// 作答写入顺序不影响汇总结果
	run := func(t *testing.T, reversed bool) map[string]int {
		t.Helper()
		f := newFixture(t, testRules(), 8)
		gameID := f.startGame(t)
		alice, _ := f.manager.JoinGame(f.ctx, gameID, "Alice")
		bob, _ := f.manager.JoinGame(f.ctx, gameID, "Bob")
		carol, _ := f.manager.JoinGame(f.ctx, gameID, "Carol")
		round, err := f.manager.StartRound(f.ctx, gameID, "pl1")
		if err != nil {
			t.Fatalf("StartRound: %v", err)
		}
		track, err := f.manager.AppendTrack(f.ctx, gameID)
		if err != nil {
			t.Fatalf("AppendTrack: %v", err)
		}
		var wrong string
		for _, c := range track.Choices {
			if c.ID != track.CorrectID {
				wrong = c.ID
				break
			}
		}

		entries := []struct {
			playerID string
			guess    model.Guess
		}{
			{alice.ID, model.Guess{ChoiceID: track.CorrectID, Timestamp: track.Timestamp + 1500, Attempts: 1}},
			{bob.ID, model.Guess{ChoiceID: track.CorrectID, Timestamp: track.Timestamp + 4000, Attempts: 1}},
			{carol.ID, model.Guess{ChoiceID: wrong, Timestamp: track.Timestamp + 2000, Attempts: 1}},
		}
		if reversed {
			for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
		for _, e := range entries {
			if err := f.store.Set(f.ctx, guessPath(track.ID, e.playerID), e.guess); err != nil {
				t.Fatalf("write guess: %v", err)
			}
		}
		if err := f.manager.EndTrack(f.ctx, gameID, round.ID, track.ID); err != nil {
			t.Fatalf("EndTrack: %v", err)
		}

		scores, err := f.manager.AggregateScores(f.ctx, gameID)
		if err != nil {
			t.Fatalf("AggregateScores: %v", err)
		}
		return map[string]int{
			"Alice": scores[alice.ID],
			"Bob":   scores[bob.ID],
			"Carol": scores[carol.ID],
		}
	}

	forward := run(t, false)
	backward := run(t, true)
	want := map[string]int{"Alice": 95, "Bob": 70, "Carol": 0}
	for name, pts := range want {
		if forward[name] != pts {
			t.Errorf("forward %s = %d, want %d", name, forward[name], pts)
		}
		if backward[name] != forward[name] {
			t.Errorf("%s: reversed order gave %d, forward gave %d", name, backward[name], forward[name])
		}
	}
}

func TestScoreCache(t *testing.T) {
	c := newScoreCache()
	if _, ok := c.get("t1"); ok {
		t.Fatal("empty cache should miss")
	}
	c.put("t1", map[string]int{"p1": 80})
	scores, ok := c.get("t1")
	if !ok || scores["p1"] != 80 {
		t.Fatalf("cache get = %v %v", scores, ok)
	}
}
