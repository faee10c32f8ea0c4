package game

import (
	"context"
	"testing"
	"time"

	"SquizFM/model"

	"github.com/jonboulle/clockwork"
)

// waitFor 轮询直到条件成立，驱动循环跑在独立协程里
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *sessionFixture) currentTrack(t *testing.T, roundID string) *model.Track {
	t.Helper()
	track, err := f.manager.latestTrack(context.Background(), roundID)
	if err != nil {
		t.Fatalf("latestTrack: %v", err)
	}
	return track
}

func TestDriverRunsFullRound(t *testing.T) {
	rules := testRules()
	rules.RoundsLimit = 1
	rules.TracksLimit = 2
	f := newFixture(t, rules, 8)

	driver := NewDriver(f.manager, f.clock)
	defer driver.StopAll()

	gameID := f.startGame(t)
	driver.Watch(gameID)
	driver.Watch(gameID) // 重复启动应为空操作

	round, err := f.manager.StartRound(f.ctx, gameID, "pl1")
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	// 回合开启后驱动器立即出第一题
	waitFor(t, "first track", func() bool {
		return f.currentTrack(t, round.ID) != nil
	})
	first := f.currentTrack(t, round.ID)
	if !first.IsOpen() {
		t.Fatal("first track should be open")
	}

	// 作答窗口到点后驱动器收题
	f.clock.BlockUntil(1)
	f.clock.Advance(rules.ChoicesStartup + rules.ChoicesTimeout + time.Millisecond)
	waitFor(t, "first track completed", func() bool {
		tr := f.currentTrack(t, round.ID)
		return tr != nil && tr.IsCompleted()
	})

	// 结果展示期过后出第二题
	f.clock.BlockUntil(1)
	f.clock.Advance(rules.ResultsTimeout + time.Millisecond)
	waitFor(t, "second track", func() bool {
		tr := f.currentTrack(t, round.ID)
		return tr != nil && tr.ID != first.ID && tr.IsOpen()
	})

	// 第二题收题后达到曲目上限，回合结束并连带结束游戏
	f.clock.BlockUntil(1)
	f.clock.Advance(rules.ChoicesStartup + rules.ChoicesTimeout + time.Millisecond)
	waitFor(t, "second track completed", func() bool {
		tr := f.currentTrack(t, round.ID)
		return tr != nil && tr.IsCompleted()
	})
	f.clock.BlockUntil(1)
	f.clock.Advance(rules.ResultsTimeout + time.Millisecond)
	waitFor(t, "game completed", func() bool {
		g, err := f.manager.GetGame(f.ctx, gameID)
		return err == nil && g.IsCompleted()
	})
}

func TestDriverHoldsWhilePaused(t *testing.T) {
	rules := testRules()
	f := newFixture(t, rules, 8)

	driver := NewDriver(f.manager, f.clock)
	defer driver.StopAll()

	gameID := f.startGame(t)
	driver.Watch(gameID)

	round, err := f.manager.StartRound(f.ctx, gameID, "pl1")
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	waitFor(t, "first track", func() bool {
		return f.currentTrack(t, round.ID) != nil
	})

	if err := f.manager.PauseGame(f.ctx, gameID); err != nil {
		t.Fatalf("PauseGame: %v", err)
	}
	// 暂停后驱动器不再持有计时器，时间推进不应收题
	f.clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	if tr := f.currentTrack(t, round.ID); tr.IsCompleted() {
		t.Fatal("track closed while the game was paused")
	}

	if err := f.manager.ResumeGame(f.ctx, gameID); err != nil {
		t.Fatalf("ResumeGame: %v", err)
	}
	// 恢复后计分起点已顺延，窗口从当前时刻继续
	f.clock.BlockUntil(1)
	f.clock.Advance(rules.ChoicesStartup + rules.ChoicesTimeout + time.Millisecond)
	waitFor(t, "track completed after resume", func() bool {
		tr := f.currentTrack(t, round.ID)
		return tr != nil && tr.IsCompleted()
	})
}

func TestDriverStop(t *testing.T) {
	f := newFixture(t, testRules(), 8)
	driver := NewDriver(f.manager, f.clock)

	gameID := f.startGame(t)
	driver.Watch(gameID)
	driver.Stop(gameID)
	driver.Stop(gameID) // 重复停止应为空操作

	round, err := f.manager.StartRound(f.ctx, gameID, "pl1")
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if tr := f.currentTrack(t, round.ID); tr != nil {
		t.Fatal("stopped driver should not publish tracks")
	}
}

func TestStopAndDrainTimer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	timer := clk.NewTimer(time.Second)
	clk.Advance(2 * time.Second)

	stopAndDrainTimer(timer)
	select {
	case <-timer.Chan():
		t.Fatal("timer channel should be drained")
	default:
	}
}
