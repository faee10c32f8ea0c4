package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"SquizFM/logger"
	"SquizFM/store"

	"github.com/jonboulle/clockwork"
)

// Driver 服务端进程驱动器：替每局游戏掌管作答窗口和结果展示的计时，
// 到点调用 Advance 推进进程。所有转移都经过守卫读取，
// 计时器误触发或与主持人手动操作撞上时不会重复生效。
type Driver struct {
	manager *SessionManager
	clock   clockwork.Clock

	mu    sync.Mutex
	games map[string]chan struct{} // gameID -> stop
}

// NewDriver 创建驱动器
func NewDriver(manager *SessionManager, clock clockwork.Clock) *Driver {
	return &Driver{
		manager: manager,
		clock:   clock,
		games:   make(map[string]chan struct{}),
	}
}

// Watch 开始驱动一局游戏。重复调用为空操作。
func (d *Driver) Watch(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, running := d.games[gameID]; running {
		return
	}
	stop := make(chan struct{})
	d.games[gameID] = stop
	go d.run(gameID, stop)
	logger.Info("开始驱动游戏", logger.String("gameId", gameID))
}

// Stop 停止驱动一局游戏
func (d *Driver) Stop(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if stop, running := d.games[gameID]; running {
		close(stop)
		delete(d.games, gameID)
	}
}

// StopAll 停止全部游戏的驱动
func (d *Driver) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for gameID, stop := range d.games {
		close(stop)
		delete(d.games, gameID)
	}
}

// finished 游戏结束后驱动循环自行退出时的登记清理
func (d *Driver) finished(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.games, gameID)
}

// run 单局游戏的驱动循环。存储层任何相关变更都会唤醒循环,
// 循环重读状态决定下一个到期动作。
func (d *Driver) run(gameID string, stop chan struct{}) {
	ctx := context.Background()

	poke := make(chan struct{}, 1)
	wake := func(store.Event) {
		select {
		case poke <- struct{}{}:
		default:
		}
	}
	unsubs := []store.UnsubscribeFunc{
		d.manager.WatchPath(gamePath(gameID), wake),
		d.manager.WatchPath(roundsPath(gameID), wake),
		// 曲目按回合ID挂载，无法按游戏前缀订阅，退而订阅整个曲目集合
		d.manager.WatchPath("rounds-tracks", wake),
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	const retryDelay = 2 * time.Second
	timer := d.clock.NewTimer(time.Hour)
	stopAndDrainTimer(timer)

	for {
		deadline, active, done, err := d.nextDeadline(ctx, gameID)
		if err != nil {
			logger.Error("驱动循环读取状态失败",
				logger.String("gameId", gameID), logger.ErrorField(err))
			timer.Reset(retryDelay)
			select {
			case <-stop:
				stopAndDrainTimer(timer)
				return
			case <-timer.Chan():
			case <-poke:
				stopAndDrainTimer(timer)
			}
			continue
		}
		if done {
			d.finished(gameID)
			logger.Info("游戏已结束，停止驱动", logger.String("gameId", gameID))
			return
		}
		if !active {
			// 暂停中或等待主持人开启回合
			select {
			case <-stop:
				return
			case <-poke:
			}
			continue
		}

		now, err := d.manager.Now(ctx)
		if err != nil {
			logger.Error("驱动循环读取时钟失败",
				logger.String("gameId", gameID), logger.ErrorField(err))
			now = deadline // 让循环立即推进而不是卡死
		}
		delay := time.Duration(deadline-now) * time.Millisecond
		if delay <= 0 {
			d.advance(ctx, gameID)
			continue
		}

		timer.Reset(delay)
		select {
		case <-stop:
			stopAndDrainTimer(timer)
			return
		case <-poke:
			// 状态变了，作废当前计时重新评估
			stopAndDrainTimer(timer)
		case <-timer.Chan():
			d.advance(ctx, gameID)
		}
	}
}

// advance 推进一步，预期内的守卫拒绝不算错误
func (d *Driver) advance(ctx context.Context, gameID string) {
	err := d.manager.Advance(ctx, gameID)
	switch {
	case err == nil:
	case errors.Is(err, ErrGamePaused),
		errors.Is(err, ErrNoOpenRound),
		errors.Is(err, ErrGameCompleted),
		errors.Is(err, ErrTrackOpen):
		logger.Debug("推进被守卫拦下", logger.String("gameId", gameID), logger.ErrorField(err))
	default:
		logger.Error("推进游戏失败", logger.String("gameId", gameID), logger.ErrorField(err))
	}
}

// nextDeadline 计算下一个到期动作的服务端毫秒时刻。
// active 为 false 表示当前没有待计时的动作，等事件唤醒即可。
func (d *Driver) nextDeadline(ctx context.Context, gameID string) (deadline int64, active, done bool, err error) {
	g, err := d.manager.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			// 游戏被删除，按结束处理
			return 0, false, true, nil
		}
		return 0, false, false, err
	}
	if g.IsCompleted() {
		return 0, false, true, nil
	}
	if g.IsPaused() {
		return 0, false, false, nil
	}

	round, track, err := d.manager.openTrack(ctx, gameID)
	if err != nil {
		return 0, false, false, err
	}
	if round == nil {
		return 0, false, false, nil
	}
	if track != nil {
		window := d.manager.rules.ChoicesStartup + d.manager.rules.ChoicesTimeout
		return track.Timestamp + window.Milliseconds(), true, false, nil
	}

	// 回合开放但没有开放曲目：上一曲结果展示期结束后出下一题，
	// 回合刚开启还没出过题时立即出第一题
	last, err := d.manager.latestTrack(ctx, round.ID)
	if err != nil {
		return 0, false, false, err
	}
	if last == nil {
		return round.Timestamp, true, false, nil
	}
	return last.Completed + d.manager.rules.ResultsTimeout.Milliseconds(), true, false, nil
}

// stopAndDrainTimer 停掉计时器并吸干可能已经写入通道的触发
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
