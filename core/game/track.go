package game

import (
	"context"
	"errors"
	"fmt"

	"SquizFM/logger"
	"SquizFM/model"
)

// openTrack 当前开放作答的曲目及其所属回合。
// 没有开放回合或曲目时对应返回值为 nil。
func (m *SessionManager) openTrack(ctx context.Context, gameID string) (*model.Round, *model.Track, error) {
	round, err := m.openRound(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if round == nil {
		return nil, nil, nil
	}
	track, err := m.latestTrack(ctx, round.ID)
	if err != nil {
		return nil, nil, err
	}
	if track == nil || !track.IsOpen() {
		return round, nil, nil
	}
	return round, track, nil
}

// AppendTrack 在当前回合追加下一道题目。
// 回合曲目数已达上限或歌单可选曲目耗尽时转而结束回合，
// 此时返回的曲目为 nil。
func (m *SessionManager) AppendTrack(ctx context.Context, gameID string) (*model.Track, error) {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsPaused() {
		return nil, ErrGamePaused
	}

	round, err := m.openRound(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrNoOpenRound
	}

	if current, err := m.latestTrack(ctx, round.ID); err != nil {
		return nil, err
	} else if current != nil && current.IsOpen() {
		return nil, ErrTrackOpen
	}

	count, err := m.countTracks(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	if count >= m.rules.TracksLimit {
		return nil, m.EndRound(ctx, gameID, round.ID)
	}

	pool, err := m.catalog.LoadPlaylistTracks(ctx, round.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("装载歌单曲目失败: %w", err)
	}
	decoyPool, err := m.catalog.LoadDecoyCandidates(ctx, round.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("装载干扰项候选失败: %w", err)
	}
	used, err := m.usedTrackIDs(ctx, gameID)
	if err != nil {
		return nil, err
	}

	correct, track, err := m.selector.SelectNextTrack(pool, decoyPool, used)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrNotEnoughDecoys) {
			// 歌单出不了题了，提前收掉这一回合
			logger.Info("歌单可选曲目耗尽，提前结束回合",
				logger.String("gameId", gameID), logger.String("roundId", round.ID))
			return nil, m.EndRound(ctx, gameID, round.ID)
		}
		return nil, err
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	track.Timestamp = now
	id, err := m.store.Push(ctx, tracksPath(round.ID), track)
	if err != nil {
		return nil, fmt.Errorf("发布曲目失败: %w", err)
	}
	track.ID = id

	if err := m.store.Set(ctx, usedTrackPath(gameID, correct.ID),
		map[string]interface{}{"timestamp": now}); err != nil {
		return nil, fmt.Errorf("记录已用曲目失败: %w", err)
	}

	logger.Info("曲目已发布",
		logger.String("gameId", gameID),
		logger.String("roundId", round.ID),
		logger.String("trackId", id),
		logger.Int("trackNo", count+1))
	return track, nil
}

// RestartTrack 重播当前曲目：计分起点重置为当前时刻并清掉全部作答。
// 已结束的曲目不可重播，得分一旦结算便不再变动。
func (m *SessionManager) RestartTrack(ctx context.Context, gameID, roundID, trackID string) error {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.IsPaused() {
		return ErrGamePaused
	}

	var track model.Track
	found, err := m.store.Get(ctx, trackPath(roundID, trackID), &track)
	if err != nil {
		return fmt.Errorf("读取曲目失败: %w", err)
	}
	if !found {
		return ErrNoOpenTrack
	}
	if track.IsCompleted() {
		return ErrTrackCompleted
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, trackPath(roundID, trackID), map[string]interface{}{
		"timestamp": now,
		"completed": nil,
	}); err != nil {
		return fmt.Errorf("重置曲目失败: %w", err)
	}
	if err := m.store.RemoveChildren(ctx, guessesPath(trackID)); err != nil {
		return fmt.Errorf("清除作答失败: %w", err)
	}
	m.scores.drop(trackID)

	logger.Info("曲目已重播", logger.String("gameId", gameID), logger.String("trackId", trackID))
	return nil
}

// EndTrack 结束曲目作答，并把得分增量写进玩家文档的分数缓存。
// 已结束时为幂等空操作。
func (m *SessionManager) EndTrack(ctx context.Context, gameID, roundID, trackID string) error {
	var track model.Track
	found, err := m.store.Get(ctx, trackPath(roundID, trackID), &track)
	if err != nil {
		return fmt.Errorf("读取曲目失败: %w", err)
	}
	if !found {
		return ErrNoOpenTrack
	}
	if track.IsCompleted() {
		return nil
	}
	track.ID = trackID

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, trackPath(roundID, trackID),
		map[string]interface{}{"completed": now}); err != nil {
		return fmt.Errorf("结束曲目失败: %w", err)
	}
	track.Completed = now
	logger.Info("曲目已结束", logger.String("gameId", gameID), logger.String("trackId", trackID))

	// 分数缓存只是展示用的提示值，权威得分始终由 AggregateScores 重算
	scores, err := m.trackScores(ctx, &track)
	if err != nil {
		return err
	}
	for playerID, pts := range scores {
		var p model.Player
		found, err := m.store.Get(ctx, playerPath(gameID, playerID), &p)
		if err != nil || !found {
			continue
		}
		if err := m.store.Update(ctx, playerPath(gameID, playerID),
			map[string]interface{}{"score": p.Score + pts}); err != nil {
			logger.Warn("更新玩家分数缓存失败",
				logger.String("gameId", gameID),
				logger.String("playerId", playerID),
				logger.ErrorField(err))
		}
	}
	return nil
}

// SubmitGuess 玩家对当前曲目作答。每人每曲的作答次数受规则限制，
// 允许改选时后写的作答覆盖先写的。
func (m *SessionManager) SubmitGuess(ctx context.Context, gameID, playerID, choiceID string) (*model.Guess, error) {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsPaused() {
		return nil, ErrGamePaused
	}

	var player model.Player
	found, err := m.store.Get(ctx, playerPath(gameID, playerID), &player)
	if err != nil {
		return nil, fmt.Errorf("读取玩家失败: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("玩家不在本局游戏中")
	}

	_, track, err := m.openTrack(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, ErrNoOpenTrack
	}

	valid := false
	for _, c := range track.Choices {
		if c.ID == choiceID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("无效的选项: %s", choiceID)
	}

	attempts := 0
	var existing model.Guess
	if found, err := m.store.Get(ctx, guessPath(track.ID, playerID), &existing); err != nil {
		return nil, fmt.Errorf("读取已有作答失败: %w", err)
	} else if found {
		attempts = existing.Attempts
		if attempts == 0 {
			attempts = 1
		}
	}
	if attempts >= m.rules.GuessAttempts {
		return nil, ErrAttemptsExhausted
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	guess := model.Guess{ChoiceID: choiceID, Timestamp: now, Attempts: attempts + 1}
	if err := m.store.Set(ctx, guessPath(track.ID, playerID), guess); err != nil {
		return nil, fmt.Errorf("写入作答失败: %w", err)
	}

	logger.Debug("收到作答",
		logger.String("gameId", gameID),
		logger.String("playerId", playerID),
		logger.String("trackId", track.ID))
	return &guess, nil
}

// Advance 推进游戏进程：有开放曲目则结束之，
// 否则在开放回合内追加下一道题目。没有开放回合时等待主持人开启。
// 任何一端重复触发都安全，守卫读取保证每次转移只生效一次。
func (m *SessionManager) Advance(ctx context.Context, gameID string) error {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.IsPaused() {
		return ErrGamePaused
	}

	round, track, err := m.openTrack(ctx, gameID)
	if err != nil {
		return err
	}
	if round == nil {
		return ErrNoOpenRound
	}
	if track != nil {
		return m.EndTrack(ctx, gameID, round.ID, track.ID)
	}
	_, err = m.AppendTrack(ctx, gameID)
	return err
}
