package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"SquizFM/logger"
	"SquizFM/model"
	"SquizFM/store"
)

var (
	// ErrGameNotFound 游戏不存在
	ErrGameNotFound = errors.New("game not found")
	// ErrGameCompleted 游戏已结束
	ErrGameCompleted = errors.New("game already completed")
	// ErrGamePaused 游戏处于暂停状态
	ErrGamePaused = errors.New("game is paused")
	// ErrNameTaken 玩家名称已被占用
	ErrNameTaken = errors.New("player name already taken")
	// ErrNoOpenTrack 当前没有开放作答的曲目
	ErrNoOpenTrack = errors.New("no open track")
	// ErrNoOpenRound 当前没有开放的回合
	ErrNoOpenRound = errors.New("no open round")
	// ErrRoundOpen 已有回合在进行中
	ErrRoundOpen = errors.New("a round is already open")
	// ErrTrackOpen 已有曲目在作答中
	ErrTrackOpen = errors.New("a track is already open")
	// ErrTrackCompleted 曲目已结束，得分结算后不可重播
	ErrTrackCompleted = errors.New("track already completed")
	// ErrAttemptsExhausted 该曲目的作答次数已用完
	ErrAttemptsExhausted = errors.New("guess attempts exhausted")
)

// 游戏代码为四位数字，便于玩家在手机上输入
const (
	gameCodeMin      = 1000
	gameCodeSpan     = 9000
	gameCodeAttempts = 32
)

// CatalogSource 选曲所需的曲库读取能力。
// 干扰项候选比题目候选宽，缺试听地址的曲目也能当干扰项。
type CatalogSource interface {
	LoadPlaylistTracks(ctx context.Context, playlistID string) ([]model.CatalogTrack, error)
	LoadDecoyCandidates(ctx context.Context, playlistID string) ([]model.CatalogTrack, error)
}

// Archiver 对局归档能力，游戏结束时调用
type Archiver interface {
	ArchiveGame(ctx context.Context, view *model.SessionView, scores map[string]int) error
}

// SessionManager 游戏会话管理器。
// 所有状态变更都走共享存储并附带守卫读取，
// 同一操作被多端重复触发时只有第一次生效。
type SessionManager struct {
	store    store.Store
	catalog  CatalogSource
	selector *Selector
	rules    Rules
	scores   *scoreCache
	archiver Archiver
}

// NewSessionManager 创建会话管理器。archiver 可为 nil。
func NewSessionManager(st store.Store, cat CatalogSource, sel *Selector, rules Rules, archiver Archiver) *SessionManager {
	return &SessionManager{
		store:    st,
		catalog:  cat,
		selector: sel,
		rules:    rules,
		scores:   newScoreCache(),
		archiver: archiver,
	}
}

// Rules 当前生效的规则参数
func (m *SessionManager) Rules() Rules { return m.rules }

// Now 共享存储的服务端毫秒时钟
func (m *SessionManager) Now(ctx context.Context) (int64, error) {
	return m.store.Now(ctx)
}

// WatchPath 订阅路径前缀下的存储变更
func (m *SessionManager) WatchPath(prefix string, fn func(store.Event)) store.UnsubscribeFunc {
	return m.store.Subscribe(prefix, fn)
}

// ========== 游戏生命周期 ==========

// StartGame 创建一局新游戏，返回四位数字游戏代码
func (m *SessionManager) StartGame(ctx context.Context) (string, error) {
	now, err := m.store.Now(ctx)
	if err != nil {
		return "", err
	}

	for i := 0; i < gameCodeAttempts; i++ {
		code := strconv.Itoa(gameCodeMin + m.selector.intn(gameCodeSpan))

		var existing model.Game
		found, err := m.store.Get(ctx, gamePath(code), &existing)
		if err != nil {
			return "", fmt.Errorf("检查游戏代码失败: %w", err)
		}
		if found {
			continue
		}

		g := model.Game{ID: code, Timestamp: now}
		if err := m.store.Set(ctx, gamePath(code), g); err != nil {
			return "", fmt.Errorf("创建游戏失败: %w", err)
		}
		logger.Info("游戏已创建", logger.String("gameId", code))
		return code, nil
	}
	return "", fmt.Errorf("生成游戏代码失败: 连续 %d 次碰撞", gameCodeAttempts)
}

// GetGame 读取游戏文档
func (m *SessionManager) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	var g model.Game
	found, err := m.store.Get(ctx, gamePath(gameID), &g)
	if err != nil {
		return nil, fmt.Errorf("读取游戏失败: %w", err)
	}
	if !found {
		return nil, ErrGameNotFound
	}
	g.ID = gameID
	return &g, nil
}

// openGame 读取游戏并校验其仍在进行中
func (m *SessionManager) openGame(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := m.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsCompleted() {
		return nil, ErrGameCompleted
	}
	return g, nil
}

// PauseGame 暂停游戏。已暂停时为幂等空操作。
func (m *SessionManager) PauseGame(ctx context.Context, gameID string) error {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.IsPaused() {
		return nil
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, gamePath(gameID), map[string]interface{}{"paused": now}); err != nil {
		return fmt.Errorf("暂停游戏失败: %w", err)
	}
	logger.Info("游戏已暂停", logger.String("gameId", gameID))
	return nil
}

// ResumeGame 恢复游戏。若暂停时有曲目在作答中，
// 将其计分起点顺延暂停时长，保证暂停不影响得分。
func (m *SessionManager) ResumeGame(ctx context.Context, gameID string) error {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return err
	}
	if !g.IsPaused() {
		return nil
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	pausedFor := now - g.Paused

	if err := m.store.Update(ctx, gamePath(gameID), map[string]interface{}{"paused": nil}); err != nil {
		return fmt.Errorf("恢复游戏失败: %w", err)
	}

	if round, track, err := m.openTrack(ctx, gameID); err == nil && track != nil {
		shifted := track.Timestamp + pausedFor
		if err := m.store.Update(ctx, trackPath(round.ID, track.ID),
			map[string]interface{}{"timestamp": shifted}); err != nil {
			return fmt.Errorf("顺延曲目计分起点失败: %w", err)
		}
	}

	logger.Info("游戏已恢复",
		logger.String("gameId", gameID), logger.Int64("pausedForMs", pausedFor))
	return nil
}

// EndGame 结束游戏并归档结果。已结束时为幂等空操作。
func (m *SessionManager) EndGame(ctx context.Context, gameID string) error {
	g, err := m.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.IsCompleted() {
		return nil
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, gamePath(gameID), map[string]interface{}{
		"completed": now,
		"paused":    nil,
	}); err != nil {
		return fmt.Errorf("结束游戏失败: %w", err)
	}
	logger.Info("游戏已结束", logger.String("gameId", gameID))

	if m.archiver != nil {
		view, err := m.LoadSessionView(ctx, gameID)
		if err != nil {
			logger.Error("归档前快照装载失败", logger.String("gameId", gameID), logger.ErrorField(err))
			return nil
		}
		scores, err := m.AggregateScores(ctx, gameID)
		if err != nil {
			logger.Error("归档前得分汇总失败", logger.String("gameId", gameID), logger.ErrorField(err))
			return nil
		}
		if err := m.archiver.ArchiveGame(ctx, view, scores); err != nil {
			// 归档失败不影响对局本身
			logger.Error("对局归档失败", logger.String("gameId", gameID), logger.ErrorField(err))
		}
	}
	return nil
}

// RestartGame 重开一局：清掉全部回合、作答和已用曲目，
// 保留玩家名单但清零分数缓存，游戏时间戳重置为当前时刻。
func (m *SessionManager) RestartGame(ctx context.Context, gameID string) error {
	if _, err := m.GetGame(ctx, gameID); err != nil {
		return err
	}

	if err := m.removeRounds(ctx, gameID); err != nil {
		return err
	}
	if err := m.store.RemoveChildren(ctx, usedTracksPath(gameID)); err != nil {
		return fmt.Errorf("清除已用曲目失败: %w", err)
	}

	playerDocs, err := m.store.Children(ctx, playersPath(gameID))
	if err != nil {
		return fmt.Errorf("读取玩家列表失败: %w", err)
	}
	for _, pd := range playerDocs {
		if err := m.store.Update(ctx, playerPath(gameID, pd.ID),
			map[string]interface{}{"score": nil}); err != nil {
			return fmt.Errorf("清零玩家分数失败: %w", err)
		}
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, gamePath(gameID), model.Game{ID: gameID, Timestamp: now}); err != nil {
		return fmt.Errorf("重置游戏失败: %w", err)
	}
	logger.Info("游戏已重开", logger.String("gameId", gameID))
	return nil
}

// RemoveGame 删除游戏及其全部关联文档
func (m *SessionManager) RemoveGame(ctx context.Context, gameID string) error {
	if err := m.removeRounds(ctx, gameID); err != nil {
		return err
	}
	if err := m.store.RemoveChildren(ctx, usedTracksPath(gameID)); err != nil {
		return fmt.Errorf("清除已用曲目失败: %w", err)
	}
	if err := m.store.RemoveChildren(ctx, playersPath(gameID)); err != nil {
		return fmt.Errorf("清除玩家列表失败: %w", err)
	}
	if err := m.store.Remove(ctx, gamePath(gameID)); err != nil {
		return fmt.Errorf("删除游戏失败: %w", err)
	}
	logger.Info("游戏已删除", logger.String("gameId", gameID))
	return nil
}

// removeRounds 级联删除游戏的全部回合、曲目与作答
func (m *SessionManager) removeRounds(ctx context.Context, gameID string) error {
	roundDocs, err := m.store.Children(ctx, roundsPath(gameID))
	if err != nil {
		return fmt.Errorf("读取回合列表失败: %w", err)
	}
	for _, rd := range roundDocs {
		trackDocs, err := m.store.Children(ctx, tracksPath(rd.ID))
		if err != nil {
			return fmt.Errorf("读取曲目列表失败: %w", err)
		}
		for _, td := range trackDocs {
			if err := m.store.RemoveChildren(ctx, guessesPath(td.ID)); err != nil {
				return fmt.Errorf("清除作答失败: %w", err)
			}
		}
		if err := m.store.RemoveChildren(ctx, tracksPath(rd.ID)); err != nil {
			return fmt.Errorf("清除曲目失败: %w", err)
		}
	}
	if err := m.store.RemoveChildren(ctx, roundsPath(gameID)); err != nil {
		return fmt.Errorf("清除回合失败: %w", err)
	}
	return nil
}

// ========== 玩家 ==========

// JoinGame 玩家加入游戏。名称去除首尾空白后需非空且在本局内唯一。
func (m *SessionManager) JoinGame(ctx context.Context, gameID, name string) (*model.Player, error) {
	if _, err := m.openGame(ctx, gameID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("玩家名称不能为空")
	}

	playerDocs, err := m.store.Children(ctx, playersPath(gameID))
	if err != nil {
		return nil, fmt.Errorf("读取玩家列表失败: %w", err)
	}
	for _, pd := range playerDocs {
		var existing model.Player
		if err := pd.Unmarshal(&existing); err != nil {
			continue
		}
		if strings.EqualFold(existing.Name, name) {
			return nil, ErrNameTaken
		}
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	player := model.Player{Name: name, Timestamp: now}
	id, err := m.store.Push(ctx, playersPath(gameID), player)
	if err != nil {
		return nil, fmt.Errorf("加入游戏失败: %w", err)
	}
	player.ID = id

	logger.Info("玩家已加入",
		logger.String("gameId", gameID),
		logger.String("playerId", id),
		logger.String("name", name))
	return &player, nil
}

// ========== 回合 ==========

// StartRound 主持人选定歌单后开启新回合
func (m *SessionManager) StartRound(ctx context.Context, gameID, playlistID string) (*model.Round, error) {
	g, err := m.openGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsPaused() {
		return nil, ErrGamePaused
	}

	if open, err := m.openRound(ctx, gameID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, ErrRoundOpen
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	round := model.Round{GameID: gameID, PlaylistID: playlistID, Timestamp: now}
	id, err := m.store.Push(ctx, roundsPath(gameID), round)
	if err != nil {
		return nil, fmt.Errorf("开启回合失败: %w", err)
	}
	round.ID = id

	logger.Info("回合已开启",
		logger.String("gameId", gameID),
		logger.String("roundId", id),
		logger.String("playlistId", playlistID))
	return &round, nil
}

// openRound 最新回合若仍开放则返回之，否则返回 nil
func (m *SessionManager) openRound(ctx context.Context, gameID string) (*model.Round, error) {
	docs, err := m.store.LastN(ctx, roundsPath(gameID), 1)
	if err != nil {
		return nil, fmt.Errorf("读取回合失败: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var r model.Round
	if err := docs[0].Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("回合文档解析失败: %w", err)
	}
	r.ID = docs[0].ID
	if !r.IsOpen() {
		return nil, nil
	}
	return &r, nil
}

// EndRound 结束回合。达到回合数上限时连带结束游戏。
func (m *SessionManager) EndRound(ctx context.Context, gameID, roundID string) error {
	var r model.Round
	found, err := m.store.Get(ctx, roundPath(gameID, roundID), &r)
	if err != nil {
		return fmt.Errorf("读取回合失败: %w", err)
	}
	if !found {
		return ErrNoOpenRound
	}
	if r.IsCompleted() {
		return nil
	}

	// 回合结束前先封掉未结束的曲目
	if track, err := m.latestTrack(ctx, roundID); err != nil {
		return err
	} else if track != nil && track.IsOpen() {
		if err := m.EndTrack(ctx, gameID, roundID, track.ID); err != nil {
			return err
		}
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, roundPath(gameID, roundID),
		map[string]interface{}{"completed": now}); err != nil {
		return fmt.Errorf("结束回合失败: %w", err)
	}
	logger.Info("回合已结束", logger.String("gameId", gameID), logger.String("roundId", roundID))

	completed, err := m.completedRounds(ctx, gameID)
	if err != nil {
		return err
	}
	if completed >= m.rules.RoundsLimit {
		return m.EndGame(ctx, gameID)
	}
	return nil
}

// completedRounds 已结束回合数
func (m *SessionManager) completedRounds(ctx context.Context, gameID string) (int, error) {
	docs, err := m.store.Children(ctx, roundsPath(gameID))
	if err != nil {
		return 0, fmt.Errorf("读取回合列表失败: %w", err)
	}
	count := 0
	for _, d := range docs {
		var r model.Round
		if err := d.Unmarshal(&r); err != nil {
			continue
		}
		if r.IsCompleted() {
			count++
		}
	}
	return count, nil
}
