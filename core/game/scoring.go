package game

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"SquizFM/config"
	"SquizFM/logger"
	"SquizFM/model"
)

// Rules 游戏规则参数，来自配置
type Rules struct {
	RoundsLimit    int
	TracksLimit    int
	ChoicesTimeout time.Duration
	ChoicesStartup time.Duration
	ResultsTimeout time.Duration
	GuessAttempts  int
}

// RulesFromConfig 从应用配置提取规则参数
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		RoundsLimit:    cfg.RoundsLimit,
		TracksLimit:    cfg.TracksLimit,
		ChoicesTimeout: cfg.ChoicesTimeout,
		ChoicesStartup: cfg.ChoicesStartup,
		ResultsTimeout: cfg.ResultsTimeout,
		GuessAttempts:  cfg.GuessAttempts,
	}
}

// PointsForGuess 计算一次作答的得分。
// 答错得0分；答对按作答时刻在作答窗口中的位置线性扣减，
// 起步宽限期内作答按满分计，窗口结束后压到0分。
func PointsForGuess(g model.Guess, track *model.Track, rules Rules) int {
	if track == nil || g.ChoiceID != track.CorrectID {
		return 0
	}

	elapsed := g.Timestamp - track.Timestamp - rules.ChoicesStartup.Milliseconds()
	penalty := int(math.Round(float64(elapsed) / float64(rules.ChoicesTimeout.Milliseconds()) * 100))
	if penalty < 0 {
		penalty = 0
	}
	if penalty > 100 {
		penalty = 100
	}
	return 100 - penalty
}

// scoreCache 已结束曲目的得分缓存。
// 曲目一旦结束其作答不再变化，按 trackID 缓存即可。
type scoreCache struct {
	mu      sync.Mutex
	byTrack map[string]map[string]int
}

func newScoreCache() *scoreCache {
	return &scoreCache{byTrack: make(map[string]map[string]int)}
}

func (c *scoreCache) get(trackID string) (map[string]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scores, ok := c.byTrack[trackID]
	return scores, ok
}

func (c *scoreCache) put(trackID string, scores map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTrack[trackID] = scores
}

func (c *scoreCache) drop(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byTrack, trackID)
}

// AggregateScores 汇总一局游戏的玩家总分。
// 遍历全部回合和已结束的曲目逐条重算，而不是信任玩家文档上的
// 分数缓存，保证断线重连后看到的分数一致。
func (m *SessionManager) AggregateScores(ctx context.Context, gameID string) (map[string]int, error) {
	totals := make(map[string]int)

	roundDocs, err := m.store.Children(ctx, roundsPath(gameID))
	if err != nil {
		return nil, fmt.Errorf("汇总得分失败: %w", err)
	}

	for _, rd := range roundDocs {
		trackDocs, err := m.store.Children(ctx, tracksPath(rd.ID))
		if err != nil {
			return nil, fmt.Errorf("汇总得分失败: %w", err)
		}
		for _, td := range trackDocs {
			var track model.Track
			if err := td.Unmarshal(&track); err != nil {
				logger.Warn("曲目文档解析失败，跳过计分",
					logger.String("trackId", td.ID), logger.ErrorField(err))
				continue
			}
			track.ID = td.ID
			if !track.IsCompleted() {
				continue
			}

			scores, err := m.trackScores(ctx, &track)
			if err != nil {
				return nil, err
			}
			for playerID, pts := range scores {
				totals[playerID] += pts
			}
		}
	}
	return totals, nil
}

// trackScores 单首已结束曲目的每人得分，带缓存
func (m *SessionManager) trackScores(ctx context.Context, track *model.Track) (map[string]int, error) {
	if scores, ok := m.scores.get(track.ID); ok {
		return scores, nil
	}

	guessDocs, err := m.store.Children(ctx, guessesPath(track.ID))
	if err != nil {
		return nil, fmt.Errorf("读取曲目作答失败: %w", err)
	}

	scores := make(map[string]int)
	for _, gd := range guessDocs {
		var guess model.Guess
		if err := gd.Unmarshal(&guess); err != nil {
			logger.Warn("作答文档解析失败，跳过计分",
				logger.String("trackId", track.ID), logger.String("playerId", gd.ID),
				logger.ErrorField(err))
			continue
		}
		if pts := PointsForGuess(guess, track, m.rules); pts > 0 {
			scores[gd.ID] = pts
		}
	}

	m.scores.put(track.ID, scores)
	return scores, nil
}
