package game

import (
	"context"
	"fmt"

	"SquizFM/model"
)

// LoadSessionView 装载一局游戏的完整会话快照：
// 游戏文档、全部回合、最新回合的最新曲目、玩家列表和当前曲目的作答。
// 快照内的推导（当前开放曲目等）统一走 SessionView 的方法。
func (m *SessionManager) LoadSessionView(ctx context.Context, gameID string) (*model.SessionView, error) {
	view := &model.SessionView{}

	var g model.Game
	found, err := m.store.Get(ctx, gamePath(gameID), &g)
	if err != nil {
		return nil, fmt.Errorf("读取游戏失败: %w", err)
	}
	if !found {
		return nil, ErrGameNotFound
	}
	g.ID = gameID
	view.Game = &g

	roundDocs, err := m.store.Children(ctx, roundsPath(gameID))
	if err != nil {
		return nil, fmt.Errorf("读取回合列表失败: %w", err)
	}
	for _, rd := range roundDocs {
		var r model.Round
		if err := rd.Unmarshal(&r); err != nil {
			return nil, fmt.Errorf("回合文档解析失败 (回合: %s): %w", rd.ID, err)
		}
		r.ID = rd.ID
		view.Rounds = append(view.Rounds, &r)
	}
	if len(view.Rounds) > 0 {
		view.Round = view.Rounds[len(view.Rounds)-1]
	}

	if view.Round != nil {
		trackDocs, err := m.store.LastN(ctx, tracksPath(view.Round.ID), 1)
		if err != nil {
			return nil, fmt.Errorf("读取曲目失败: %w", err)
		}
		if len(trackDocs) > 0 {
			var t model.Track
			if err := trackDocs[0].Unmarshal(&t); err != nil {
				return nil, fmt.Errorf("曲目文档解析失败 (曲目: %s): %w", trackDocs[0].ID, err)
			}
			t.ID = trackDocs[0].ID
			view.Track = &t
		}
	}

	playerDocs, err := m.store.Children(ctx, playersPath(gameID))
	if err != nil {
		return nil, fmt.Errorf("读取玩家列表失败: %w", err)
	}
	for _, pd := range playerDocs {
		var p model.Player
		if err := pd.Unmarshal(&p); err != nil {
			return nil, fmt.Errorf("玩家文档解析失败 (玩家: %s): %w", pd.ID, err)
		}
		p.ID = pd.ID
		view.Players = append(view.Players, &p)
	}

	if view.Track != nil {
		guessDocs, err := m.store.Children(ctx, guessesPath(view.Track.ID))
		if err != nil {
			return nil, fmt.Errorf("读取作答失败: %w", err)
		}
		view.Guesses = make(map[string]model.Guess, len(guessDocs))
		for _, gd := range guessDocs {
			var guess model.Guess
			if err := gd.Unmarshal(&guess); err != nil {
				return nil, fmt.Errorf("作答文档解析失败 (玩家: %s): %w", gd.ID, err)
			}
			view.Guesses[gd.ID] = guess
		}
	}

	return view, nil
}

// countTracks 统计回合内已出的曲目数
func (m *SessionManager) countTracks(ctx context.Context, roundID string) (int, error) {
	docs, err := m.store.Children(ctx, tracksPath(roundID))
	if err != nil {
		return 0, fmt.Errorf("读取曲目列表失败: %w", err)
	}
	return len(docs), nil
}

// usedTrackIDs 本局游戏已出过的曲库曲目ID集合
func (m *SessionManager) usedTrackIDs(ctx context.Context, gameID string) (map[string]bool, error) {
	docs, err := m.store.Children(ctx, usedTracksPath(gameID))
	if err != nil {
		return nil, fmt.Errorf("读取已用曲目失败: %w", err)
	}
	used := make(map[string]bool, len(docs))
	for _, d := range docs {
		used[d.ID] = true
	}
	return used, nil
}

// latestTrackDoc 回合内最新的曲目，无曲目时返回 nil
func (m *SessionManager) latestTrack(ctx context.Context, roundID string) (*model.Track, error) {
	docs, err := m.store.LastN(ctx, tracksPath(roundID), 1)
	if err != nil {
		return nil, fmt.Errorf("读取曲目失败: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var t model.Track
	if err := docs[0].Unmarshal(&t); err != nil {
		return nil, fmt.Errorf("曲目文档解析失败 (曲目: %s): %w", docs[0].ID, err)
	}
	t.ID = docs[0].ID
	return &t, nil
}
