package model

// 游戏会话相关的文档结构。所有时间戳均为服务端毫秒时间，
// 由共享存储在写入时解析，客户端时钟不参与计分。

// Game 一局游戏的根文档
type Game struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Paused    int64  `json:"paused,omitempty"`    // 暂停时刻，0 = 未暂停
	Completed int64  `json:"completed,omitempty"` // 结束时刻，0 = 进行中
	Inactive  int64  `json:"inactive,omitempty"`  // 主持端最后一次隐藏的时刻
}

// IsPaused 游戏是否处于暂停状态
func (g *Game) IsPaused() bool { return g != nil && g.Paused != 0 }

// IsCompleted 游戏是否已结束
func (g *Game) IsCompleted() bool { return g != nil && g.Completed != 0 }

// Round 一个回合，对应主持人选择的一个歌单
type Round struct {
	ID         string `json:"id"`
	GameID     string `json:"gameId"`
	PlaylistID string `json:"playlistId"`
	Timestamp  int64  `json:"timestamp"`
	Completed  int64  `json:"completed,omitempty"`
}

// IsCompleted 回合是否已结束
func (r *Round) IsCompleted() bool { return r != nil && r.Completed != 0 }

// IsOpen 回合是否仍然开放
func (r *Round) IsOpen() bool { return r != nil && r.Completed == 0 }

// Choice 呈现给玩家的一个选项（正确曲目或干扰项，裁剪后的展示字段）
type Choice struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Artists []string    `json:"artists"`
	Album   ChoiceAlbum `json:"album"`
}

// ChoiceAlbum 选项中的专辑展示信息
type ChoiceAlbum struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Track 回合中的一道"题目"：一首正确曲目加三个干扰项
type Track struct {
	ID        string   `json:"id"`
	CorrectID string   `json:"correctId"`
	Src       string   `json:"src"` // 试听音频地址
	Choices   []Choice `json:"choices"`
	Timestamp int64    `json:"timestamp"` // 开始接受作答（计分起点）的时刻
	Completed int64    `json:"completed,omitempty"`
}

// IsCompleted 曲目是否已结束
func (t *Track) IsCompleted() bool { return t != nil && t.Completed != 0 }

// IsOpen 曲目是否仍在作答窗口内
func (t *Track) IsOpen() bool { return t != nil && t.Completed == 0 }

// Guess 单个玩家对某曲目的作答，按 playerID 键控，每人每曲一条
type Guess struct {
	ChoiceID  string `json:"choiceId"`
	Timestamp int64  `json:"timestamp"`
	Attempts  int    `json:"attempts,omitempty"` // 允许改选时的累计作答次数
}

// Player 加入游戏的玩家
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score,omitempty"` // 累计得分缓存，权威值由聚合计算
	Timestamp int64  `json:"timestamp"`
	Inactive  int64  `json:"inactive,omitempty"` // 最后一次失去前台的时刻
}

// SessionView 一次变更批处理内解析好的完整会话快照，
// 避免各处临时拼查询引发的重复推导竞争
type SessionView struct {
	Game    *Game            `json:"game,omitempty"`
	Rounds  []*Round         `json:"rounds,omitempty"`
	Round   *Round           `json:"round,omitempty"` // 最新回合
	Track   *Track           `json:"track,omitempty"` // 最新曲目
	Players []*Player        `json:"players,omitempty"`
	Guesses map[string]Guess `json:"guesses,omitempty"` // playerID -> 当前曲目的作答
}

// OpenTrack 当前仍开放作答的曲目，没有则返回 nil
func (v *SessionView) OpenTrack() *Track {
	if v != nil && v.Track != nil && v.Track.IsOpen() {
		return v.Track
	}
	return nil
}

// OpenRound 当前仍开放的回合，没有则返回 nil
func (v *SessionView) OpenRound() *Round {
	if v != nil && v.Round != nil && v.Round.IsOpen() {
		return v.Round
	}
	return nil
}
