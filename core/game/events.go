package game

import (
	"encoding/json"

	"SquizFM/model"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeError MessageType = "error" // 错误消息
	MsgTypePing  MessageType = "ping"  // 心跳
	MsgTypePong  MessageType = "pong"  // 心跳响应
	MsgTypeSync  MessageType = "sync"  // 会话快照同步

	// 主持端消息
	MsgTypeAdvance      MessageType = "advance"       // 手动推进
	MsgTypeStartRound   MessageType = "start_round"   // 开启回合
	MsgTypePause        MessageType = "pause"         // 暂停
	MsgTypeResume       MessageType = "resume"        // 恢复
	MsgTypeRestartTrack MessageType = "restart_track" // 重播当前曲目

	// 玩家端消息
	MsgTypeGuess    MessageType = "guess"    // 作答
	MsgTypePresence MessageType = "presence" // 前台/后台状态上报
)

// 客户端角色
const (
	RoleScreen     = "screen"     // 主持端大屏
	RoleController = "controller" // 玩家手机端
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	GameID    string          `json:"gameId,omitempty"`
	PlayerID  string          `json:"playerId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// GuessData 作答消息数据
type GuessData struct {
	ChoiceID string `json:"choiceId"`
}

// PresenceData 在场状态数据
type PresenceData struct {
	Present bool `json:"present"`
}

// StartRoundData 开启回合数据
type StartRoundData struct {
	PlaylistID string `json:"playlistId"`
}

// ErrorData 错误消息数据
type ErrorData struct {
	Message string `json:"message"`
}

// SyncData 推送给客户端的会话快照。
// Scores 为权威汇总得分，玩家文档上的分数缓存仅作兜底。
type SyncData struct {
	Game    *model.Game            `json:"game,omitempty"`
	Rounds  []*model.Round         `json:"rounds,omitempty"`
	Round   *model.Round           `json:"round,omitempty"`
	Track   *model.Track           `json:"track,omitempty"`
	Players []*model.Player        `json:"players,omitempty"`
	Guesses map[string]model.Guess `json:"guesses,omitempty"`
	Scores  map[string]int         `json:"scores,omitempty"`
	Now     int64                  `json:"now"` // 服务端时钟，客户端用来画倒计时
}

// redactForController 玩家端快照：曲目还在作答窗口内时
// 抹掉正确答案和音频地址，防止翻包作弊。
func (d *SyncData) redactForController() *SyncData {
	if d.Track == nil || !d.Track.IsOpen() {
		return d
	}
	clone := *d
	track := *d.Track
	track.CorrectID = ""
	track.Src = ""
	clone.Track = &track
	return &clone
}
