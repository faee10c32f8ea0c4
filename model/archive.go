package model

import "time"

// 已结束对局的归档模型（MySQL 持久化）。共享存储只保留进行中的会话，
// 结束时由聚合计算出的权威比分落库。

// GameRecord 一局已结束游戏的归档
type GameRecord struct {
	ID          int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	GameCode    string         `json:"gameCode" gorm:"size:8;index;not null"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt" gorm:"index"`
	RoundCount  int            `json:"roundCount"`
	WinnerName  string         `json:"winnerName" gorm:"size:100"`
	WinnerScore int            `json:"winnerScore"`
	Results     []PlayerResult `json:"results" gorm:"foreignKey:GameRecordID"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TableName 指定表名
func (GameRecord) TableName() string {
	return "game_records"
}

// PlayerResult 归档中的单个玩家战绩
type PlayerResult struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	GameRecordID int64  `json:"gameRecordId" gorm:"index;not null"`
	PlayerName   string `json:"playerName" gorm:"size:100;not null"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
}

// TableName 指定表名
func (PlayerResult) TableName() string {
	return "player_results"
}

// LeaderboardEntry 排行榜条目（API 响应用）
type LeaderboardEntry struct {
	PlayerName string    `json:"playerName"`
	Score      int       `json:"score"`
	GameCode   string    `json:"gameCode"`
	PlayedAt   time.Time `json:"playedAt"`
}
