package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SquizFM/logger"
	"SquizFM/model"

	"gorm.io/gorm"
)

// ArchiveRepository 定义对局归档相关的数据库操作接口
type ArchiveRepository interface {
	// SaveRecord 保存一局已结束游戏的归档
	SaveRecord(ctx context.Context, record *model.GameRecord) error

	// GetRecordByCode 按游戏代码查询最近一次归档
	GetRecordByCode(ctx context.Context, gameCode string) (*model.GameRecord, error)

	// RecentRecords 最近归档的对局
	RecentRecords(ctx context.Context, limit int) ([]*model.GameRecord, error)

	// Leaderboard 按单局得分排序的排行榜
	Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
}

// GormArchiveRepository GORM实现的归档仓库
type GormArchiveRepository struct {
	db *gorm.DB
}

// NewGormArchiveRepository 创建归档仓库实例
func NewGormArchiveRepository(db *gorm.DB) *GormArchiveRepository {
	return &GormArchiveRepository{db: db}
}

// SaveRecord 保存一局已结束游戏的归档
func (r *GormArchiveRepository) SaveRecord(ctx context.Context, record *model.GameRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("保存对局归档失败: %w", err)
	}
	return nil
}

// GetRecordByCode 按游戏代码查询最近一次归档。游戏代码会被重复使用，
// 只返回最新一条。
func (r *GormArchiveRepository) GetRecordByCode(ctx context.Context, gameCode string) (*model.GameRecord, error) {
	var record model.GameRecord
	err := r.db.WithContext(ctx).
		Preload("Results").
		Where("game_code = ?", gameCode).
		Order("completed_at DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询对局归档失败: %w", err)
	}
	return &record, nil
}

// RecentRecords 最近归档的对局
func (r *GormArchiveRepository) RecentRecords(ctx context.Context, limit int) ([]*model.GameRecord, error) {
	var records []*model.GameRecord
	err := r.db.WithContext(ctx).
		Preload("Results").
		Order("completed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近对局失败: %w", err)
	}
	return records, nil
}

// Leaderboard 按单局得分排序的排行榜
func (r *GormArchiveRepository) Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	var entries []*model.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Table("player_results").
		Select("player_results.player_name, player_results.score, game_records.game_code, game_records.completed_at AS played_at").
		Joins("JOIN game_records ON game_records.id = player_results.game_record_id").
		Order("player_results.score DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询排行榜失败: %w", err)
	}
	return entries, nil
}

// GameArchiver 把会话快照折算成归档记录并落库。
// 实现 game 包的 Archiver 接口。
type GameArchiver struct {
	repo ArchiveRepository
}

// NewGameArchiver 创建归档器
func NewGameArchiver(repo ArchiveRepository) *GameArchiver {
	return &GameArchiver{repo: repo}
}

// ArchiveGame 游戏结束时归档最终比分
func (a *GameArchiver) ArchiveGame(ctx context.Context, view *model.SessionView, scores map[string]int) error {
	if view == nil || view.Game == nil {
		return fmt.Errorf("归档需要完整的会话快照")
	}

	record := &model.GameRecord{
		GameCode:    view.Game.ID,
		StartedAt:   time.UnixMilli(view.Game.Timestamp),
		CompletedAt: time.UnixMilli(view.Game.Completed),
		RoundCount:  len(view.Rounds),
	}

	results := make([]model.PlayerResult, 0, len(view.Players))
	for _, p := range view.Players {
		results = append(results, model.PlayerResult{
			PlayerName: p.Name,
			Score:      scores[p.ID],
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i := range results {
		results[i].Rank = i + 1
	}
	record.Results = results

	if len(results) > 0 {
		record.WinnerName = results[0].PlayerName
		record.WinnerScore = results[0].Score
	}

	if err := a.repo.SaveRecord(ctx, record); err != nil {
		return err
	}
	logger.Info("对局已归档",
		logger.String("gameCode", record.GameCode),
		logger.String("winner", record.WinnerName),
		logger.Int("players", len(results)))
	return nil
}
