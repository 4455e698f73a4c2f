package repository

import (
	"context"
	"time"

	"github.com/wfunc/imposter-game/internal/models"
	"gorm.io/gorm"
)

// GameRecordRepository 对局记录仓储接口
type GameRecordRepository interface {
	BaseRepository
	Create(ctx context.Context, record *models.GameRecord) error
	FindByID(ctx context.Context, id uint) (*models.GameRecord, error)
	FindByRoomCode(ctx context.Context, roomCode string, p *Pagination) ([]*models.GameRecord, error)
	List(ctx context.Context, p *Pagination) ([]*models.GameRecord, error)
	GetWinStatistics(ctx context.Context, startTime, endTime time.Time) (*WinStatistics, error)
}

// WinStatistics 胜负统计
type WinStatistics struct {
	TotalGames    int64   `json:"total_games"`
	CitizenWins   int64   `json:"citizen_wins"`
	ImposterWins  int64   `json:"imposter_wins"`
	NoWinner      int64   `json:"no_winner"`
	CitizenRate   float64 `json:"citizen_rate"`
	ImposterRate  float64 `json:"imposter_rate"`
	AverageRounds float64 `json:"average_rounds"`
}

// gameRecordRepo 对局记录仓储实现
type gameRecordRepo struct {
	*BaseRepo
}

// NewGameRecordRepository 创建对局记录仓储
func NewGameRecordRepository(db *gorm.DB) GameRecordRepository {
	return &gameRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建对局记录（含玩家）
func (r *gameRecordRepo) Create(ctx context.Context, record *models.GameRecord) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
}

// FindByID 根据ID查找
func (r *gameRecordRepo) FindByID(ctx context.Context, id uint) (*models.GameRecord, error) {
	var record models.GameRecord
	err := r.db.WithContext(ctx).
		Preload("Players").
		First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByRoomCode 查询某个房间的历史对局
func (r *gameRecordRepo) FindByRoomCode(ctx context.Context, roomCode string, p *Pagination) ([]*models.GameRecord, error) {
	var records []*models.GameRecord

	// 查询总数
	r.db.WithContext(ctx).
		Model(&models.GameRecord{}).
		Where("room_code = ?", roomCode).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Preload("Players").
		Where("room_code = ?", roomCode).
		Order("ended_at desc").
		Scopes(Paginate(p)).
		Find(&records).Error

	return records, err
}

// List 分页查询对局记录
func (r *gameRecordRepo) List(ctx context.Context, p *Pagination) ([]*models.GameRecord, error) {
	var records []*models.GameRecord

	// 查询总数
	r.db.WithContext(ctx).
		Model(&models.GameRecord{}).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Preload("Players").
		Order("ended_at desc").
		Scopes(Paginate(p)).
		Find(&records).Error

	return records, err
}

// GetWinStatistics 统计时间范围内的胜负
func (r *gameRecordRepo) GetWinStatistics(ctx context.Context, startTime, endTime time.Time) (*WinStatistics, error) {
	var rows []struct {
		Winner string
		Games  int64
		Rounds int64
	}

	err := r.db.WithContext(ctx).
		Model(&models.GameRecord{}).
		Select("winner, COUNT(*) as games, COALESCE(SUM(rounds), 0) as rounds").
		Where("ended_at BETWEEN ? AND ?", startTime, endTime).
		Group("winner").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &WinStatistics{}
	var rounds int64
	for _, row := range rows {
		stats.TotalGames += row.Games
		rounds += row.Rounds
		switch row.Winner {
		case "Citizens":
			stats.CitizenWins += row.Games
		case "Imposters":
			stats.ImposterWins += row.Games
		default:
			stats.NoWinner += row.Games
		}
	}

	if stats.TotalGames > 0 {
		total := float64(stats.TotalGames)
		stats.CitizenRate = float64(stats.CitizenWins) / total * 100
		stats.ImposterRate = float64(stats.ImposterWins) / total * 100
		stats.AverageRounds = float64(rounds) / total
	}

	return stats, nil
}
