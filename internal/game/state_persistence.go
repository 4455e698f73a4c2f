package game

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/logger"
	"github.com/wfunc/imposter-game/internal/models"
	"github.com/wfunc/imposter-game/internal/repository"
	"go.uber.org/zap"
)

// GameSummary 对局结束时的摘要
type GameSummary struct {
	RoomCode  string
	Winner    string
	Reason    string
	Rounds    int
	Settings  Settings
	StartedAt time.Time
	EndedAt   time.Time
	Players   []PlayerSummary
}

// PlayerSummary 玩家在最后一回合的状态
type PlayerSummary struct {
	ID           string
	Name         string
	IsImposter   bool
	IsEliminated bool
	IsSpectator  bool
}

// summarize 在房间锁内生成对局摘要
func summarize(s *Session, now time.Time) *GameSummary {
	summary := &GameSummary{
		RoomCode:  s.RoomCode,
		Rounds:    s.Round,
		Settings:  s.Settings,
		StartedAt: s.StartedAt,
		EndedAt:   now,
	}
	if summary.Rounds > s.Settings.MaxRounds {
		summary.Rounds = s.Settings.MaxRounds
	}
	if s.RoundResult != nil {
		summary.Winner = s.RoundResult.Winner
		summary.Reason = s.RoundResult.Reason
	}
	for _, p := range s.Players() {
		summary.Players = append(summary.Players, PlayerSummary{
			ID:           p.ID,
			Name:         p.Name,
			IsImposter:   p.IsImposter,
			IsEliminated: p.IsEliminated,
			IsSpectator:  p.IsSpectator,
		})
	}
	return summary
}

// toRecord 转换为数据库记录
func (g *GameSummary) toRecord() *models.GameRecord {
	record := &models.GameRecord{
		RoomCode:  g.RoomCode,
		Winner:    g.Winner,
		Reason:    g.Reason,
		Rounds:    g.Rounds,
		StartedAt: g.StartedAt,
		EndedAt:   g.EndedAt,
		Settings: models.JSONMap{
			"imposter_count": g.Settings.ImposterCount,
			"message_time":   int(g.Settings.MessageTime.Seconds()),
			"vote_time":      int(g.Settings.VoteTime.Seconds()),
			"max_rounds":     g.Settings.MaxRounds,
		},
	}
	if !g.StartedAt.IsZero() {
		record.Duration = int(g.EndedAt.Sub(g.StartedAt).Seconds())
	}
	for _, p := range g.Players {
		if !p.IsSpectator {
			record.PlayerCount++
		}
		if p.IsImposter {
			record.ImposterCount++
		}
		record.Players = append(record.Players, models.GameRecordPlayer{
			PlayerID:     p.ID,
			Name:         p.Name,
			IsImposter:   p.IsImposter,
			IsEliminated: p.IsEliminated,
			IsSpectator:  p.IsSpectator,
		})
	}
	return record
}

// Recorder 对局记录接口
//
// Record 在房间锁内调用，实现不能阻塞。
type Recorder interface {
	Record(summary *GameSummary)
}

// NopRecorder 不记录
type NopRecorder struct{}

// Record 实现 Recorder
func (NopRecorder) Record(*GameSummary) {}

// MemoryRecorder 内存记录（用于测试）
type MemoryRecorder struct {
	mu        sync.Mutex
	summaries []*GameSummary
}

// NewMemoryRecorder 创建内存记录器
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record 保存摘要
func (m *MemoryRecorder) Record(summary *GameSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
}

// Summaries 返回已记录的摘要
func (m *MemoryRecorder) Summaries() []*GameSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*GameSummary(nil), m.summaries...)
}

// DatabaseRecorder 异步写入数据库的记录器
//
// Record 只把摘要放入缓冲队列，由后台 worker 写库；队列满时丢弃并记录警告。
type DatabaseRecorder struct {
	repo    repository.GameRecordRepository
	logger  *zap.Logger
	queue   chan *GameSummary
	timeout time.Duration

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// NewDatabaseRecorder 创建数据库记录器
func NewDatabaseRecorder(repo repository.GameRecordRepository, logger *zap.Logger, queueSize int) *DatabaseRecorder {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseRecorder{
		repo:    repo,
		logger:  logger,
		queue:   make(chan *GameSummary, queueSize),
		timeout: 5 * time.Second,
	}
}

// Start 启动写库 worker
func (r *DatabaseRecorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for summary := range r.queue {
			if err := r.save(summary); err != nil {
				r.logger.Error("保存对局记录失败", zap.Error(err))
			}
		}
	}()
}

// Record 放入写库队列
func (r *DatabaseRecorder) Record(summary *GameSummary) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return
	}

	select {
	case r.queue <- summary:
	default:
		r.logger.Warn("对局记录队列已满，丢弃记录",
			zap.String("room_code", summary.RoomCode))
	}
}

// save 写入一条对局记录
func (r *DatabaseRecorder) save(summary *GameSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	record := summary.toRecord()
	err := r.repo.Create(ctx, record)
	logger.LogDatabaseOperation(r.logger, "insert", record.TableName(), time.Since(start), err)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrDatabaseInsert, "房间: %s", summary.RoomCode)
	}

	r.logger.Info("保存对局记录",
		zap.String("room_code", summary.RoomCode),
		zap.Uint("record_id", record.ID),
		zap.String("winner", summary.Winner))
	return nil
}

// Stop 停止接收新记录并等待队列写完
func (r *DatabaseRecorder) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
	})
}
