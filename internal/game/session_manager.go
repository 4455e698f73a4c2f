package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/utils"
	"github.com/wfunc/imposter-game/internal/words"
	"go.uber.org/zap"
)

// ManagerConfig 房间管理器配置
type ManagerConfig struct {
	Logger      *zap.Logger
	Store       RoomStore
	Clock       Clock
	Words       words.Supplier
	Notifier    Notifier
	Recorder    Recorder
	Settings    Settings
	Durations   Durations
	MinPlayers  int
	MaxPlayers  int
	CodeLength  int
	IdleTimeout time.Duration
	// Seed 为每个房间生成随机种子，为空时使用时钟
	Seed func() int64
}

// Manager 房间管理器：房间码到房间的映射以及对外的操作入口
type Manager struct {
	mu          sync.RWMutex
	createMu    sync.Mutex
	store       RoomStore
	clock       Clock
	words       words.Supplier
	notifier    Notifier
	recorder    Recorder
	machine     *StateMachine
	logger      *zap.Logger
	settings    Settings
	durations   Durations
	minPlayers  int
	maxPlayers  int
	codeLength  int
	idleTimeout time.Duration
	seed        func() int64
}

// NewManager 创建房间管理器
func NewManager(cfg *ManagerConfig) *Manager {
	m := &Manager{
		store:       cfg.Store,
		clock:       cfg.Clock,
		words:       cfg.Words,
		notifier:    cfg.Notifier,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		settings:    cfg.Settings,
		durations:   cfg.Durations,
		minPlayers:  cfg.MinPlayers,
		maxPlayers:  cfg.MaxPlayers,
		codeLength:  cfg.CodeLength,
		idleTimeout: cfg.IdleTimeout,
		seed:        cfg.Seed,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.words == nil {
		m.words = words.Default()
	}
	if m.recorder == nil {
		m.recorder = NopRecorder{}
	}
	if m.settings == (Settings{}) {
		m.settings = DefaultSettings()
	}
	if m.durations == (Durations{}) {
		m.durations = DefaultDurations()
	}
	if m.codeLength <= 0 {
		m.codeLength = 4
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = 30 * time.Minute
	}
	if m.seed == nil {
		m.seed = func() int64 { return m.clock.Now().UnixNano() }
	}
	m.machine = NewStateMachine(m.logger)
	return m
}

// SetNotifier 设置状态推送（传输层创建后注入）
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// UpdateDefaults 更新新房间使用的默认设置，已有房间不受影响
func (m *Manager) UpdateDefaults(settings Settings, durations Durations) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.durations = durations
	m.logger.Info("房间默认设置已更新",
		zap.Int("imposter_count", settings.ImposterCount),
		zap.Duration("message_time", settings.MessageTime),
		zap.Duration("vote_time", settings.VoteTime),
		zap.Int("max_rounds", settings.MaxRounds))
}

// CreateSession 创建房间，房主为唯一玩家
func (m *Manager) CreateSession(hostID, hostName string) (string, error) {
	m.mu.RLock()
	settings, durations, notifier := m.settings, m.durations, m.notifier
	m.mu.RUnlock()

	// 生成房间码和保存房间需要串行，避免重复
	m.createMu.Lock()
	defer m.createMu.Unlock()

	code, err := utils.UniqueRoomCode(m.codeLength, 20, m.store.Exists)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	session := NewSession(code, hostID, hostName, settings, SessionOptions{
		Machine:    m.machine,
		Words:      m.words,
		Rand:       rand.New(rand.NewSource(m.seed())),
		Now:        m.clock.Now,
		Logger:     m.logger,
		MinPlayers: m.minPlayers,
	})
	room := NewRoom(session, RoomOptions{
		Clock:     m.clock,
		Durations: durations,
		Notifier:  notifier,
		Recorder:  m.recorder,
		Logger:    m.logger,
	})
	m.store.Set(code, room)

	m.logger.Info("创建房间",
		zap.String("room_code", code),
		zap.String("host_id", hostID))

	room.Publish()
	return code, nil
}

// room 查找房间
func (m *Manager) room(code string) (*Room, error) {
	room, ok := m.store.Get(code)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrRoomNotFound, "房间码: %s", code)
	}
	return room, nil
}

// JoinSession 加入房间
func (m *Manager) JoinSession(code, playerID, playerName string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	return room.Join(playerID, playerName, m.maxPlayers)
}

// StartGame 开始游戏
func (m *Manager) StartGame(code, requesterID string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	if err := room.Start(requesterID); err != nil {
		return err
	}
	m.logger.Info("游戏开始", zap.String("room_code", code))
	return nil
}

// SendMessage 发言
func (m *Manager) SendMessage(code, playerID, text string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	return room.SendMessage(playerID, text)
}

// CastVote 投票
func (m *Manager) CastVote(code, voterID, targetID string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	return room.CastVote(voterID, targetID)
}

// ReturnToLobby 房主在游戏结束后返回大厅
func (m *Manager) ReturnToLobby(code, requesterID string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	return room.ReturnToLobby(requesterID)
}

// Disconnect 玩家断开，房间没有在线玩家时销毁
func (m *Manager) Disconnect(code, playerID string) error {
	room, err := m.room(code)
	if err != nil {
		return err
	}
	empty, err := room.Disconnect(playerID)
	if err != nil {
		return err
	}
	if empty {
		m.store.Delete(code)
		m.logger.Info("房间已空，销毁房间", zap.String("room_code", code))
	}
	return nil
}

// Snapshot 获取房间公开快照
func (m *Manager) Snapshot(code string) (*PublicSnapshot, error) {
	room, err := m.room(code)
	if err != nil {
		return nil, err
	}
	return room.Snapshot(), nil
}

// PrivateSnapshot 获取玩家私有快照
func (m *Manager) PrivateSnapshot(code, playerID string) (*PrivateSnapshot, error) {
	room, err := m.room(code)
	if err != nil {
		return nil, err
	}
	snap, ok := room.PrivateSnapshot(playerID)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotInRoom, "玩家ID: %s", playerID)
	}
	return snap, nil
}

// ActiveRooms 当前房间数
func (m *Manager) ActiveRooms() int {
	return m.store.Count()
}

// RoomStats 按阶段统计房间数
func (m *Manager) RoomStats() map[Phase]int {
	stats := make(map[Phase]int)
	for _, room := range m.store.List() {
		stats[room.Phase()]++
	}
	return stats
}

// CleanupIdleRooms 清理在大厅或结束阶段空闲过久的房间
func (m *Manager) CleanupIdleRooms() int {
	now := m.clock.Now()
	removed := 0
	for _, room := range m.store.List() {
		if !room.CloseIfIdle(now, m.idleTimeout) {
			continue
		}
		m.store.Delete(room.Code())
		removed++
		m.logger.Info("清理空闲房间", zap.String("room_code", room.Code()))
	}
	return removed
}

// StartCleanupTask 启动清理任务
func (m *Manager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("停止房间清理任务")
				return
			case <-ticker.C:
				m.CleanupIdleRooms()
			}
		}
	}()
}

// Shutdown 关闭所有房间并取消计时
func (m *Manager) Shutdown() {
	for _, room := range m.store.List() {
		room.Close()
		m.store.Delete(room.Code())
	}
	m.logger.Info("所有房间已关闭")
}
