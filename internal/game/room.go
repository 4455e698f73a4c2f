package game

import (
	"sync"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"go.uber.org/zap"
)

// RoomUpdate 一次状态变更后需要推送的数据
type RoomUpdate struct {
	RoomCode string
	Public   *PublicSnapshot
	Private  map[string]*PrivateSnapshot // 仅包含已连接玩家
}

// Notifier 状态推送接口
//
// NotifyRoom 在房间锁内调用，实现不能阻塞，也不能回调 Room。
type Notifier interface {
	NotifyRoom(update *RoomUpdate)
}

// NotifierFunc 函数适配器
type NotifierFunc func(update *RoomUpdate)

// NotifyRoom 实现 Notifier
func (f NotifierFunc) NotifyRoom(update *RoomUpdate) {
	f(update)
}

type nopNotifier struct{}

func (nopNotifier) NotifyRoom(*RoomUpdate) {}

// Room 房间：会话加上串行化锁和截止时间句柄
//
// 玩家操作和计时回调都通过 mutate 执行，同一房间同一时刻只有一个修改。
type Room struct {
	mu           sync.Mutex
	session      *Session
	deadline     *Deadline
	durations    Durations
	clock        Clock
	notifier     Notifier
	recorder     Recorder
	logger       *zap.Logger
	closed       bool
	lastActivity time.Time
}

// RoomOptions 房间依赖
type RoomOptions struct {
	Clock     Clock
	Durations Durations
	Notifier  Notifier
	Recorder  Recorder
	Logger    *zap.Logger
}

// NewRoom 创建房间
func NewRoom(session *Session, opts RoomOptions) *Room {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Room{
		session:      session,
		deadline:     NewDeadline(opts.Clock),
		durations:    opts.Durations,
		clock:        opts.Clock,
		notifier:     opts.Notifier,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		lastActivity: opts.Clock.Now(),
	}
}

// Code 房间码
func (r *Room) Code() string {
	return r.session.RoomCode
}

// mutate 在房间锁内执行修改，成功后重设计时、记录对局并推送状态
func (r *Room) mutate(fn func(s *Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateLocked(fn)
}

func (r *Room) mutateLocked(fn func(s *Session) error) error {
	if r.closed {
		return apperrors.Newf(apperrors.ErrRoomNotFound, "房间码: %s", r.session.RoomCode)
	}

	s := r.session
	prevState := s.State
	prevStep := s.step

	if err := fn(s); err != nil {
		return err
	}

	r.lastActivity = r.clock.Now()
	if s.step != prevStep {
		r.rearm()
	}
	if prevState != PhaseGameOver && s.State == PhaseGameOver {
		r.recorder.Record(summarize(s, r.clock.Now()))
	}
	r.notify()
	return nil
}

// rearm 按当前阶段设置截止时间
func (r *Room) rearm() {
	s := r.session
	d, timed := r.durations.For(s.State, s.Settings)
	if !timed {
		r.deadline.Cancel()
		s.Timer = TimerInfo{}
		return
	}
	end := r.deadline.Arm(d, r.onDeadline)
	s.Timer = TimerInfo{Active: true, EndTime: end.UnixMilli()}
}

// onDeadline 计时回调，过期或已关闭的房间直接忽略
func (r *Room) onDeadline(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.deadline.Current(gen) {
		return
	}

	phase := r.session.State
	err := r.mutateLocked(func(s *Session) error {
		s.Expire()
		return nil
	})
	if err != nil {
		r.logger.Warn("阶段超时处理失败",
			zap.String("room_code", r.session.RoomCode),
			zap.String("phase", string(phase)),
			zap.Error(err))
	}
}

// notify 推送公开快照和每个在线玩家的私有快照
func (r *Room) notify() {
	s := r.session
	update := &RoomUpdate{
		RoomCode: s.RoomCode,
		Public:   s.PublicSnapshot(),
		Private:  make(map[string]*PrivateSnapshot),
	}
	for _, p := range s.Players() {
		if !p.Connected {
			continue
		}
		if priv, ok := s.PrivateSnapshot(p.ID); ok {
			update.Private[p.ID] = priv
		}
	}
	r.notifier.NotifyRoom(update)
}

// Join 加入房间
func (r *Room) Join(playerID, name string, maxPlayers int) error {
	return r.mutate(func(s *Session) error {
		if maxPlayers > 0 && s.ConnectedCount() >= maxPlayers {
			return apperrors.Newf(apperrors.ErrRoomFull, "最多%d人", maxPlayers)
		}
		_, err := s.AddPlayer(playerID, name)
		return err
	})
}

// Start 开始游戏
func (r *Room) Start(requesterID string) error {
	return r.mutate(func(s *Session) error {
		return s.Start(requesterID)
	})
}

// SendMessage 发言
func (r *Room) SendMessage(playerID, text string) error {
	return r.mutate(func(s *Session) error {
		return s.SendMessage(playerID, text)
	})
}

// CastVote 投票
func (r *Room) CastVote(voterID, targetID string) error {
	return r.mutate(func(s *Session) error {
		return s.CastVote(voterID, targetID)
	})
}

// ReturnToLobby 返回大厅
func (r *Room) ReturnToLobby(requesterID string) error {
	return r.mutate(func(s *Session) error {
		return s.ReturnToLobby(requesterID)
	})
}

// Disconnect 玩家断开，返回房间是否已空
func (r *Room) Disconnect(playerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	empty := false
	err := r.mutateLocked(func(s *Session) error {
		var err error
		empty, err = s.Disconnect(playerID)
		return err
	})
	if err != nil {
		return false, err
	}
	if empty {
		r.closeLocked()
	}
	return empty, nil
}

// Close 关闭房间并取消计时
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.deadline.Cancel()
	r.session.Timer = TimerInfo{}
}

// Closed 房间是否已关闭
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Snapshot 当前公开快照
func (r *Room) Snapshot() *PublicSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.PublicSnapshot()
}

// PrivateSnapshot 玩家私有快照
func (r *Room) PrivateSnapshot(playerID string) (*PrivateSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.PrivateSnapshot(playerID)
}

// Phase 当前阶段
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.State
}

// CloseIfIdle 在大厅或游戏结束阶段空闲超时则关闭房间，检查和关闭在同一次加锁内完成
func (r *Room) CloseIfIdle(now time.Time, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if r.session.State != PhaseLobby && r.session.State != PhaseGameOver {
		return false
	}
	if now.Sub(r.lastActivity) <= timeout {
		return false
	}
	r.closeLocked()
	return true
}

// inspect 在锁内读取会话（测试和统计使用）
func (r *Room) inspect(fn func(s *Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.session)
}

// Publish 推送当前状态
func (r *Room) Publish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.notify()
	}
}
