package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/models"
	"github.com/wfunc/imposter-game/internal/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// updateLog 记录推送内容
type updateLog struct {
	mu      sync.Mutex
	updates []*RoomUpdate
}

func (l *updateLog) NotifyRoom(update *RoomUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, update)
}

func (l *updateLog) last() *RoomUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) == 0 {
		return nil
	}
	return l.updates[len(l.updates)-1]
}

func (l *updateLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

func newTestRoom(t *testing.T, clock *fakeClock, settings Settings, notifier Notifier, recorder Recorder) *Room {
	t.Helper()
	session := NewSession("ROOM", "h", "Host", settings, SessionOptions{
		Rand: rand.New(rand.NewSource(5)),
		Now:  clock.Now,
	})
	room := NewRoom(session, RoomOptions{
		Clock:     clock,
		Durations: DefaultDurations(),
		Notifier:  notifier,
		Recorder:  recorder,
	})
	require.NoError(t, room.Join("p2", "P2", 0))
	require.NoError(t, room.Join("p3", "P3", 0))
	return room
}

func roomState(r *Room) (phase Phase, index int, timer TimerInfo) {
	r.inspect(func(s *Session) {
		phase, index, timer = s.State, s.CurrentTurnIndex, s.Timer
	})
	return
}

func TestRoom_StartArmsDeadline(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)

	_, _, timer := roomState(room)
	assert.False(t, timer.Active, "大厅不计时")
	assert.Equal(t, 0, clock.pending())

	t0 := clock.Now()
	require.NoError(t, room.Start("h"))
	phase, _, timer := roomState(room)
	assert.Equal(t, PhaseWordAssignment, phase)
	assert.True(t, timer.Active)
	assert.Equal(t, t0.Add(5*time.Second).UnixMilli(), timer.EndTime)
	assert.Equal(t, 1, clock.pending())

	clock.Advance(5 * time.Second)
	phase, index, timer := roomState(room)
	assert.Equal(t, PhaseMessaging, phase)
	assert.Equal(t, 0, index)
	assert.Equal(t, clock.Now().Add(40*time.Second).UnixMilli(), timer.EndTime)
	assert.Equal(t, 1, clock.pending())
}

func TestRoom_EarlyCompletionRearms(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)
	require.NoError(t, room.Start("h"))
	clock.Advance(5 * time.Second)

	var speaker string
	room.inspect(func(s *Session) { speaker = s.CurrentSpeaker() })

	clock.Advance(30 * time.Second)
	require.NoError(t, room.SendMessage(speaker, "hello"))
	_, index, timer := roomState(room)
	assert.Equal(t, 1, index)
	assert.Equal(t, clock.Now().Add(40*time.Second).UnixMilli(), timer.EndTime)

	// 原定的40秒到期点已经失效
	clock.Advance(15 * time.Second)
	_, index, _ = roomState(room)
	assert.Equal(t, 1, index)

	clock.Advance(25 * time.Second)
	_, index, _ = roomState(room)
	assert.Equal(t, 2, index)
}

func TestRoom_StaleCallbackIsNoop(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)
	require.NoError(t, room.Start("h"))
	clock.Advance(5 * time.Second)

	var speaker string
	room.inspect(func(s *Session) { speaker = s.CurrentSpeaker() })
	require.NoError(t, room.SendMessage(speaker, "hello"))

	var before []Message
	room.inspect(func(s *Session) { before = append([]Message(nil), s.Messages...) })

	require.True(t, clock.fireStale())
	phase, index, _ := roomState(room)
	assert.Equal(t, PhaseMessaging, phase)
	assert.Equal(t, 1, index)
	room.inspect(func(s *Session) { assert.Equal(t, before, s.Messages) })
}

func TestRoom_CloseCancelsDeadline(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)
	require.NoError(t, room.Start("h"))

	room.Close()
	assert.True(t, room.Closed())
	assert.Equal(t, 0, clock.pending())

	clock.Advance(time.Minute)
	phase, _, timer := roomState(room)
	assert.Equal(t, PhaseWordAssignment, phase)
	assert.False(t, timer.Active)

	err := room.SendMessage("h", "hi")
	assert.Equal(t, apperrors.ErrRoomNotFound, apperrors.GetCode(err))

	// 已关闭的房间不再触发回调
	assert.True(t, clock.fireStale())
	phase, _, _ = roomState(room)
	assert.Equal(t, PhaseWordAssignment, phase)
}

func TestRoom_NotifiesPrivateSnapshots(t *testing.T) {
	clock := newFakeClock()
	log := &updateLog{}
	room := newTestRoom(t, clock, DefaultSettings(), log, nil)

	joins := log.count()
	assert.Equal(t, 2, joins)

	require.NoError(t, room.Start("h"))
	update := log.last()
	require.NotNil(t, update)
	assert.Equal(t, "ROOM", update.RoomCode)
	assert.Equal(t, PhaseWordAssignment, update.Public.State)
	require.Len(t, update.Private, 3)

	imposters := 0
	for id, priv := range update.Private {
		assert.Equal(t, id, priv.PlayerID)
		assert.NotEmpty(t, priv.Word)
		if priv.IsImposter {
			imposters++
		}
	}
	assert.Equal(t, 1, imposters)

	empty, err := room.Disconnect("p3")
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Len(t, log.last().Private, 2, "断线玩家不推送私有数据")

	// 计时推进也会推送
	n := log.count()
	clock.Advance(5 * time.Second)
	assert.Greater(t, log.count(), n)
	assert.Equal(t, PhaseMessaging, log.last().Public.State)
}

func TestRoom_FailedIntentDoesNotNotify(t *testing.T) {
	clock := newFakeClock()
	log := &updateLog{}
	room := newTestRoom(t, clock, DefaultSettings(), log, nil)

	n := log.count()
	err := room.Start("p2")
	assert.Equal(t, apperrors.ErrInvalidIntent, apperrors.GetCode(err))
	assert.Equal(t, n, log.count())
}

func TestRoom_JoinRoomFull(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)

	err := room.Join("p4", "P4", 3)
	assert.Equal(t, apperrors.ErrRoomFull, apperrors.GetCode(err))

	// 断线玩家不占名额
	_, err = room.Disconnect("p3")
	require.NoError(t, err)
	assert.NoError(t, room.Join("p4", "P4", 3))
}

func TestRoom_DisconnectAllCloses(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)
	require.NoError(t, room.Start("h"))

	for _, id := range []string{"h", "p2"} {
		empty, err := room.Disconnect(id)
		require.NoError(t, err)
		assert.False(t, empty)
	}
	empty, err := room.Disconnect("p3")
	require.NoError(t, err)
	assert.True(t, empty)
	assert.True(t, room.Closed())
	assert.Equal(t, 0, clock.pending())
}

// playToImposterElimination 所有人投内鬼并推进到游戏结束
func playToImposterElimination(t *testing.T, clock *fakeClock, room *Room) {
	t.Helper()
	require.NoError(t, room.Start("h"))
	// 分配词语5秒 + 三人描述各40秒 + 投票前10秒
	clock.Advance(5*time.Second + 3*40*time.Second + 10*time.Second)
	phase, _, _ := roomState(room)
	require.Equal(t, PhaseVoting, phase)

	var imp string
	var voters []string
	room.inspect(func(s *Session) {
		for _, p := range s.ActivePlayers() {
			voters = append(voters, p.ID)
			if p.IsImposter {
				imp = p.ID
			}
		}
	})
	for _, id := range voters {
		require.NoError(t, room.CastVote(id, imp))
	}

	clock.Advance(4*time.Second + 5*time.Second)
	phase, _, timer := roomState(room)
	require.Equal(t, PhaseGameOver, phase)
	assert.False(t, timer.Active)
}

func TestRoom_RecordsGameOver(t *testing.T) {
	clock := newFakeClock()
	recorder := NewMemoryRecorder()
	room := newTestRoom(t, clock, DefaultSettings(), nil, recorder)

	playToImposterElimination(t, clock, room)

	summaries := recorder.Summaries()
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "ROOM", s.RoomCode)
	assert.Equal(t, WinnerCitizens, s.Winner)
	assert.Equal(t, ReasonImposterEliminated, s.Reason)
	assert.Equal(t, 1, s.Rounds)
	assert.Len(t, s.Players, 3)
	assert.True(t, s.EndedAt.After(s.StartedAt))

	// 返回大厅再结束一次才会再记录
	require.NoError(t, room.ReturnToLobby("h"))
	assert.Len(t, recorder.Summaries(), 1)
	assert.Equal(t, 0, clock.pending())
}

func TestRoom_MaxRoundsByTimersOnly(t *testing.T) {
	clock := newFakeClock()
	recorder := NewMemoryRecorder()
	settings := DefaultSettings()
	settings.MaxRounds = 1
	room := newTestRoom(t, clock, settings, nil, recorder)
	require.NoError(t, room.Start("h"))

	clock.Advance(10 * time.Minute)
	phase, _, _ := roomState(room)
	assert.Equal(t, PhaseGameOver, phase)
	assert.Equal(t, 0, clock.pending())

	summaries := recorder.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, ReasonMaxRounds, summaries[0].Reason)
	assert.Equal(t, 1, summaries[0].Rounds)
	assert.Empty(t, summaries[0].Winner)
}

func TestRoom_CloseIfIdle(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)

	assert.False(t, room.CloseIfIdle(clock.Now(), time.Minute))
	assert.False(t, room.Closed())

	// 新玩家加入刷新活跃时间
	clock.Advance(2 * time.Minute)
	require.NoError(t, room.Join("p4", "P4", 0))
	assert.False(t, room.CloseIfIdle(clock.Now(), time.Minute))
	assert.False(t, room.Closed())

	assert.True(t, room.CloseIfIdle(clock.Now().Add(2*time.Minute), time.Minute))
	assert.True(t, room.Closed())
	assert.False(t, room.CloseIfIdle(clock.Now().Add(time.Hour), time.Minute))

	err := room.Join("p5", "P5", 0)
	assert.Equal(t, apperrors.ErrRoomNotFound, apperrors.GetCode(err))
}

func TestRoom_CloseIfIdleSkipsActiveGame(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, nil)

	require.NoError(t, room.Start("h"))
	assert.False(t, room.CloseIfIdle(clock.Now().Add(time.Hour), time.Minute), "进行中的房间不清理")
	assert.False(t, room.Closed())
}

func TestDeadline(t *testing.T) {
	clock := newFakeClock()
	d := NewDeadline(clock)
	assert.False(t, d.Pending())

	fired := []uint64{}
	fire := func(gen uint64) { fired = append(fired, gen) }

	d.Arm(time.Second, fire)
	d.Arm(2*time.Second, fire)
	assert.Equal(t, 1, clock.pending(), "同一时刻只有一个定时器")
	assert.True(t, d.Pending())

	clock.Advance(2 * time.Second)
	require.Len(t, fired, 1)
	assert.True(t, d.Current(fired[0]))

	d.Cancel()
	assert.False(t, d.Current(fired[0]))
	assert.False(t, d.Pending())
}

func TestDurationsFor(t *testing.T) {
	settings := DefaultSettings()
	d := DefaultDurations()

	cases := map[Phase]time.Duration{
		PhaseWordAssignment: 5 * time.Second,
		PhaseMessaging:      40 * time.Second,
		PhasePreVoting:      10 * time.Second,
		PhaseVoting:         30 * time.Second,
		PhaseVoteReveal:     4 * time.Second,
		PhaseResults:        5 * time.Second,
		PhaseRoundEnd:       3 * time.Second,
	}
	for phase, want := range cases {
		got, timed := d.For(phase, settings)
		assert.True(t, timed, string(phase))
		assert.Equal(t, want, got, string(phase))
	}

	for _, phase := range []Phase{PhaseLobby, PhaseRoundInit, PhaseGameOver} {
		_, timed := d.For(phase, settings)
		assert.False(t, timed, string(phase))
	}
}

func TestDatabaseRecorder(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)
	repo := repository.NewGameRecordRepository(db)

	recorder := NewDatabaseRecorder(repo, nil, 4)
	recorder.Start()

	clock := newFakeClock()
	room := newTestRoom(t, clock, DefaultSettings(), nil, recorder)
	playToImposterElimination(t, clock, room)

	recorder.Stop()
	// 停止后的记录被忽略
	recorder.Record(&GameSummary{RoomCode: "LATE"})

	records, err := repo.List(context.Background(), repository.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, "ROOM", record.RoomCode)
	assert.Equal(t, WinnerCitizens, record.Winner)
	assert.Equal(t, 3, record.PlayerCount)
	assert.Equal(t, 1, record.ImposterCount)
	assert.Len(t, record.Players, 3)
	assert.Greater(t, record.Duration, 0)
}

// failingRepo 写入总是失败的仓储
type failingRepo struct {
	repository.GameRecordRepository
}

func (failingRepo) Create(context.Context, *models.GameRecord) error {
	return errors.New("disk full")
}

func TestDatabaseRecorder_SaveFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := NewDatabaseRecorder(failingRepo{}, zap.New(core), 1)

	err := recorder.save(&GameSummary{RoomCode: "ROOM", Winner: WinnerCitizens})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDatabaseInsert, apperrors.GetCode(err))

	entries := logs.FilterMessage("数据库操作失败").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "insert", entries[0].ContextMap()["operation"])
	assert.Equal(t, "game_records", entries[0].ContextMap()["table"])
}
