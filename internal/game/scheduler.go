package game

import (
	"time"
)

// Clock 时间源，测试中可替换
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// realClock 系统时钟
type realClock struct{}

// RealClock 返回系统时钟
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Durations 固定阶段时长，描述和投票时长来自房间设置
type Durations struct {
	WordAssignment time.Duration
	PreVoting      time.Duration
	VoteReveal     time.Duration
	Results        time.Duration
	RoundEnd       time.Duration
}

// DefaultDurations 默认阶段时长
func DefaultDurations() Durations {
	return Durations{
		WordAssignment: 5 * time.Second,
		PreVoting:      10 * time.Second,
		VoteReveal:     4 * time.Second,
		Results:        5 * time.Second,
		RoundEnd:       3 * time.Second,
	}
}

// For 返回阶段时长，不计时的阶段返回 false
func (d Durations) For(phase Phase, settings Settings) (time.Duration, bool) {
	switch phase {
	case PhaseWordAssignment:
		return d.WordAssignment, true
	case PhaseMessaging:
		return settings.MessageTime, true
	case PhasePreVoting:
		return d.PreVoting, true
	case PhaseVoting:
		return settings.VoteTime, true
	case PhaseVoteReveal:
		return d.VoteReveal, true
	case PhaseResults:
		return d.Results, true
	case PhaseRoundEnd:
		return d.RoundEnd, true
	default:
		return 0, false
	}
}

// Deadline 房间唯一的截止时间句柄
//
// 每次 Arm 都会取消上一个定时器并生成新的代数，回调携带代数，
// 过期代数的回调由调用方丢弃。Deadline 不加锁，由所属 Room 保护。
type Deadline struct {
	clock Clock
	timer Timer
	gen   uint64
}

// NewDeadline 创建截止时间句柄
func NewDeadline(clock Clock) *Deadline {
	return &Deadline{clock: clock}
}

// Arm 设置新的截止时间，返回到期时刻
func (d *Deadline) Arm(dur time.Duration, fire func(gen uint64)) time.Time {
	d.Cancel()
	gen := d.gen
	d.timer = d.clock.AfterFunc(dur, func() { fire(gen) })
	return d.clock.Now().Add(dur)
}

// Cancel 取消当前定时器，已触发但尚未执行的回调也会失效
func (d *Deadline) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Current 回调代数是否仍然有效
func (d *Deadline) Current(gen uint64) bool {
	return d.timer != nil && gen == d.gen
}

// Pending 是否有未到期的定时器
func (d *Deadline) Pending() bool {
	return d.timer != nil
}
