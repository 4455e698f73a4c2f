package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StateTransition 状态转换定义
//
// To 为固定目标阶段；Route 不为空时由 Route 计算目标阶段。
type StateTransition struct {
	From   Phase
	Event  Trigger
	To     Phase
	Route  func(s *Session) Phase
	Action func(s *Session)
}

// EnterAction 进入阶段时执行的动作，返回非空阶段表示立即继续转换
type EnterAction func(s *Session) Phase

// StateMachine 阶段状态机
//
// 转换表对所有房间共享，本身无状态；调用方负责串行化同一房间的调用。
type StateMachine struct {
	transitions map[string]StateTransition
	onEnter     map[Phase]EnterAction
	logger      *zap.Logger
}

// NewStateMachine 创建状态机
func NewStateMachine(logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sm := &StateMachine{
		transitions: make(map[string]StateTransition),
		onEnter:     make(map[Phase]EnterAction),
		logger:      logger,
	}
	sm.initTransitions()
	return sm
}

// initTransitions 初始化转换规则
func (sm *StateMachine) initTransitions() {
	// 大厅 -> 回合初始化
	sm.addTransition(StateTransition{From: PhaseLobby, Event: TriggerStart, To: PhaseRoundInit,
		Action: func(s *Session) {
			s.StartedAt = s.now()
		},
	})

	// 分配词语 -> 描述
	sm.addTransition(StateTransition{From: PhaseWordAssignment, Event: TriggerExpire, To: PhaseMessaging})

	// 描述阶段：发言或超时都推进到下一位
	for _, event := range []Trigger{TriggerTurnDone, TriggerExpire} {
		sm.addTransition(StateTransition{From: PhaseMessaging, Event: event,
			Route: func(s *Session) Phase {
				s.CurrentTurnIndex++
				return s.nextSpeaker()
			},
		})
	}

	// 投票前 -> 投票
	sm.addTransition(StateTransition{From: PhasePreVoting, Event: TriggerExpire, To: PhaseVoting})

	// 投票 -> 公布票数（超时或全部投完）
	for _, event := range []Trigger{TriggerExpire, TriggerAllVoted} {
		sm.addTransition(StateTransition{From: PhaseVoting, Event: event, To: PhaseVoteReveal,
			Action: func(s *Session) {
				s.processVotes()
			},
		})
	}

	sm.addTransition(StateTransition{From: PhaseVoteReveal, Event: TriggerExpire, To: PhaseResults})

	// 结果 -> 回合结束 或 游戏结束
	sm.addTransition(StateTransition{From: PhaseResults, Event: TriggerExpire,
		Route: func(s *Session) Phase {
			winner, reason, over := evaluateWin(s.Players())
			if !over {
				return PhaseRoundEnd
			}
			if s.RoundResult == nil {
				s.RoundResult = &RoundResult{}
			}
			s.RoundResult.Winner = winner
			s.RoundResult.Reason = reason
			return PhaseGameOver
		},
	})

	// 回合结束 -> 下一回合 或 游戏结束
	sm.addTransition(StateTransition{From: PhaseRoundEnd, Event: TriggerExpire,
		Route: func(s *Session) Phase {
			s.Round++
			if s.Round > s.Settings.MaxRounds {
				s.RoundResult = &RoundResult{Reason: ReasonMaxRounds}
				return PhaseGameOver
			}
			return PhaseRoundInit
		},
	})

	// 游戏结束 -> 大厅
	sm.addTransition(StateTransition{From: PhaseGameOver, Event: TriggerResetGame, To: PhaseLobby,
		Action: func(s *Session) {
			s.resetRound()
			s.Round = 1
			s.RoundResult = nil
			s.StartedAt = time.Time{}
		},
	})

	sm.onEnter[PhaseRoundInit] = func(s *Session) Phase {
		return s.startRound()
	}
	sm.onEnter[PhaseMessaging] = func(s *Session) Phase {
		s.CurrentTurnIndex = 0
		return s.nextSpeaker()
	}
	sm.onEnter[PhasePreVoting] = func(s *Session) Phase {
		s.announce("Voting page is gonna open soon...")
		return ""
	}
	sm.onEnter[PhaseVoting] = func(s *Session) Phase {
		s.announce("Voting has begun")
		return ""
	}
	sm.onEnter[PhaseVoteReveal] = func(s *Session) Phase {
		s.announce("Voting ended. Revealing votes...")
		return ""
	}
	sm.onEnter[PhaseResults] = func(s *Session) Phase {
		s.announceElimination()
		return ""
	}
	sm.onEnter[PhaseRoundEnd] = func(s *Session) Phase {
		s.announce("Next round starting soon...")
		return ""
	}
	sm.onEnter[PhaseGameOver] = func(s *Session) Phase {
		reason := ""
		if s.RoundResult != nil {
			reason = s.RoundResult.Reason
		}
		s.announce(fmt.Sprintf("Game Over: %s", reason))
		return ""
	}
}

// addTransition 添加状态转换
func (sm *StateMachine) addTransition(transition StateTransition) {
	sm.transitions[sm.transitionKey(transition.From, transition.Event)] = transition
}

// transitionKey 生成转换键
func (sm *StateMachine) transitionKey(phase Phase, event Trigger) string {
	return fmt.Sprintf("%s:%s", phase, event)
}

// CanTransition 检查当前阶段是否处理该事件
func (sm *StateMachine) CanTransition(phase Phase, event Trigger) bool {
	_, ok := sm.transitions[sm.transitionKey(phase, event)]
	return ok
}

// Fire 触发事件
//
// 未定义的（阶段, 事件）组合不做任何修改并返回 false。
func (sm *StateMachine) Fire(s *Session, event Trigger) bool {
	from := s.State
	transition, ok := sm.transitions[sm.transitionKey(from, event)]
	if !ok {
		sm.logger.Debug("忽略事件",
			zap.String("room_code", s.RoomCode),
			zap.String("phase", string(from)),
			zap.String("event", string(event)))
		return false
	}

	if transition.Action != nil {
		transition.Action(s)
	}

	to := transition.To
	if transition.Route != nil {
		to = transition.Route(s)
	}

	s.step++
	if to != from {
		sm.enter(s, to)
	}

	sm.logger.Debug("状态转换",
		zap.String("room_code", s.RoomCode),
		zap.String("from", string(from)),
		zap.String("to", string(s.State)),
		zap.String("event", string(event)))

	return true
}

// enter 进入阶段并执行进入动作，瞬时阶段会继续转换
func (sm *StateMachine) enter(s *Session, phase Phase) {
	for phase != "" {
		s.State = phase
		action, ok := sm.onEnter[phase]
		if !ok {
			return
		}
		next := action(s)
		if next == phase {
			return
		}
		phase = next
	}
}
