package game

import (
	"fmt"
	"math/rand"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/words"
	"go.uber.org/zap"
)

// Session 一个房间的游戏会话
//
// Session 不加锁，所有调用都必须由所属 Room 串行化。
type Session struct {
	RoomCode         string
	HostID           string
	State            Phase
	Round            int
	TurnOrder        []string
	CurrentTurnIndex int
	Messages         []Message
	Votes            map[string]string
	VoteCounts       map[string]int
	RoundResult      *RoundResult
	Settings         Settings
	Timer            TimerInfo
	CreatedAt        time.Time
	StartedAt        time.Time

	players    map[string]*Player
	order      []string
	minPlayers int

	machine *StateMachine
	words   words.Supplier
	rng     *rand.Rand
	now     func() time.Time
	logger  *zap.Logger

	// step 在阶段或发言者变化时递增，Room 据此重新设置计时
	step uint64
}

// SessionOptions 会话依赖
type SessionOptions struct {
	Machine    *StateMachine
	Words      words.Supplier
	Rand       *rand.Rand
	Now        func() time.Time
	Logger     *zap.Logger
	MinPlayers int
}

// NewSession 创建处于大厅阶段的会话，房主为唯一玩家
func NewSession(roomCode, hostID, hostName string, settings Settings, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Machine == nil {
		opts.Machine = NewStateMachine(opts.Logger)
	}
	if opts.Words == nil {
		opts.Words = words.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinPlayers < MinRoundPlayers {
		opts.MinPlayers = MinRoundPlayers
	}

	s := &Session{
		RoomCode:   roomCode,
		HostID:     hostID,
		State:      PhaseLobby,
		Round:      1,
		Votes:      make(map[string]string),
		VoteCounts: make(map[string]int),
		Settings:   settings,
		players:    make(map[string]*Player),
		minPlayers: opts.MinPlayers,
		machine:    opts.Machine,
		words:      opts.Words,
		rng:        opts.Rand,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	s.CreatedAt = s.now()
	s.addPlayer(hostID, hostName)
	return s
}

// Player 获取玩家
func (s *Session) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players 按加入顺序返回玩家
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// ActivePlayers 按加入顺序返回活跃玩家
func (s *Session) ActivePlayers() []*Player {
	var out []*Player
	for _, id := range s.order {
		if p := s.players[id]; p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedCount 已连接玩家数
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// CurrentSpeaker 当前发言者，不在描述阶段时返回空
func (s *Session) CurrentSpeaker() string {
	if s.State != PhaseMessaging || s.CurrentTurnIndex >= len(s.TurnOrder) {
		return ""
	}
	return s.TurnOrder[s.CurrentTurnIndex]
}

func (s *Session) addPlayer(id, name string) *Player {
	p := &Player{
		ID:          id,
		Name:        name,
		IsSpectator: s.State != PhaseLobby,
		Connected:   true,
	}
	s.players[id] = p
	s.order = append(s.order, id)
	return p
}

// AddPlayer 加入玩家，游戏开始后加入的玩家为观战者
func (s *Session) AddPlayer(id, name string) (*Player, error) {
	if _, exists := s.players[id]; exists {
		return nil, apperrors.Newf(apperrors.ErrPlayerExists, "玩家ID: %s", id)
	}
	p := s.addPlayer(id, name)
	s.logger.Info("玩家加入",
		zap.String("room_code", s.RoomCode),
		zap.String("player_id", id),
		zap.Bool("spectator", p.IsSpectator))
	return p, nil
}

// Start 房主开始游戏
func (s *Session) Start(requesterID string) error {
	if requesterID != s.HostID {
		return apperrors.New(apperrors.ErrInvalidIntent, "只有房主可以开始游戏")
	}
	if s.State != PhaseLobby {
		return s.phaseError("开始游戏")
	}
	if n := s.ConnectedCount(); n < s.minPlayers {
		return apperrors.Newf(apperrors.ErrInsufficientPlayers, "当前%d人，至少需要%d人", n, s.minPlayers)
	}

	s.machine.Fire(s, TriggerStart)
	return nil
}

// SendMessage 当前发言者发送描述
func (s *Session) SendMessage(playerID, text string) error {
	if s.State != PhaseMessaging {
		return s.phaseError("发言")
	}
	if s.CurrentSpeaker() != playerID {
		return apperrors.New(apperrors.ErrInvalidIntent, "还没轮到该玩家发言")
	}

	p := s.players[playerID]
	s.Messages = append(s.Messages, Message{
		Type:       MessageChat,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Text:       text,
		Timestamp:  s.now().UnixMilli(),
	})

	s.machine.Fire(s, TriggerTurnDone)
	return nil
}

// CastVote 投票
//
// 目标必须是本回合发言顺序中未被淘汰的玩家，可以投给自己。
func (s *Session) CastVote(voterID, targetID string) error {
	if s.State != PhaseVoting {
		return s.phaseError("投票")
	}
	voter, ok := s.players[voterID]
	if !ok || !voter.Active() {
		return apperrors.New(apperrors.ErrInvalidIntent, "该玩家没有投票资格")
	}
	if _, voted := s.Votes[voterID]; voted {
		return apperrors.New(apperrors.ErrInvalidIntent, "已经投过票")
	}
	if !s.validTarget(targetID) {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "无效的投票目标: %s", targetID)
	}

	s.Votes[voterID] = targetID
	if s.allVoted() {
		s.machine.Fire(s, TriggerAllVoted)
	}
	return nil
}

// phaseError 当前阶段不接受该操作，游戏结束后返回 ErrGameOver
func (s *Session) phaseError(action string) error {
	if s.State == PhaseGameOver {
		return apperrors.Newf(apperrors.ErrGameOver, "不能%s，请先返回大厅", action)
	}
	return apperrors.Newf(apperrors.ErrInvalidIntent, "当前阶段不能%s: %s", action, s.State)
}

// validTarget 投票目标是否有效
func (s *Session) validTarget(targetID string) bool {
	p, ok := s.players[targetID]
	if !ok || p.IsEliminated {
		return false
	}
	for _, id := range s.TurnOrder {
		if id == targetID {
			return true
		}
	}
	return false
}

// allVoted 是否所有活跃玩家都已投票
func (s *Session) allVoted() bool {
	eligible := 0
	for _, p := range s.players {
		if !p.Active() {
			continue
		}
		eligible++
		if _, ok := s.Votes[p.ID]; !ok {
			return false
		}
	}
	return eligible > 0
}

// Disconnect 标记玩家断开，返回房间是否已没有在线玩家
func (s *Session) Disconnect(playerID string) (bool, error) {
	p, ok := s.players[playerID]
	if !ok {
		return false, apperrors.Newf(apperrors.ErrNotInRoom, "玩家ID: %s", playerID)
	}
	if !p.Connected {
		return s.ConnectedCount() == 0, nil
	}
	p.Connected = false

	if s.ConnectedCount() == 0 {
		return true, nil
	}

	if s.HostID == playerID {
		for _, id := range s.order {
			if s.players[id].Connected {
				s.HostID = id
				break
			}
		}
		s.logger.Info("房主变更",
			zap.String("room_code", s.RoomCode),
			zap.String("host_id", s.HostID))
	}

	switch s.State {
	case PhaseMessaging:
		if s.CurrentSpeaker() == playerID {
			s.machine.Fire(s, TriggerTurnDone)
		}
	case PhaseVoting:
		if s.allVoted() {
			s.machine.Fire(s, TriggerAllVoted)
		}
	}
	return false, nil
}

// Expire 当前阶段计时结束
func (s *Session) Expire() bool {
	return s.machine.Fire(s, TriggerExpire)
}

// ReturnToLobby 游戏结束后房主返回大厅
func (s *Session) ReturnToLobby(requesterID string) error {
	if requesterID != s.HostID {
		return apperrors.New(apperrors.ErrInvalidIntent, "只有房主可以返回大厅")
	}
	if !s.machine.Fire(s, TriggerResetGame) {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "当前阶段不能返回大厅: %s", s.State)
	}
	return nil
}

// resetRound 清空回合数据和所有玩家的身份，已连接的玩家重新成为参与者
func (s *Session) resetRound() {
	s.Messages = nil
	s.Votes = make(map[string]string)
	s.VoteCounts = make(map[string]int)
	s.TurnOrder = nil
	s.CurrentTurnIndex = 0

	for _, p := range s.players {
		p.IsImposter = false
		p.Word = ""
		if p.Connected {
			p.IsSpectator = false
			p.IsEliminated = false
		}
	}
}

// startRound 初始化回合：分配身份和词语并生成发言顺序
func (s *Session) startRound() Phase {
	s.resetRound()
	s.RoundResult = nil

	active := s.ActivePlayers()
	if len(active) < MinRoundPlayers {
		s.RoundResult = &RoundResult{Reason: ReasonNotEnoughPlayers}
		return PhaseGameOver
	}

	pair := s.words.Pick(s.rng)
	count := imposterCountFor(s.Settings.ImposterCount, len(active))
	assignRoles(active, count, pair, s.rng)

	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	s.TurnOrder = shuffleIDs(ids, s.rng)

	s.announce(fmt.Sprintf("Round %d has started", s.Round))
	s.announce("Words have been assigned")

	s.logger.Info("回合开始",
		zap.String("room_code", s.RoomCode),
		zap.Int("round", s.Round),
		zap.Int("players", len(active)),
		zap.Int("imposters", count))

	return PhaseWordAssignment
}

// nextSpeaker 跳过已断开的发言者并公告下一位，所有人发言完毕时进入投票前阶段
func (s *Session) nextSpeaker() Phase {
	for s.CurrentTurnIndex < len(s.TurnOrder) {
		p := s.players[s.TurnOrder[s.CurrentTurnIndex]]
		if p.Connected {
			s.announce(fmt.Sprintf("It is now %s's turn to speak", p.Name))
			return PhaseMessaging
		}
		s.CurrentTurnIndex++
	}
	return PhasePreVoting
}

// processVotes 计票并淘汰最高票玩家
func (s *Session) processVotes() {
	s.VoteCounts = tallyVotes(s.Votes)

	target, ok := plurality(s.VoteCounts)
	if !ok {
		s.RoundResult = &RoundResult{Reason: ReasonTieOrNoVotes}
		return
	}

	p := s.players[target]
	p.IsEliminated = true
	id := p.ID
	s.RoundResult = &RoundResult{
		Eliminated:     &id,
		EliminatedName: p.Name,
		WasImposter:    p.IsImposter,
	}
}

// announceElimination 公告淘汰结果
func (s *Session) announceElimination() {
	r := s.RoundResult
	if r == nil || r.Eliminated == nil {
		s.announce("No one was eliminated (Tie/No votes)")
		return
	}
	role := "a Citizen"
	if r.WasImposter {
		role = "an Imposter"
	}
	s.announce(fmt.Sprintf("%s was eliminated (%s)", r.EliminatedName, role))
}

// announce 追加系统消息
func (s *Session) announce(text string) {
	s.Messages = append(s.Messages, Message{
		Type:      MessageSystem,
		Text:      text,
		Timestamp: s.now().UnixMilli(),
	})
}
