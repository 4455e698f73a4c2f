package game

import (
	"time"
)

// Phase 游戏阶段
type Phase string

const (
	PhaseLobby          Phase = "LOBBY"           // 等待开始
	PhaseRoundInit      Phase = "ROUND_INIT"      // 回合初始化（瞬时）
	PhaseWordAssignment Phase = "WORD_ASSIGNMENT" // 分配词语
	PhaseMessaging      Phase = "MESSAGING"       // 轮流描述
	PhasePreVoting      Phase = "PRE_VOTING"      // 投票前等待
	PhaseVoting         Phase = "VOTING"          // 投票中
	PhaseVoteReveal     Phase = "VOTE_REVEAL"     // 公布票数
	PhaseResults        Phase = "RESULTS"         // 公布淘汰结果
	PhaseRoundEnd       Phase = "ROUND_END"       // 回合结束
	PhaseGameOver       Phase = "GAME_OVER"       // 游戏结束
)

// Trigger 状态机事件
type Trigger string

const (
	TriggerStart     Trigger = "start"           // 房主开始游戏
	TriggerExpire    Trigger = "expire"          // 阶段计时结束
	TriggerTurnDone  Trigger = "turn_done"       // 当前发言者已发言
	TriggerAllVoted  Trigger = "all_voted"       // 所有人已投票
	TriggerResetGame Trigger = "return_to_lobby" // 返回大厅
)

// 胜利方
const (
	WinnerCitizens  = "Citizens"
	WinnerImposters = "Imposters"
)

// 结果原因
const (
	ReasonImposterEliminated = "imposter eliminated"
	ReasonImpostersDominate  = "imposters dominate"
	ReasonTwoPlayersLeft     = "only two players left"
	ReasonNotEnoughPlayers   = "Not enough players"
	ReasonMaxRounds          = "Max rounds reached"
	ReasonTieOrNoVotes       = "Tie or no votes"
)

// 消息类型
const (
	MessageChat   = "chat"
	MessageSystem = "system"
)

// MinRoundPlayers 开始一个回合所需的最少活跃玩家数
const MinRoundPlayers = 3

// Player 玩家
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsSpectator  bool   `json:"is_spectator"`
	IsEliminated bool   `json:"is_eliminated"`
	IsImposter   bool   `json:"is_imposter"`
	Word         string `json:"word,omitempty"`
	Connected    bool   `json:"connected"`
}

// Active 是否参与本回合
func (p *Player) Active() bool {
	return p.Connected && !p.IsSpectator && !p.IsEliminated
}

// Message 聊天或系统消息
type Message struct {
	Type       string `json:"type"`
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Settings 房间设置，创建后不可修改
type Settings struct {
	ImposterCount int
	MessageTime   time.Duration
	VoteTime      time.Duration
	MaxRounds     int
}

// DefaultSettings 默认房间设置
func DefaultSettings() Settings {
	return Settings{
		ImposterCount: 1,
		MessageTime:   40 * time.Second,
		VoteTime:      30 * time.Second,
		MaxRounds:     5,
	}
}

// RoundResult 回合结果
type RoundResult struct {
	Eliminated     *string `json:"eliminated"`
	EliminatedName string  `json:"eliminated_name,omitempty"`
	WasImposter    bool    `json:"was_imposter"`
	Winner         string  `json:"winner,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// TimerInfo 计时器公开信息
type TimerInfo struct {
	Active  bool  `json:"active"`
	EndTime int64 `json:"end_time,omitempty"` // 毫秒时间戳
}
