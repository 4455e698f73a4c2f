package game

// PublicPlayer 公开的玩家信息，不含词语和身份
type PublicPlayer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsSpectator  bool   `json:"is_spectator"`
	IsEliminated bool   `json:"is_eliminated"`
	Connected    bool   `json:"connected"`
}

// SettingsView 房间设置（秒）
type SettingsView struct {
	ImposterCount int `json:"imposter_count"`
	MessageTime   int `json:"message_time"`
	VoteTime      int `json:"vote_time"`
	MaxRounds     int `json:"max_rounds"`
}

// PublicSnapshot 所有玩家可见的房间状态
type PublicSnapshot struct {
	RoomCode         string            `json:"room_code"`
	HostID           string            `json:"host_id"`
	Players          []PublicPlayer    `json:"players"`
	State            Phase             `json:"state"`
	Round            int               `json:"round"`
	TurnOrder        []string          `json:"turn_order"`
	CurrentTurnIndex int               `json:"current_turn_index"`
	Messages         []Message         `json:"messages"`
	Votes            map[string]string `json:"votes,omitempty"`
	VoteCounts       map[string]int    `json:"vote_counts,omitempty"`
	RoundResult      *RoundResult      `json:"round_result"`
	Settings         SettingsView      `json:"settings"`
	Timer            TimerInfo         `json:"timer"`
}

// PrivateSnapshot 仅发送给玩家本人的信息
type PrivateSnapshot struct {
	PlayerID   string `json:"player_id"`
	Word       string `json:"word"`
	IsImposter bool   `json:"is_imposter"`
}

// PublicSnapshot 生成公开快照，投票阶段隐藏票型
func (s *Session) PublicSnapshot() *PublicSnapshot {
	snap := &PublicSnapshot{
		RoomCode:         s.RoomCode,
		HostID:           s.HostID,
		Players:          make([]PublicPlayer, 0, len(s.order)),
		State:            s.State,
		Round:            s.Round,
		TurnOrder:        append([]string(nil), s.TurnOrder...),
		CurrentTurnIndex: s.CurrentTurnIndex,
		Messages:         append([]Message(nil), s.Messages...),
		Settings: SettingsView{
			ImposterCount: s.Settings.ImposterCount,
			MessageTime:   int(s.Settings.MessageTime.Seconds()),
			VoteTime:      int(s.Settings.VoteTime.Seconds()),
			MaxRounds:     s.Settings.MaxRounds,
		},
		Timer: s.Timer,
	}

	for _, p := range s.Players() {
		snap.Players = append(snap.Players, PublicPlayer{
			ID:           p.ID,
			Name:         p.Name,
			IsSpectator:  p.IsSpectator,
			IsEliminated: p.IsEliminated,
			Connected:    p.Connected,
		})
	}

	if s.State != PhaseVoting {
		snap.Votes = make(map[string]string, len(s.Votes))
		for k, v := range s.Votes {
			snap.Votes[k] = v
		}
		snap.VoteCounts = make(map[string]int, len(s.VoteCounts))
		for k, v := range s.VoteCounts {
			snap.VoteCounts[k] = v
		}
	}

	if s.RoundResult != nil {
		r := *s.RoundResult
		snap.RoundResult = &r
	}

	return snap
}

// PrivateSnapshot 生成玩家私有快照
func (s *Session) PrivateSnapshot(playerID string) (*PrivateSnapshot, bool) {
	p, ok := s.players[playerID]
	if !ok {
		return nil, false
	}
	return &PrivateSnapshot{
		PlayerID:   p.ID,
		Word:       p.Word,
		IsImposter: p.IsImposter,
	}, true
}
