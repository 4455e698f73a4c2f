package game

import (
	"math/rand"

	"github.com/wfunc/imposter-game/internal/words"
)

// imposterCountFor 计算本回合内鬼人数
func imposterCountFor(configured, active int) int {
	limit := active / 2
	if configured < limit {
		return configured
	}
	return limit
}

// shuffleIDs 返回打乱后的副本（Fisher-Yates）
func shuffleIDs(ids []string, r *rand.Rand) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// assignRoles 为活跃玩家分配身份和词语
//
// 打乱后的前 count 个玩家成为内鬼，其余玩家拿到普通词。
func assignRoles(players []*Player, count int, pair words.Pair, r *rand.Rand) {
	ids := make([]string, len(players))
	byID := make(map[string]*Player, len(players))
	for i, p := range players {
		ids[i] = p.ID
		byID[p.ID] = p
		p.IsImposter = false
		p.Word = ""
	}

	for i, id := range shuffleIDs(ids, r) {
		p := byID[id]
		if i < count {
			p.IsImposter = true
			p.Word = pair.Imposter
		} else {
			p.Word = pair.Common
		}
	}
}
