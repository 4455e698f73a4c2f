package game

// tallyVotes 统计每个目标获得的票数
func tallyVotes(votes map[string]string) map[string]int {
	counts := make(map[string]int, len(votes))
	for _, target := range votes {
		counts[target]++
	}
	return counts
}

// plurality 返回唯一最高票的目标，平票或无票时返回 false
func plurality(counts map[string]int) (string, bool) {
	best := 0
	target := ""
	tie := false
	for id, n := range counts {
		switch {
		case n > best:
			best, target, tie = n, id, false
		case n == best:
			tie = true
		}
	}
	if best == 0 || tie {
		return "", false
	}
	return target, true
}

// evaluateWin 检查胜负条件
//
// 只统计活跃玩家（已连接、非观战、未淘汰），按顺序匹配第一条规则。
func evaluateWin(players []*Player) (winner, reason string, over bool) {
	active, imposters := 0, 0
	for _, p := range players {
		if !p.Active() {
			continue
		}
		active++
		if p.IsImposter {
			imposters++
		}
	}

	switch {
	case imposters == 0:
		return WinnerCitizens, ReasonImposterEliminated, true
	case imposters >= active-imposters:
		return WinnerImposters, ReasonImpostersDominate, true
	case active <= 2:
		return WinnerImposters, ReasonTwoPlayersLeft, true
	}
	return "", "", false
}
