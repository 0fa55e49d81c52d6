package loadtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Score tiers. Most submissions land in the average band, with a thin
// tail of elite and very low scores.
const (
	tierAverage = iota
	tierHigh
	tierLow
	tierElite
	tierVeryLow
	tierWide
	tierCount
)

// generate builds n submissions spread over the configured players and
// games. Every submission carries a fresh request id.
func generate(cfg Config, rng *rand.Rand) []Submission {
	players := make([]string, cfg.Players)
	for i := range players {
		players[i] = uuid.NewString()
	}
	games := make([]string, cfg.Games)
	for i := range games {
		games[i] = fmt.Sprintf("game_%d", i+1)
	}

	out := make([]Submission, cfg.Submissions)
	for i := range out {
		out[i] = Submission{
			RequestID: uuid.NewString(),
			PlayerID:  players[rng.IntN(len(players))],
			GameID:    games[rng.IntN(len(games))],
			Score:     tieredScore(rng),
		}
	}
	return out
}

// tieredScore draws a score from one of the tiers.
func tieredScore(rng *rand.Rand) int64 {
	switch rng.IntN(tierCount) {
	case tierAverage:
		return 3000 + rng.Int64N(4000)
	case tierHigh:
		return 7000 + rng.Int64N(2000)
	case tierLow:
		return 100 + rng.Int64N(2900)
	case tierElite:
		return 9000 + rng.Int64N(1000)
	case tierVeryLow:
		return rng.Int64N(1000)
	default:
		return rng.Int64N(10000)
	}
}

// expectedTop returns the highest submitted score per game.
func expectedTop(subs []Submission) map[string]int64 {
	top := make(map[string]int64)
	for _, s := range subs {
		if cur, ok := top[s.GameID]; !ok || s.Score > cur {
			top[s.GameID] = s.Score
		}
	}
	return top
}
