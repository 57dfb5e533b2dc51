package app

import (
	"math"
	"time"

	"livequiz-service/internal/domain"
)

// Score evaluates one submission against a question. Correctness requires
// the selected option ids to match the question's correct set exactly; a
// partial match on a multi-select question earns nothing. A correct answer
// earns the base points plus a speed bonus that decays linearly over the
// time limit.
func Score(q domain.Question, selected []string, latency, timeLimit time.Duration, basePoints, maxSpeedBonus int) domain.ScoreResult {
	if !sameOptionSet(selected, q.CorrectOptionIDs()) {
		return domain.ScoreResult{}
	}

	points := basePoints
	if q.Points > 0 {
		points = q.Points
	}

	bonus := 0
	if timeLimit > 0 && maxSpeedBonus > 0 {
		ratio := float64(latency) / float64(timeLimit)
		bonus = int(math.Round(float64(maxSpeedBonus) * (1 - ratio)))
		if bonus < 0 {
			bonus = 0
		}
		if bonus > maxSpeedBonus {
			bonus = maxSpeedBonus
		}
	}

	return domain.ScoreResult{Correct: true, Points: points + bonus, SpeedBonus: bonus}
}

// sameOptionSet compares two option-id slices as sets. Duplicates within a
// submission collapse; an empty selection never matches.
func sameOptionSet(selected, correct []string) bool {
	if len(correct) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		set[id] = struct{}{}
	}
	if len(set) != len(correct) {
		return false
	}
	for _, id := range correct {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
