package app

import (
	"sort"
	"time"

	"livequiz-service/internal/domain"
)

// Rank derives the ordered standings from a participant snapshot: score
// descending, then correct count descending, then display name ascending.
// Ranks are dense and shared only when both score and correct count are
// exactly equal. At most limit entries are returned; limit <= 0 keeps all.
func Rank(code string, participants []domain.Participant, limit int, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			CorrectCount:  p.CorrectCount,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].CorrectCount != entries[j].CorrectCount {
			return entries[i].CorrectCount > entries[j].CorrectCount
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score || entries[i].CorrectCount != entries[i-1].CorrectCount {
			rank++
		}
		entries[i].Rank = rank
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return domain.Leaderboard{SessionCode: code, Entries: entries, UpdatedAt: now}
}
