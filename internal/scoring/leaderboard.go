package scoring

import (
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// Record is the scoring state of one participant.
type Record struct {
	ParticipantID     string
	Nickname          string
	Score             int
	CorrectAnswers    int
	TotalResponseTime time.Duration
	JoinOrder         int
}

// RecordOf projects a participant onto its scoring record.
func RecordOf(p *domain.Participant) Record {
	return Record{
		ParticipantID:     p.ID,
		Nickname:          p.Nickname,
		Score:             p.Score,
		CorrectAnswers:    p.CorrectAnswers,
		TotalResponseTime: p.TotalResponseTime,
		JoinOrder:         p.JoinOrder,
	}
}

// Rank orders records by score desc, cumulative response time asc, then join order asc,
// and assigns strict ranks starting at 1. The input slice is not modified.
func Rank(records []Record) []domain.LeaderboardEntry {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalResponseTime != b.TotalResponseTime {
			return a.TotalResponseTime < b.TotalResponseTime
		}
		return a.JoinOrder < b.JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, r := range sorted {
		entries[i] = domain.LeaderboardEntry{
			Rank:              i + 1,
			ParticipantID:     r.ParticipantID,
			Nickname:          r.Nickname,
			Score:             r.Score,
			CorrectAnswers:    r.CorrectAnswers,
			TotalResponseTime: r.TotalResponseTime.Seconds(),
		}
	}
	return entries
}
