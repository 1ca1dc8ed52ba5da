package scoring

import (
	"time"

	"live-quiz-service/internal/domain"
)

// Tally accumulates the answers accepted for one question.
type Tally struct {
	Answered    int
	Correct     int
	ResponseSum time.Duration
}

// Add records one accepted answer.
func (t *Tally) Add(correct bool, response time.Duration) {
	t.Answered++
	if correct {
		t.Correct++
	}
	t.ResponseSum += response
}

// AverageResponse is the mean latency over accepted answers, 0 when none arrived.
func (t Tally) AverageResponse() time.Duration {
	if t.Answered == 0 {
		return 0
	}
	return t.ResponseSum / time.Duration(t.Answered)
}

// Stats renders per-question statistics for a question set.
func Stats(set domain.QuestionSet, tallies []Tally) []domain.QuestionStats {
	stats := make([]domain.QuestionStats, len(set.Questions))
	for i, q := range set.Questions {
		var t Tally
		if i < len(tallies) {
			t = tallies[i]
		}
		stats[i] = domain.QuestionStats{
			Index:               i,
			QuestionID:          q.ID,
			Text:                q.Text,
			CorrectOptionID:     q.CorrectOptionID,
			Answered:            t.Answered,
			Correct:             t.Correct,
			AverageResponseTime: t.AverageResponse().Seconds(),
		}
	}
	return stats
}
