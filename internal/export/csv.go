package export

import (
	"bytes"
	"encoding/csv"

	"live-quiz-service/internal/domain"
)

// renderCSV writes the leaderboard, a blank separator row, then per-question stats.
func renderCSV(results domain.Results) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Quiz", results.Session.Title},
		{"PIN", results.Session.PIN},
		{"Host", results.Session.HostName},
		{"Finished At", finishedAt(results)},
		{},
		leaderboardHeader,
	}
	for _, e := range results.Leaderboard {
		rows = append(rows, leaderboardRow(e))
	}
	rows = append(rows, []string{}, questionHeader)
	for _, q := range results.Questions {
		rows = append(rows, questionRow(q))
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
