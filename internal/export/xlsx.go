package export

import (
	"github.com/xuri/excelize/v2"

	"live-quiz-service/internal/domain"
)

const (
	leaderboardSheet = "Leaderboard"
	questionsSheet   = "Questions"
)

func renderXLSX(results domain.Results) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it rather than leaving an empty sheet behind.
	if err := f.SetSheetName("Sheet1", leaderboardSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, err
	}

	board := [][]any{toAny(leaderboardHeader)}
	for _, e := range results.Leaderboard {
		board = append(board, []any{e.Rank, e.Nickname, e.Score, e.CorrectAnswers, e.TotalResponseTime})
	}
	if err := writeRows(f, leaderboardSheet, board); err != nil {
		return nil, err
	}

	questions := [][]any{toAny(questionHeader)}
	for _, q := range results.Questions {
		questions = append(questions, []any{q.Index + 1, q.Text, q.CorrectOptionID, q.Answered, q.Correct, accuracy(q), q.AverageResponseTime})
	}
	if err := writeRows(f, questionsSheet, questions); err != nil {
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for _, sheet := range []string{leaderboardSheet, questionsSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
