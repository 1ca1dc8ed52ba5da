// Package export renders finished session results into downloadable files.
package export

import (
	"fmt"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
)

// Format is a supported export file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Artifact is a rendered export ready to be served.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", domain.NewValidationError("format", fmt.Sprintf("unsupported export format %q", raw))
	}
}

// Render produces the artifact for results in the requested format.
func Render(results domain.Results, format string) (Artifact, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return Artifact{}, err
	}
	var data []byte
	var contentType string
	switch f {
	case FormatXLSX:
		data, err = renderXLSX(results)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		data, err = renderPDF(results)
		contentType = "application/pdf"
	default:
		data, err = renderCSV(results)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s export: %w", f, err)
	}
	return Artifact{
		Filename:    filename(results, f),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func filename(results domain.Results, f Format) string {
	return fmt.Sprintf("quiz-results-%s-%s.%s", results.Session.PIN, results.FinishedAt.UTC().Format("20060102-1504"), f)
}

var leaderboardHeader = []string{"Rank", "Player", "Score", "Correct Answers", "Total Response Time (s)"}

var questionHeader = []string{"#", "Question", "Correct Option", "Answered", "Correct", "Accuracy (%)", "Avg Response Time (s)"}

func leaderboardRow(e domain.LeaderboardEntry) []string {
	return []string{
		fmt.Sprint(e.Rank),
		e.Nickname,
		fmt.Sprint(e.Score),
		fmt.Sprint(e.CorrectAnswers),
		seconds(e.TotalResponseTime),
	}
}

func questionRow(q domain.QuestionStats) []string {
	return []string{
		fmt.Sprint(q.Index + 1),
		q.Text,
		q.CorrectOptionID,
		fmt.Sprint(q.Answered),
		fmt.Sprint(q.Correct),
		fmt.Sprintf("%.1f", accuracy(q)),
		seconds(q.AverageResponseTime),
	}
}

func accuracy(q domain.QuestionStats) float64 {
	if q.Answered == 0 {
		return 0
	}
	return 100 * float64(q.Correct) / float64(q.Answered)
}

func seconds(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func finishedAt(results domain.Results) string {
	return results.FinishedAt.UTC().Format(time.RFC3339)
}
