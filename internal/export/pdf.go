package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"live-quiz-service/internal/domain"
)

var (
	leaderboardWidths = []float64{15, 70, 30, 35, 40}
	questionWidths    = []float64{10, 80, 25, 20, 20, 25}
)

func renderPDF(results domain.Results) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Results: %s", results.Session.Title)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("PIN %s  |  Host %s  |  Finished %s",
		results.Session.PIN, results.Session.HostName, finishedAt(results))), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	table(pdf, tr, "Leaderboard", leaderboardHeader, leaderboardWidths, func(add func([]string)) {
		for _, e := range results.Leaderboard {
			add(leaderboardRow(e))
		}
	})
	pdf.Ln(6)

	// The PDF layout drops the average response column to fit the page width.
	header := questionHeader[:len(questionHeader)-1]
	table(pdf, tr, "Questions", header, questionWidths, func(add func([]string)) {
		for _, q := range results.Questions {
			row := questionRow(q)
			add(row[:len(row)-1])
		}
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func table(pdf *gofpdf.Fpdf, tr func(string) string, title string, header []string, widths []float64, rows func(add func([]string))) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	rows(func(cells []string) {
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, tr(truncate(c, 48)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
