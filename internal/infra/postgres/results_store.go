package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"live-quiz-service/internal/domain"
)

type sessionResult struct {
	bun.BaseModel `bun:"table:session_results"`

	SessionID     string         `bun:"session_id,pk"`
	PIN           string         `bun:"pin,notnull"`
	QuestionSetID string         `bun:"question_set_id,notnull"`
	Title         string         `bun:"title,notnull"`
	HostName      string         `bun:"host_name,notnull"`
	PlayerCount   int            `bun:"player_count,notnull"`
	Results       domain.Results `bun:"results,type:jsonb,notnull"`
	FinishedAt    time.Time      `bun:"finished_at,notnull"`
}

// OpenBun connects bun to Postgres through pgdriver.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// ResultStore archives the results of finished sessions.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) SaveResults(ctx context.Context, results domain.Results) error {
	row := &sessionResult{
		SessionID:     results.Session.ID,
		PIN:           results.Session.PIN,
		QuestionSetID: results.Session.QuestionSetID,
		Title:         results.Session.Title,
		HostName:      results.Session.HostName,
		PlayerCount:   len(results.Leaderboard),
		Results:       results,
		FinishedAt:    results.FinishedAt,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("results = EXCLUDED.results").
		Set("player_count = EXCLUDED.player_count").
		Set("finished_at = EXCLUDED.finished_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive results: %w", err)
	}
	return nil
}

// LoadResults returns the archived results of a session.
func (s *ResultStore) LoadResults(ctx context.Context, sessionID string) (domain.Results, error) {
	row := new(sessionResult)
	err := s.db.NewSelect().Model(row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Results{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Results{}, fmt.Errorf("load results: %w", err)
	}
	return row.Results, nil
}

// ResultsForQuestionSet lists archived runs of a question set, newest first.
func (s *ResultStore) ResultsForQuestionSet(ctx context.Context, questionSetID string, limit int) ([]domain.Results, error) {
	var rows []sessionResult
	err := s.db.NewSelect().
		Model(&rows).
		Where("question_set_id = ?", questionSetID).
		Order("finished_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]domain.Results, len(rows))
	for i, r := range rows {
		out[i] = r.Results
	}
	return out, nil
}
