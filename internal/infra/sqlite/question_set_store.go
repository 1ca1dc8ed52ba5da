// Package sqlite stores question sets in a local SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"live-quiz-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS question_sets (
	id             TEXT    PRIMARY KEY,
	title          TEXT    NOT NULL,
	question_count INTEGER NOT NULL,
	data           TEXT    NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS question_sets_created_at_idx ON question_sets (created_at DESC);
`

// QuestionSetStore is an app.QuestionSetStore backed by SQLite.
type QuestionSetStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*QuestionSetStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &QuestionSetStore{db: db}, nil
}

func (s *QuestionSetStore) Close() error {
	return s.db.Close()
}

func (s *QuestionSetStore) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("sqlite: marshal question set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO question_sets (id, title, question_count, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, question_count=excluded.question_count, data=excluded.data`,
		set.ID, set.Title, len(set.Questions), string(data), set.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: save question set: %w", err)
	}
	return nil
}

func (s *QuestionSetStore) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM question_sets WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("sqlite: load question set: %w", err)
	}
	var set domain.QuestionSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("sqlite: decode question set: %w", err)
	}
	return set, nil
}

func (s *QuestionSetStore) DeleteQuestionSet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM question_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete question set: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrQuestionSetNotFound
	}
	return nil
}

func (s *QuestionSetStore) ListQuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, question_count, created_at FROM question_sets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list question sets: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionSetSummary
	for rows.Next() {
		var (
			sum     domain.QuestionSetSummary
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.QuestionCount, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan question set: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
