package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuestionSetStore keeps confirmed question sets as JSONB documents in Postgres.
type QuestionSetStore struct {
	pool *pgxpool.Pool
}

func NewQuestionSetStore(pool *pgxpool.Pool) *QuestionSetStore {
	return &QuestionSetStore{pool: pool}
}

func (s *QuestionSetStore) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO question_sets (id, title, question_count, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, question_count = EXCLUDED.question_count, data = EXCLUDED.data`,
		set.ID, set.Title, len(set.Questions), data, set.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert question set: %w", err)
	}
	return nil
}

func (s *QuestionSetStore) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w", err)
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("unmarshal question set: %w", err)
	}
	return set, nil
}

func (s *QuestionSetStore) DeleteQuestionSet(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM question_sets WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionSetNotFound
	}
	return nil
}

func (s *QuestionSetStore) ListQuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, question_count, created_at FROM question_sets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list question sets: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionSetSummary
	for rows.Next() {
		var sum domain.QuestionSetSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.QuestionCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question set: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
