package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// QuestionSetStore keeps confirmed question sets in process memory.
type QuestionSetStore struct {
	mu   sync.RWMutex
	sets map[string]domain.QuestionSet
}

func NewQuestionSetStore(seed ...domain.QuestionSet) *QuestionSetStore {
	s := &QuestionSetStore{sets: make(map[string]domain.QuestionSet, len(seed))}
	for _, set := range seed {
		s.sets[set.ID] = set
	}
	return s
}

func (s *QuestionSetStore) SaveQuestionSet(_ context.Context, set domain.QuestionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = set
	return nil
}

func (s *QuestionSetStore) LoadQuestionSet(_ context.Context, id string) (domain.QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[id]
	if !ok {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	return set, nil
}

func (s *QuestionSetStore) DeleteQuestionSet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return domain.ErrQuestionSetNotFound
	}
	delete(s.sets, id)
	return nil
}

// ListQuestionSets returns summaries, newest first.
func (s *QuestionSetStore) ListQuestionSets(_ context.Context) ([]domain.QuestionSetSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuestionSetSummary, 0, len(s.sets))
	for _, set := range s.sets {
		out = append(out, set.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
