package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func sampleSet(id string) domain.QuestionSet {
	return domain.QuestionSet{
		ID:    id,
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "a", Text: "3"},
					{ID: "b", Text: "4"},
				},
				CorrectOptionID:  "b",
				TimeLimitSeconds: 10,
			},
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestQuestionSetStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionSetStore()

	if err := store.SaveQuestionSet(ctx, sampleSet("set-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	newer := sampleSet("set-2")
	newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
	_ = store.SaveQuestionSet(ctx, newer)

	got, err := store.LoadQuestionSet(ctx, "set-1")
	if err != nil || got.ID != "set-1" {
		t.Fatalf("load: %+v %v", got, err)
	}
	list, _ := store.ListQuestionSets(ctx)
	if len(list) != 2 || list[0].ID != "set-2" || list[0].QuestionCount != 1 {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := store.DeleteQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.LoadQuestionSet(ctx, "set-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.DeleteQuestionSet(ctx, "set-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestQuestionSetCacheCaches(t *testing.T) {
	backing := &countingStore{QuestionSetStore: NewQuestionSetStore(sampleSet("set-1"))}
	cache := NewQuestionSetCache(backing, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cache.LoadQuestionSet(context.Background(), "set-1"); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if backing.loads() != 1 {
		t.Fatalf("expected one backing load, got %d", backing.loads())
	}
}

func TestQuestionSetCacheExpires(t *testing.T) {
	backing := &countingStore{QuestionSetStore: NewQuestionSetStore(sampleSet("set-1"))}
	cache := NewQuestionSetCache(backing, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, _ = cache.LoadQuestionSet(context.Background(), "set-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.LoadQuestionSet(context.Background(), "set-1")
	if backing.loads() != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", backing.loads())
	}
}

func TestQuestionSetCacheDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	cache := NewQuestionSetCache(NewQuestionSetStore(), time.Minute)
	if err := cache.SaveQuestionSet(ctx, sampleSet("set-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := cache.DeleteQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.LoadQuestionSet(ctx, "set-1"); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestQuestionSetCacheCollapsesConcurrentLoads(t *testing.T) {
	backing := &countingStore{QuestionSetStore: NewQuestionSetStore(sampleSet("set-1")), delay: 20 * time.Millisecond}
	cache := NewQuestionSetCache(backing, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.LoadQuestionSet(context.Background(), "set-1")
		}()
	}
	wg.Wait()
	if backing.loads() != 1 {
		t.Fatalf("expected concurrent loads to collapse, got %d", backing.loads())
	}
}

func TestSessionRegistryReserveIsExclusive(t *testing.T) {
	ctx := context.Background()
	reg := NewSessionRegistry()
	first := app.NewSession("123456", sampleSet("set-1"), "host")
	second := app.NewSession("123456", sampleSet("set-1"), "host")

	if err := reg.Reserve(ctx, first); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := reg.Reserve(ctx, second); !errors.Is(err, domain.ErrPINInUse) {
		t.Fatalf("expected pin in use, got %v", err)
	}
	got, ok := reg.Get("123456")
	if !ok || got != first {
		t.Fatalf("expected first session to own the pin")
	}
	if len(reg.List()) != 1 {
		t.Fatalf("expected one session listed")
	}

	reg.Retire(ctx, "123456")
	if _, ok := reg.Get("123456"); ok {
		t.Fatalf("expected session retired")
	}
	if err := reg.Reserve(ctx, second); err != nil {
		t.Fatalf("expected pin reusable after retire: %v", err)
	}
}

type countingStore struct {
	app.QuestionSetStore
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (s *countingStore) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	time.Sleep(s.delay)
	return s.QuestionSetStore.LoadQuestionSet(ctx, id)
}

func (s *countingStore) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
