package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// QuestionSetCache fronts a slower store with a TTL cache so session creation
// does not hit the database for every lobby.
type QuestionSetCache struct {
	app.QuestionSetStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetCache(backing app.QuestionSetStore, ttl time.Duration) *QuestionSetCache {
	return &QuestionSetCache{
		QuestionSetStore: backing,
		ttl:              ttl,
		clock:            time.Now,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:            make(map[string]cachedSet),
	}
}

func (c *QuestionSetCache) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	if set, ok := c.lookup(id); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if set, ok := c.lookup(id); ok {
			return set, nil
		}
		set, err := c.QuestionSetStore.LoadQuestionSet(ctx, id)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		c.store(set)
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *QuestionSetCache) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	if err := c.QuestionSetStore.SaveQuestionSet(ctx, set); err != nil {
		return err
	}
	c.store(set)
	return nil
}

func (c *QuestionSetCache) DeleteQuestionSet(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
	return c.QuestionSetStore.DeleteQuestionSet(ctx, id)
}

func (c *QuestionSetCache) lookup(id string) (domain.QuestionSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

func (c *QuestionSetCache) store(set domain.QuestionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[set.ID] = cachedSet{set: set, expiresAt: c.clock().Add(c.ttlWithJitter())}
}

// ttlWithJitter adds up to 10% so entries loaded together do not expire together.
// Callers hold c.mu.
func (c *QuestionSetCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
