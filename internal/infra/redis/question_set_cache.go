package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// QuestionSetCache caches question sets in Redis and falls back to the backing store on a miss.
// Sets are stored as JSON: SET quiz:set:{id} <json> EX ttl
type QuestionSetCache struct {
	app.QuestionSetStore
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	log    *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionSetCache(client *redis.Client, backing app.QuestionSetStore, ttl time.Duration, log *slog.Logger) *QuestionSetCache {
	if log == nil {
		log = slog.Default()
	}
	return &QuestionSetCache{
		QuestionSetStore: backing,
		client:           client,
		ttl:              ttl,
		log:              log.With("component", "redis_question_set_cache"),
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionSetCache) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	key := setKey(id)
	if set, ok := c.lookup(ctx, key); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check in case another caller filled the entry.
		if set, ok := c.lookup(ctx, key); ok {
			return set, nil
		}
		set, err := c.QuestionSetStore.LoadQuestionSet(ctx, id)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		c.fill(ctx, set)
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
	c.fill(ctx, set)
	return nil
}

func (c *QuestionSetCache) DeleteQuestionSet(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, setKey(id)).Err(); err != nil {
		c.log.Warn("invalidate question set", "question_set_id", id, "error", err)
	}
	return c.QuestionSetStore.DeleteQuestionSet(ctx, id)
}

func (c *QuestionSetCache) lookup(ctx context.Context, key string) (domain.QuestionSet, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("read cached question set", "key", key, "error", err)
		}
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		c.log.Warn("decode cached question set", "key", key, "error", err)
		return domain.QuestionSet{}, false
	}
	return set, true
}

// fill is best effort: a failed write only costs a reload later.
func (c *QuestionSetCache) fill(ctx context.Context, set domain.QuestionSet) {
	raw, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, setKey(set.ID), raw, c.ttlWithJitter()).Err(); err != nil {
		c.log.Warn("cache question set", "question_set_id", set.ID, "error", err)
	}
}

func (c *QuestionSetCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func setKey(id string) string {
	return "quiz:set:" + id
}
