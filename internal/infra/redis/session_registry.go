package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionRegistry reserves PINs in Redis so that several instances never hand out
// the same PIN. Session state itself stays in the local map of the instance that
// owns it; Redis only records which session holds a PIN.
//
//	SET quiz:pin:{PIN} {sessionID} NX EX ttl
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// releaseScript deletes the PIN key only while it still names the given session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the PIN key while it names the given session and reclaims it
// if it expired in the meantime. It returns 0 when another session owns the PIN.
var renewScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
	return 1
end
return 0
`)

func NewSessionRegistry(client *redis.Client, ttl time.Duration, log *slog.Logger) *SessionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &SessionRegistry{
		client:   client,
		ttl:      ttl,
		log:      log.With("component", "redis_session_registry"),
		sessions: make(map[string]*app.Session),
	}
}

func (r *SessionRegistry) Reserve(ctx context.Context, session *app.Session) error {
	pin := session.PIN()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[pin]; ok {
		return domain.ErrPINInUse
	}
	ok, err := r.client.SetNX(ctx, pinKey(pin), session.ID(), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve pin %s: %w", pin, err)
	}
	if !ok {
		return domain.ErrPINInUse
	}
	r.sessions[pin] = session
	return nil
}

func (r *SessionRegistry) Get(pin string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[pin]
	return session, ok
}

func (r *SessionRegistry) Retire(ctx context.Context, pin string) {
	r.mu.Lock()
	session, ok := r.sessions[pin]
	delete(r.sessions, pin)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := releaseScript.Run(ctx, r.client, []string{pinKey(pin)}, session.ID()).Err(); err != nil {
		r.log.Warn("release pin", "pin", pin, "error", err)
	}
}

func (r *SessionRegistry) List() []*app.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*app.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// RenewLeases extends the reservation of every session owned by this instance, so a
// long running game keeps its PIN for as long as it is live.
func (r *SessionRegistry) RenewLeases(ctx context.Context) {
	seconds := int64(r.ttl / time.Second)
	if seconds <= 0 {
		return
	}
	for _, session := range r.List() {
		pin := session.PIN()
		n, err := renewScript.Run(ctx, r.client, []string{pinKey(pin)}, session.ID(), seconds).Int()
		if err != nil {
			r.log.Warn("renew pin", "pin", pin, "error", err)
			continue
		}
		if n == 0 {
			r.log.Error("pin reserved by another session", "pin", pin, "session_id", session.ID())
		}
	}
}

func pinKey(pin string) string {
	return "quiz:pin:" + pin
}
