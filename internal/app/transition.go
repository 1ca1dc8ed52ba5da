package app

import (
	"time"

	"live-quiz-service/internal/clock"
)

// questionGate owns the "open for answers" slot of a session.
//
// Every opened question receives a fresh token. Closing requires the current token,
// so when the deadline timer and a host command race for the same question only the
// first close succeeds and the other becomes a no-op. Callers hold the session lock.
type questionGate struct {
	clock clock.Clock

	token    uint64
	index    int
	open     bool
	openedAt time.Time
	deadline time.Time // openedAt + time limit; answers are accepted until deadline + grace
	timer    clock.Timer
}

func newQuestionGate(c clock.Clock) questionGate {
	return questionGate{clock: c, index: -1}
}

// openQuestion opens index and schedules onExpire(token) after limit+grace.
func (g *questionGate) openQuestion(index int, limit, grace time.Duration, onExpire func(token uint64)) uint64 {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.token++
	token := g.token
	g.index = index
	g.open = true
	g.openedAt = g.clock.Now()
	g.deadline = g.openedAt.Add(limit)
	g.timer = g.clock.AfterFunc(limit+grace, func() { onExpire(token) })
	return token
}

// closeQuestion closes the open question if token identifies it. It returns true
// exactly once per opened question.
func (g *questionGate) closeQuestion(token uint64) bool {
	if !g.open || token != g.token {
		return false
	}
	g.open = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return true
}

// current returns the token of the open question.
func (g *questionGate) current() (uint64, bool) {
	return g.token, g.open
}

// elapsed is the server-measured time since the open question was broadcast.
func (g *questionGate) elapsed() time.Duration {
	return g.clock.Now().Sub(g.openedAt)
}

// stop cancels any pending deadline without closing the slot; used on teardown.
func (g *questionGate) stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.open = false
}
