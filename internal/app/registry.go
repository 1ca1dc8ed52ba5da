package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// SessionRegistry maps PINs to live sessions. Reserve must be atomic: two callers
// can never both reserve the same PIN while it is live.
type SessionRegistry interface {
	// Reserve registers session under its PIN or fails with domain.ErrPINInUse.
	Reserve(ctx context.Context, session *Session) error
	Get(pin string) (*Session, bool)
	// Retire removes the session and frees its PIN.
	Retire(ctx context.Context, pin string)
	List() []*Session
}

// LeaseRenewer is implemented by registries whose PIN reservations expire and must be
// extended while the session is live.
type LeaseRenewer interface {
	RenewLeases(ctx context.Context)
}

// QuestionSetStore persists confirmed question sets.
type QuestionSetStore interface {
	SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error
	LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
	DeleteQuestionSet(ctx context.Context, id string) error
	ListQuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error)
}

// ResultStore archives the frozen results of finished sessions.
type ResultStore interface {
	SaveResults(ctx context.Context, results domain.Results) error
}

// LifecyclePublisher notifies downstream consumers about session state changes.
type LifecyclePublisher interface {
	Publish(ctx context.Context, ev domain.LifecycleEvent) error
}
