package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/clock"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/export"
	"live-quiz-service/internal/scoring"
)

const maxPINAttempts = 16

// Options configures a QuizService. Zero values fall back to defaults.
type Options struct {
	Session     SessionConfig
	Scoring     scoring.Policy
	PINs        PINGenerator
	RetireAfter time.Duration // how long finished sessions stay readable
	MaxIdle     time.Duration // unfinished sessions idle this long are swept
	Clock       clock.Clock
	Logger      *slog.Logger
	Results     ResultStore
	Events      LifecyclePublisher
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions  SessionRegistry
	sets      QuestionSetStore
	out       Broadcaster
	validator *QuestionSetValidator
	opts      Options
	log       *slog.Logger
}

func NewQuizService(sessions SessionRegistry, sets QuestionSetStore, out Broadcaster, opts Options) *QuizService {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Scoring.BasePoints == 0 {
		opts.Scoring = scoring.DefaultPolicy()
	}
	if opts.PINs.length == 0 {
		opts.PINs = DefaultPINGenerator()
	}
	if opts.RetireAfter == 0 {
		opts.RetireAfter = 30 * time.Minute
	}
	if opts.MaxIdle == 0 {
		opts.MaxIdle = 2 * time.Hour
	}
	if out == nil {
		out = discardBroadcaster{}
	}
	return &QuizService{
		sessions:  sessions,
		sets:      sets,
		out:       out,
		validator: NewQuestionSetValidator(),
		opts:      opts,
		log:       opts.Logger,
	}
}

// ConfirmQuestionSet validates a reviewed question set and stores it. The stored
// set is immutable; edits create a new set.
func (s *QuizService) ConfirmQuestionSet(ctx context.Context, set domain.QuestionSet) (domain.QuestionSet, error) {
	prepared, err := s.validator.Prepare(set, s.opts.Clock.Now())
	if err != nil {
		return domain.QuestionSet{}, err
	}
	if err := s.sets.SaveQuestionSet(ctx, prepared); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("save question set: %w", err)
	}
	s.log.Info("question set confirmed", "question_set_id", prepared.ID, "questions", len(prepared.Questions))
	return prepared, nil
}

// QuestionSet loads a confirmed question set.
func (s *QuizService) QuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	return s.sets.LoadQuestionSet(ctx, id)
}

// QuestionSets lists confirmed question sets.
func (s *QuizService) QuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	return s.sets.ListQuestionSets(ctx)
}

// DeleteQuestionSet removes a question set. Live sessions keep their own copy.
func (s *QuizService) DeleteQuestionSet(ctx context.Context, id string) error {
	return s.sets.DeleteQuestionSet(ctx, id)
}

// CreateSession binds a confirmed question set to a new lobby under a fresh PIN.
func (s *QuizService) CreateSession(ctx context.Context, questionSetID, hostName, hostID string) (*Session, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return nil, domain.NewValidationError("host_name", "must not be empty")
	}
	set, err := s.sets.LoadQuestionSet(ctx, questionSetID)
	if err != nil {
		return nil, err
	}
	// Stored sets were validated on confirmation; re-check in case the backing store was edited by hand.
	if err := s.validator.Validate(set); err != nil {
		return nil, err
	}
	if hostID == "" {
		hostID = hostName
	}

	for attempt := 0; attempt < maxPINAttempts; attempt++ {
		pin, err := s.opts.PINs.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate pin: %w", err)
		}
		session := newSession(sessionParams{
			pin:      pin,
			set:      set,
			hostName: hostName,
			hostID:   hostID,
			cfg:      s.opts.Session,
			policy:   s.opts.Scoring,
			clock:    s.opts.Clock,
			out:      s.out,
			log:      s.log,
			onStart:  s.sessionStarted,
			onFinish: s.sessionFinished,
		})
		err = s.sessions.Reserve(ctx, session)
		if errors.Is(err, domain.ErrPINInUse) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reserve pin: %w", err)
		}
		s.log.Info("session created", "pin", pin, "question_set_id", set.ID, "host_id", hostID)
		s.publish(domain.LifecycleCreated, session, nil)
		return session, nil
	}
	return nil, fmt.Errorf("failed to reserve a unique pin after %d attempts", maxPINAttempts)
}

// Session looks up a live session by PIN (case-insensitive).
func (s *QuizService) Session(_ context.Context, pin string) (*Session, error) {
	session, ok := s.sessions.Get(NormalizePIN(pin))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Join admits a player into the session identified by pin.
func (s *QuizService) Join(ctx context.Context, pin, nickname string) (*Session, JoinResult, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return nil, JoinResult{}, err
	}
	res, err := session.Join(nickname)
	return session, res, err
}

// JoinHost authorizes the host connection of a session.
func (s *QuizService) JoinHost(ctx context.Context, pin, hostToken string) (*Session, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return nil, err
	}
	if !session.AuthorizeHost(hostToken) {
		return nil, domain.ErrForbidden
	}
	return session, nil
}

// Start opens the first question.
func (s *QuizService) Start(ctx context.Context, pin string) error {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return err
	}
	return session.Start()
}

// Advance closes the open question; see Session.Advance.
func (s *QuizService) Advance(ctx context.Context, pin string, expectedIndex int) (bool, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return false, err
	}
	return session.Advance(expectedIndex)
}

// End finishes the session early.
func (s *QuizService) End(ctx context.Context, pin string) error {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return err
	}
	return session.End()
}

// SubmitAnswer records an answer for a participant and returns the acknowledgment.
func (s *QuizService) SubmitAnswer(ctx context.Context, pin string, sub domain.AnswerSubmission) (domain.AnswerAck, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return domain.AnswerAck{}, err
	}
	return session.Submit(sub)
}

// Leaderboard returns a fresh snapshot for the session.
func (s *QuizService) Leaderboard(ctx context.Context, pin string) (domain.Leaderboard, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(), nil
}

// Leave removes or parks a participant; see Session.Leave.
func (s *QuizService) Leave(ctx context.Context, pin, participantID string) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return
	}
	session.Leave(participantID)
}

// ExportResults renders the frozen results of a finished session.
func (s *QuizService) ExportResults(ctx context.Context, pin, format string) (export.Artifact, error) {
	session, err := s.Session(ctx, pin)
	if err != nil {
		return export.Artifact{}, err
	}
	results, err := session.Results()
	if err != nil {
		return export.Artifact{}, err
	}
	return export.Render(results, format)
}

// RetireSession removes the session and frees its PIN.
func (s *QuizService) RetireSession(ctx context.Context, pin string) {
	session, ok := s.sessions.Get(NormalizePIN(pin))
	if !ok {
		return
	}
	s.retire(ctx, session)
}

// retire removes session only if it still owns its PIN, so a delayed retirement
// never frees a PIN that was already handed to a newer session.
func (s *QuizService) retire(ctx context.Context, session *Session) {
	if current, ok := s.sessions.Get(session.PIN()); !ok || current != session {
		return
	}
	session.shutdown()
	s.sessions.Retire(ctx, session.PIN())
	if rc, ok := s.out.(RoomCloser); ok {
		rc.CloseRoom(session.PIN())
	}
	s.log.Info("session retired", "pin", session.PIN(), "session_id", session.ID())
}

// SweepIdle retires unfinished sessions that saw no command within MaxIdle and
// renews the PIN leases of the sessions that remain.
func (s *QuizService) SweepIdle(ctx context.Context) int {
	if lr, ok := s.sessions.(LeaseRenewer); ok {
		defer lr.RenewLeases(ctx)
	}
	cutoff := s.opts.Clock.Now().Add(-s.opts.MaxIdle)
	swept := 0
	for _, session := range s.sessions.List() {
		if session.Status() == domain.StatusFinished {
			continue
		}
		if session.IdleSince().Before(cutoff) {
			if err := session.End(); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
				s.log.Warn("end idle session", "pin", session.PIN(), "error", err)
			}
			s.retire(ctx, session)
			swept++
		}
	}
	return swept
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *QuizService) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.SweepIdle(ctx); n > 0 {
				s.log.Info("idle sessions swept", "count", n)
			}
		}
	}
}

// sessionStarted runs under the session lock; it must not call back into the session.
func (s *QuizService) sessionStarted(session *Session) {
	s.publish(domain.LifecycleStarted, session, nil)
}

// sessionFinished runs under the session lock; it must not call back into the session.
func (s *QuizService) sessionFinished(session *Session, results domain.Results) {
	pin := session.PIN()
	s.opts.Clock.AfterFunc(s.opts.RetireAfter, func() {
		s.retire(context.Background(), session)
	})
	if s.opts.Results != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.opts.Results.SaveResults(ctx, results); err != nil {
				s.log.Error("archive results", "pin", pin, "error", err)
			}
		}()
	}
	s.publish(domain.LifecycleFinished, session, &results)
}

func (s *QuizService) publish(kind domain.LifecycleKind, session *Session, results *domain.Results) {
	if s.opts.Events == nil {
		return
	}
	ev := domain.LifecycleEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		SessionID:     session.ID(),
		PIN:           session.PIN(),
		QuestionSetID: session.QuestionSetID(),
		HostID:        session.HostID(),
		At:            s.opts.Clock.Now(),
		Results:       results,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.opts.Events.Publish(ctx, ev); err != nil {
			s.log.Warn("publish lifecycle event", "kind", kind, "pin", ev.PIN, "error", err)
		}
	}()
}
