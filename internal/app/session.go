package app

import (
	"crypto/subtle"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/clock"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

// Broadcaster delivers events to every connection in a session group.
// Implementations must not block on slow clients.
type Broadcaster interface {
	Broadcast(pin string, ev domain.Event)
}

// RoomCloser is implemented by broadcasters that track per-session groups and
// can drop them once a session is retired.
type RoomCloser interface {
	CloseRoom(pin string)
}

// SessionConfig holds the per-session rules.
type SessionConfig struct {
	// AnswerGrace extends the answer window to absorb network latency.
	AnswerGrace time.Duration
	// RequireParticipants rejects start when nobody joined.
	RequireParticipants bool
	// AllowLateJoin admits new nicknames after the first question opened.
	AllowLateJoin bool
}

// DefaultSessionConfig returns the rules used when nothing is configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AnswerGrace:         2 * time.Second,
		RequireParticipants: true,
	}
}

// JoinResult describes the outcome of a player join.
type JoinResult struct {
	Participant domain.Participant
	Rejoined    bool
}

// Session is the coordinator of one live quiz. All mutations are serialized by mu.
type Session struct {
	id        string
	pin       string
	hostName  string
	hostID    string
	hostToken string
	set       domain.QuestionSet
	createdAt time.Time

	cfg    SessionConfig
	policy scoring.Policy
	clock  clock.Clock
	out    Broadcaster
	log    *slog.Logger
	// onFinish runs under the session lock right after the session finished.
	onFinish func(*Session, domain.Results)
	// onStart runs under the session lock right after the first question opened.
	onStart func(*Session)

	mu           sync.Mutex
	status       domain.SessionStatus
	current      int
	gate         questionGate
	participants map[string]*domain.Participant
	byNickname   map[string]string // folded nickname -> participant id
	nextJoin     int
	answered     map[string]bool // participant ids that answered the open question
	tallies      []scoring.Tally
	results      *domain.Results
	lastActivity time.Time
}

type sessionParams struct {
	pin      string
	set      domain.QuestionSet
	hostName string
	hostID   string
	cfg      SessionConfig
	policy   scoring.Policy
	clock    clock.Clock
	out      Broadcaster
	log      *slog.Logger
	onStart  func(*Session)
	onFinish func(*Session, domain.Results)
}

func newSession(p sessionParams) *Session {
	if p.clock == nil {
		p.clock = clock.System()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.out == nil {
		p.out = discardBroadcaster{}
	}
	now := p.clock.Now()
	s := &Session{
		id:           uuid.NewString(),
		pin:          p.pin,
		hostName:     p.hostName,
		hostID:       p.hostID,
		hostToken:    uuid.NewString(),
		set:          p.set,
		createdAt:    now,
		cfg:          p.cfg,
		policy:       p.policy,
		clock:        p.clock,
		out:          p.out,
		onStart:      p.onStart,
		onFinish:     p.onFinish,
		status:       domain.StatusLobby,
		current:      -1,
		gate:         newQuestionGate(p.clock),
		participants: make(map[string]*domain.Participant),
		byNickname:   make(map[string]string),
		answered:     make(map[string]bool),
		tallies:      make([]scoring.Tally, len(p.set.Questions)),
		lastActivity: now,
	}
	s.log = p.log.With("pin", p.pin, "session_id", s.id)
	return s
}

// NewSession builds a standalone lobby with default rules and no lifecycle hooks.
func NewSession(pin string, set domain.QuestionSet, hostName string) *Session {
	return newSession(sessionParams{
		pin:      pin,
		set:      set,
		hostName: hostName,
		hostID:   hostName,
		cfg:      DefaultSessionConfig(),
		policy:   scoring.DefaultPolicy(),
	})
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// PIN returns the join code.
func (s *Session) PIN() string { return s.pin }

// HostToken is the secret the host presents when joining over the socket.
func (s *Session) HostToken() string { return s.hostToken }

// HostID is the verified identity of the host that created the session.
func (s *Session) HostID() string { return s.hostID }

// QuestionSetID returns the bound question set.
func (s *Session) QuestionSetID() string { return s.set.ID }

// AuthorizeHost reports whether token is the session's host token.
func (s *Session) AuthorizeHost(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.hostToken)) == 1
}

// Status returns the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info returns the client-facing description of the session.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

// IdleSince reports when the session last saw a command.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Join admits a player. A nickname held by a disconnected participant re-attaches
// to that participant's score record instead of conflicting.
func (s *Session) Join(nickname string) (JoinResult, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return JoinResult{}, domain.NewValidationError("participant_name", "must not be empty")
	}
	if len(nickname) > 32 {
		return JoinResult{}, domain.NewValidationError("participant_name", "must be at most 32 characters")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	key := foldNickname(nickname)
	if id, ok := s.byNickname[key]; ok {
		p := s.participants[id]
		if p.Connected || s.status == domain.StatusLobby {
			return JoinResult{}, domain.ErrNicknameConflict
		}
		p.Connected = true
		s.log.Info("participant rejoined", "participant_id", p.ID, "nickname", p.Nickname)
		s.broadcastLobbyLocked()
		return JoinResult{Participant: *p, Rejoined: true}, nil
	}

	switch s.status {
	case domain.StatusFinished:
		return JoinResult{}, domain.ErrInvalidTransition
	case domain.StatusInProgress:
		if !s.cfg.AllowLateJoin {
			return JoinResult{}, domain.ErrInvalidTransition
		}
	}

	p := &domain.Participant{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		JoinOrder: s.nextJoin,
		Connected: true,
		JoinedAt:  s.clock.Now(),
	}
	s.nextJoin++
	s.participants[p.ID] = p
	s.byNickname[key] = p.ID
	s.log.Info("participant joined", "participant_id", p.ID, "nickname", nickname)
	s.broadcastLobbyLocked()
	return JoinResult{Participant: *p}, nil
}

// Leave handles an explicit leave or a dropped connection. In the lobby the
// participant is removed; once the game started the record is kept and marked absent.
func (s *Session) Leave(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return
	}
	s.touchLocked()
	if s.status == domain.StatusLobby {
		delete(s.participants, participantID)
		delete(s.byNickname, foldNickname(p.Nickname))
		s.log.Info("participant left lobby", "participant_id", participantID)
	} else {
		p.Connected = false
		s.log.Info("participant disconnected", "participant_id", participantID)
	}
	s.broadcastLobbyLocked()
}

// Start moves the lobby into the game and opens question 0.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.status != domain.StatusLobby {
		return domain.ErrInvalidTransition
	}
	if s.cfg.RequireParticipants && len(s.participants) == 0 {
		return domain.NewValidationError("participants", "at least one participant must join before start")
	}
	s.status = domain.StatusInProgress
	s.log.Info("session started", "participants", len(s.participants))
	s.broadcastLobbyLocked()
	s.openLocked(0)
	if s.onStart != nil {
		s.onStart(s)
	}
	return nil
}

// Advance closes the open question and opens the next one, or finishes the session
// after the last. expectedIndex pins the command to a question; -1 means whichever is
// open. A command for a question that is no longer open is a no-op and reports false.
func (s *Session) Advance(expectedIndex int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.status != domain.StatusInProgress {
		return false, domain.ErrInvalidTransition
	}
	token, open := s.gate.current()
	if !open {
		return false, nil
	}
	if expectedIndex >= 0 && expectedIndex != s.current {
		return false, nil
	}
	return s.advanceLocked(token), nil
}

// expire is the deadline callback for the question identified by token.
func (s *Session) expire(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusInProgress {
		return
	}
	closing := s.current
	if s.advanceLocked(token) {
		s.log.Info("question deadline reached", "question_index", closing)
	}
}

func (s *Session) advanceLocked(token uint64) bool {
	closing := s.current
	if !s.gate.closeQuestion(token) {
		return false
	}
	s.closeLocked(closing)
	if next := closing + 1; next < len(s.set.Questions) {
		s.openLocked(next)
	} else {
		s.finishLocked()
	}
	return true
}

// End finishes the session immediately, from the lobby or mid-game.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	switch s.status {
	case domain.StatusFinished:
		return domain.ErrInvalidTransition
	case domain.StatusInProgress:
		if token, open := s.gate.current(); open && s.gate.closeQuestion(token) {
			s.closeLocked(s.current)
		}
	}
	s.finishLocked()
	return nil
}

// Submit scores an answer to the open question. Rejections return an ack with
// Accepted=false and an error wrapping domain.ErrSubmissionRejected.
func (s *Session) Submit(sub domain.AnswerSubmission) (domain.AnswerAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	p, ok := s.participants[sub.ParticipantID]
	if !ok {
		return domain.AnswerAck{QuestionIndex: sub.QuestionIndex}, domain.ErrParticipantNotFound
	}
	reject := func(reason string) (domain.AnswerAck, error) {
		return domain.AnswerAck{
			QuestionIndex: sub.QuestionIndex,
			TotalScore:    p.Score,
			Reason:        reason,
		}, &domain.RejectedError{Reason: reason}
	}

	_, open := s.gate.current()
	if s.status != domain.StatusInProgress || !open {
		return reject(domain.RejectNotOpen)
	}
	if sub.QuestionIndex != s.current {
		return reject(domain.RejectWrongQuestion)
	}
	q := s.set.Questions[s.current]
	elapsed := s.gate.elapsed()
	if elapsed > q.TimeLimit()+s.cfg.AnswerGrace {
		return reject(domain.RejectLate)
	}
	if s.answered[p.ID] {
		return reject(domain.RejectDuplicate)
	}
	if !q.HasOption(sub.OptionID) {
		return reject(domain.RejectUnknownOption)
	}

	response := responseTime(sub.ResponseTime, elapsed)
	correct := sub.OptionID == q.CorrectOptionID
	points := s.policy.Score(correct, response, q.TimeLimit(), q.Points)

	s.answered[p.ID] = true
	s.tallies[s.current].Add(correct, response)
	p.Score += points
	p.TotalResponseTime += response
	if correct {
		p.CorrectAnswers++
	}

	return domain.AnswerAck{
		QuestionIndex: s.current,
		Accepted:      true,
		IsCorrect:     correct,
		Points:        points,
		TotalScore:    p.Score,
	}, nil
}

// responseTime trusts the client measurement only when it is not longer than what
// the server observed, which strips network latency without allowing time travel.
func responseTime(client, server time.Duration) time.Duration {
	if client > 0 && client <= server {
		return client
	}
	return server
}

// Leaderboard returns a freshly computed snapshot.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Leaderboard{
		PIN:       s.pin,
		Entries:   s.rankLocked(),
		Final:     s.status == domain.StatusFinished,
		UpdatedAt: s.clock.Now(),
	}
}

// Players returns the roster in join order.
func (s *Session) Players() []domain.LobbyPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

// CurrentQuestion returns the open question event, for clients that (re)join mid-question.
func (s *Session) CurrentQuestion() (domain.QuestionStarted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.gate.current(); !open || s.status != domain.StatusInProgress {
		return domain.QuestionStarted{}, false
	}
	return s.questionEventLocked(), true
}

// Results returns the frozen outcome; domain.ErrNotReady until the session finished.
func (s *Session) Results() (domain.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return domain.Results{}, domain.ErrNotReady
	}
	return *s.results, nil
}

// shutdown cancels the pending deadline; used when the session is retired.
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.stop()
}

func (s *Session) openLocked(index int) {
	s.current = index
	s.answered = make(map[string]bool)
	q := s.set.Questions[index]
	s.gate.openQuestion(index, q.TimeLimit(), s.cfg.AnswerGrace, s.expire)
	s.log.Info("question opened", "question_index", index, "time_limit", q.TimeLimit())
	s.out.Broadcast(s.pin, s.questionEventLocked())
}

// closeLocked charges the full time limit to participants who did not answer, so
// silence never wins a response-time tie-break, then publishes the question outcome.
func (s *Session) closeLocked(index int) {
	q := s.set.Questions[index]
	for id, p := range s.participants {
		if !s.answered[id] {
			p.TotalResponseTime += q.TimeLimit()
		}
	}
	s.out.Broadcast(s.pin, domain.QuestionEnded{
		QuestionIndex:   index,
		CorrectOptionID: q.CorrectOptionID,
		Leaderboard:     s.rankLocked(),
	})
}

func (s *Session) finishLocked() {
	s.gate.stop()
	s.status = domain.StatusFinished
	board := s.rankLocked()
	results := domain.Results{
		Session:     s.infoLocked(),
		Leaderboard: board,
		Questions:   scoring.Stats(s.set, s.tallies),
		FinishedAt:  s.clock.Now(),
	}
	s.results = &results
	s.log.Info("session finished", "participants", len(s.participants))
	s.out.Broadcast(s.pin, domain.GameEnded{Leaderboard: board})
	if s.onFinish != nil {
		s.onFinish(s, results)
	}
}

func (s *Session) questionEventLocked() domain.QuestionStarted {
	q := s.set.Questions[s.current]
	return domain.QuestionStarted{
		QuestionIndex: s.current,
		QuestionCount: len(s.set.Questions),
		Question:      q.Public(),
		Deadline:      s.gate.deadline,
	}
}

func (s *Session) rankLocked() []domain.LeaderboardEntry {
	records := make([]scoring.Record, 0, len(s.participants))
	for _, p := range s.participants {
		records = append(records, scoring.RecordOf(p))
	}
	return scoring.Rank(records)
}

func (s *Session) playersLocked() []domain.LobbyPlayer {
	list := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinOrder < list[j].JoinOrder })
	players := make([]domain.LobbyPlayer, len(list))
	for i, p := range list {
		players[i] = domain.LobbyPlayer{ID: p.ID, Name: p.Nickname, Score: p.Score, Connected: p.Connected}
	}
	return players
}

func (s *Session) broadcastLobbyLocked() {
	s.out.Broadcast(s.pin, domain.LobbyUpdate{Status: s.status, Players: s.playersLocked()})
}

func (s *Session) infoLocked() domain.SessionInfo {
	return domain.SessionInfo{
		ID:                   s.id,
		PIN:                  s.pin,
		HostName:             s.hostName,
		QuestionSetID:        s.set.ID,
		Title:                s.set.Title,
		Status:               s.status,
		CurrentQuestionIndex: s.current,
		QuestionCount:        len(s.set.Questions),
		PlayerCount:          len(s.participants),
		CreatedAt:            s.createdAt,
	}
}

func (s *Session) touchLocked() {
	s.lastActivity = s.clock.Now()
}

func foldNickname(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

type discardBroadcaster struct{}

func (discardBroadcaster) Broadcast(string, domain.Event) {}
