package domain

import "time"

// DefaultTimeLimitSeconds applies to questions confirmed without an explicit limit.
const DefaultTimeLimitSeconds = 20

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"question" validate:"required"`
	Options          []Option `json:"options" validate:"min=2,max=4,unique=ID,dive"`
	CorrectOptionID  string   `json:"correct_option_id" validate:"required"`
	TimeLimitSeconds int      `json:"time_limit_seconds" validate:"gte=0,lte=600"`
	Points           int      `json:"points,omitempty" validate:"gte=0"` // 0 means the scoring policy's base points
}

// TimeLimit returns the answer window of the question.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// HasOption reports whether id names one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// Public strips the correct answer so the question can be sent to players.
func (q Question) Public() PublicQuestion {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return PublicQuestion{
		ID:               q.ID,
		Text:             q.Text,
		Options:          opts,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
}

// PublicQuestion is the player-facing view of a question.
type PublicQuestion struct {
	ID               string   `json:"id"`
	Text             string   `json:"question"`
	Options          []Option `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// QuestionSet is an ordered, immutable collection of questions.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title" validate:"required,max=200"`
	Questions []Question `json:"questions" validate:"min=1,max=200,dive"`
	CreatedAt time.Time  `json:"created_at"`
}

// QuestionSetSummary is the listing view of a stored question set.
type QuestionSetSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary returns the listing view of the set.
func (s QuestionSet) Summary() QuestionSetSummary {
	return QuestionSetSummary{
		ID:            s.ID,
		Title:         s.Title,
		QuestionCount: len(s.Questions),
		CreatedAt:     s.CreatedAt,
	}
}

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusLobby      SessionStatus = "lobby"
	StatusInProgress SessionStatus = "in_progress"
	StatusFinished   SessionStatus = "finished"
)

// Role distinguishes the host connection from player connections.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID                string
	Nickname          string
	Score             int
	CorrectAnswers    int
	TotalResponseTime time.Duration
	JoinOrder         int
	Connected         bool
	JoinedAt          time.Time
}

// AnswerSubmission models a player's answer to the open question.
// ResponseTime is the client-measured latency; the server clamps it to its own measurement.
type AnswerSubmission struct {
	ParticipantID string
	QuestionIndex int
	OptionID      string
	ResponseTime  time.Duration
}

// LeaderboardEntry is a ranked, snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank              int     `json:"rank"`
	ParticipantID     string  `json:"player_id"`
	Nickname          string  `json:"player_name"`
	Score             int     `json:"score"`
	CorrectAnswers    int     `json:"correct_answers"`
	TotalResponseTime float64 `json:"total_response_time"` // seconds
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	PIN       string             `json:"pin"`
	Entries   []LeaderboardEntry `json:"entries"`
	Final     bool               `json:"final"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// LobbyPlayer is the roster view shown in the lobby and on the host screen.
type LobbyPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// SessionInfo describes a live session to clients.
type SessionInfo struct {
	ID                   string        `json:"id"`
	PIN                  string        `json:"pin"`
	HostName             string        `json:"host_name"`
	QuestionSetID        string        `json:"quiz_id"`
	Title                string        `json:"title"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	QuestionCount        int           `json:"question_count"`
	PlayerCount          int           `json:"player_count"`
	CreatedAt            time.Time     `json:"created_at"`
}

// QuestionStats aggregates the answers received for one question.
type QuestionStats struct {
	Index               int     `json:"question_index"`
	QuestionID          string  `json:"question_id"`
	Text                string  `json:"question"`
	CorrectOptionID     string  `json:"correct_option_id"`
	Answered            int     `json:"answered"`
	Correct             int     `json:"correct"`
	AverageResponseTime float64 `json:"average_response_time"` // seconds, over answered
}

// Results is the frozen outcome of a finished session.
type Results struct {
	Session     SessionInfo        `json:"session"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Questions   []QuestionStats    `json:"questions"`
	FinishedAt  time.Time          `json:"finished_at"`
}
