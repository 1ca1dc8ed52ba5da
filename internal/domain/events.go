package domain

import "time"

// EventType names an outbound message on the client protocol.
type EventType string

const (
	EventJoinSuccess     EventType = "join_success"
	EventLobbyUpdate     EventType = "lobby_update"
	EventQuestionStarted EventType = "question_started"
	EventAnswerAck       EventType = "answer_ack"
	EventQuestionEnded   EventType = "question_ended"
	EventLeaderboard     EventType = "leaderboard"
	EventGameEnded       EventType = "game_ended"
	EventError           EventType = "error"
)

// Event is the closed set of messages the server sends to clients.
// Only types declared in this package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

type JoinSuccess struct {
	ParticipantID string      `json:"participant_id,omitempty"`
	Nickname      string      `json:"participant_name,omitempty"`
	Role          Role        `json:"role"`
	Rejoined      bool        `json:"rejoined"`
	Score         int         `json:"score"`
	Session       SessionInfo `json:"session"`
}

type LobbyUpdate struct {
	Status  SessionStatus `json:"status"`
	Players []LobbyPlayer `json:"players"`
}

type QuestionStarted struct {
	QuestionIndex int            `json:"question_index"`
	QuestionCount int            `json:"question_count"`
	Question      PublicQuestion `json:"question"`
	Deadline      time.Time      `json:"deadline"`
}

type AnswerAck struct {
	QuestionIndex int    `json:"question_index"`
	Accepted      bool   `json:"accepted"`
	IsCorrect     bool   `json:"is_correct"`
	Points        int    `json:"points"`
	TotalScore    int    `json:"total_score"`
	Reason        string `json:"reason,omitempty"`
}

type QuestionEnded struct {
	QuestionIndex   int                `json:"question_index"`
	CorrectOptionID string             `json:"correct_option_id"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
}

type LeaderboardUpdate struct {
	Entries []LeaderboardEntry `json:"entries"`
	Final   bool               `json:"final"`
}

type GameEnded struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type ErrorEvent struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (JoinSuccess) Type() EventType       { return EventJoinSuccess }
func (LobbyUpdate) Type() EventType       { return EventLobbyUpdate }
func (QuestionStarted) Type() EventType   { return EventQuestionStarted }
func (AnswerAck) Type() EventType         { return EventAnswerAck }
func (QuestionEnded) Type() EventType     { return EventQuestionEnded }
func (LeaderboardUpdate) Type() EventType { return EventLeaderboard }
func (GameEnded) Type() EventType         { return EventGameEnded }
func (ErrorEvent) Type() EventType        { return EventError }

func (JoinSuccess) isEvent()       {}
func (LobbyUpdate) isEvent()       {}
func (QuestionStarted) isEvent()   {}
func (AnswerAck) isEvent()         {}
func (QuestionEnded) isEvent()     {}
func (LeaderboardUpdate) isEvent() {}
func (GameEnded) isEvent()         {}
func (ErrorEvent) isEvent()        {}

// LifecycleKind names a session lifecycle notification for downstream consumers.
type LifecycleKind string

const (
	LifecycleCreated  LifecycleKind = "session.created"
	LifecycleStarted  LifecycleKind = "session.started"
	LifecycleFinished LifecycleKind = "session.finished"
)

// LifecycleEvent is published when a session changes state.
type LifecycleEvent struct {
	ID            string        `json:"id"`
	Kind          LifecycleKind `json:"kind"`
	SessionID     string        `json:"session_id"`
	PIN           string        `json:"pin"`
	QuestionSetID string        `json:"question_set_id"`
	HostID        string        `json:"host_id"`
	At            time.Time     `json:"at"`
	Results       *Results      `json:"results,omitempty"`
}
