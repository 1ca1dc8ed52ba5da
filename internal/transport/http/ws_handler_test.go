package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/clock/clocktest"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/fanout"
	"live-quiz-service/internal/infra/memory"
)

type testEnv struct {
	service *app.QuizService
	clock   *clocktest.FakeClock
	auth    *Authenticator
	server  *httptest.Server
}

func newTestEnv(t *testing.T, jwtSecret string) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := fanout.NewHub(fanout.DefaultQueueSize, log)
	clk := clocktest.NewFakeClock()
	service := app.NewQuizService(memory.NewSessionRegistry(), memory.NewQuestionSetStore(), hub, app.Options{
		Session: app.DefaultSessionConfig(),
		Clock:   clk,
		Logger:  log,
	})
	auth := NewAuthenticator(jwtSecret, "")
	router := NewRouter(RouterConfig{
		Service:   service,
		WS:        NewWSHandler(service, hub, nil, log),
		Auth:      auth,
		PublicURL: "https://quiz.example.com",
		Logger:    log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{service: service, clock: clk, auth: auth, server: server}
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "set-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{
				ID:               "q1",
				Text:             "Capital of France?",
				Options:          []domain.Option{{ID: "a", Text: "Paris"}, {ID: "b", Text: "Rome"}},
				CorrectOptionID:  "a",
				TimeLimitSeconds: 20,
			},
			{
				ID:               "q2",
				Text:             "Capital of Spain?",
				Options:          []domain.Option{{ID: "a", Text: "Lisbon"}, {ID: "b", Text: "Madrid"}},
				CorrectOptionID:  "b",
				TimeLimitSeconds: 20,
			},
		},
	}
}

func (e *testEnv) session(t *testing.T) *app.Session {
	t.Helper()
	ctx := context.Background()
	set, err := e.service.ConfirmQuestionSet(ctx, sampleSet())
	require.NoError(t, err)
	session, err := e.service.CreateSession(ctx, set.ID, "Host", "")
	require.NoError(t, err)
	return session
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

// readUntil skips messages until one of type typ arrives and decodes its payload into v.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", typ)
		if env.Type != typ {
			continue
		}
		if v != nil {
			require.NoError(t, json.Unmarshal(env.Payload, v))
		}
		return
	}
}

func joinHost(t *testing.T, conn *websocket.Conn, s *app.Session) {
	t.Helper()
	send(t, conn, msgJoinRoom, map[string]any{"pin": s.PIN(), "role": "host", "host_token": s.HostToken()})
	var ok domain.JoinSuccess
	readUntil(t, conn, "join_success", &ok)
	require.Equal(t, domain.RoleHost, ok.Role)
}

func joinPlayer(t *testing.T, conn *websocket.Conn, pin, name string) domain.JoinSuccess {
	t.Helper()
	send(t, conn, msgJoinRoom, map[string]any{"pin": pin, "participant_name": name})
	var ok domain.JoinSuccess
	readUntil(t, conn, "join_success", &ok)
	return ok
}

func TestWebSocketGameFlow(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)

	host := env.dial(t)
	joinHost(t, host, session)

	alice := env.dial(t)
	joined := joinPlayer(t, alice, strings.ToLower(session.PIN()), "Alice")
	assert.NotEmpty(t, joined.ParticipantID)
	assert.Equal(t, "Alice", joined.Nickname)
	assert.Equal(t, domain.StatusLobby, joined.Session.Status)

	// The host's own catch-up lobby_update precedes the one announcing Alice.
	var lobby domain.LobbyUpdate
	for len(lobby.Players) == 0 {
		readUntil(t, host, "lobby_update", &lobby)
	}
	assert.Equal(t, "Alice", lobby.Players[0].Name)

	send(t, host, msgStartQuiz, nil)
	var started domain.QuestionStarted
	readUntil(t, alice, "question_started", &started)
	assert.Equal(t, 0, started.QuestionIndex)
	assert.Equal(t, "Capital of France?", started.Question.Text)
	assert.NotContains(t, mustJSON(t, started), "correct_option_id")

	send(t, alice, msgSubmitAnswer, map[string]any{"question_index": 0, "selected_option_id": "a", "response_time": 1.5})
	var ack domain.AnswerAck
	readUntil(t, alice, "answer_ack", &ack)
	assert.True(t, ack.Accepted)
	assert.True(t, ack.IsCorrect)
	assert.Greater(t, ack.Points, 0)

	send(t, alice, msgSubmitAnswer, map[string]any{"question_index": 0, "selected_option_id": "a"})
	var dup domain.AnswerAck
	readUntil(t, alice, "answer_ack", &dup)
	assert.False(t, dup.Accepted)
	assert.Equal(t, domain.RejectDuplicate, dup.Reason)
	assert.Equal(t, ack.TotalScore, dup.TotalScore)

	send(t, host, msgNextQuestion, map[string]any{"question_index": 0})
	var ended domain.QuestionEnded
	readUntil(t, alice, "question_ended", &ended)
	assert.Equal(t, "a", ended.CorrectOptionID)
	readUntil(t, alice, "question_started", &started)
	assert.Equal(t, 1, started.QuestionIndex)

	send(t, host, msgEndGame, nil)
	var over domain.GameEnded
	readUntil(t, alice, "game_ended", &over)
	require.Len(t, over.Leaderboard, 1)
	assert.Equal(t, "Alice", over.Leaderboard[0].Nickname)
	assert.Equal(t, 1, over.Leaderboard[0].Rank)

	send(t, alice, msgGetLeaderboard, nil)
	var board domain.LeaderboardUpdate
	readUntil(t, alice, "leaderboard", &board)
	assert.True(t, board.Final)
	assert.Equal(t, ack.TotalScore, board.Entries[0].Score)
}

func TestWebSocketRejectsInvalidCommands(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)
	conn := env.dial(t)

	expectError := func(code string) {
		t.Helper()
		var ev domain.ErrorEvent
		readUntil(t, conn, "error", &ev)
		assert.Equal(t, code, ev.Code)
	}

	send(t, conn, msgSubmitAnswer, map[string]any{"question_index": 0, "selected_option_id": "a"})
	expectError(CodeInvalidTransition)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expectError(CodeBadRequest)

	send(t, conn, msgJoinRoom, map[string]any{"pin": "999999", "participant_name": "Alice"})
	expectError(CodeNotFound)

	send(t, conn, msgJoinRoom, map[string]any{"pin": session.PIN(), "role": "host", "host_token": "nope"})
	expectError(CodeForbidden)

	send(t, conn, msgJoinRoom, map[string]any{"pin": session.PIN(), "participant_name": "  "})
	expectError(CodeValidation)

	joinPlayer(t, conn, session.PIN(), "Alice")

	send(t, conn, msgStartGame, nil)
	expectError(CodeForbidden)

	send(t, conn, "dance", nil)
	expectError(CodeBadRequest)

	send(t, conn, msgJoinRoom, map[string]any{"pin": session.PIN(), "participant_name": "Bob"})
	expectError(CodeInvalidTransition)

	other := env.dial(t)
	send(t, other, msgJoinRoom, map[string]any{"pin": session.PIN(), "participant_name": "ALICE"})
	var ev domain.ErrorEvent
	readUntil(t, other, "error", &ev)
	assert.Equal(t, CodeNicknameConflict, ev.Code)
}

func TestWebSocketHostCannotAnswer(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)
	_, _, err := env.service.Join(context.Background(), session.PIN(), "Alice")
	require.NoError(t, err)

	host := env.dial(t)
	joinHost(t, host, session)
	send(t, host, msgStartQuiz, nil)
	readUntil(t, host, "question_started", nil)

	send(t, host, msgSubmitAnswer, map[string]any{"question_index": 0, "selected_option_id": "a"})
	var ev domain.ErrorEvent
	readUntil(t, host, "error", &ev)
	assert.Equal(t, CodeForbidden, ev.Code)

	send(t, host, msgStartQuiz, nil)
	readUntil(t, host, "error", &ev)
	assert.Equal(t, CodeInvalidTransition, ev.Code)
}

func TestWebSocketRejoinAfterDisconnect(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)

	first := env.dial(t)
	joined := joinPlayer(t, first, session.PIN(), "Alice")
	require.NoError(t, session.Start())
	readUntil(t, first, "question_started", nil)

	send(t, first, msgSubmitAnswer, map[string]any{"question_index": 0, "selected_option_id": "a"})
	var ack domain.AnswerAck
	readUntil(t, first, "answer_ack", &ack)
	require.True(t, ack.Accepted)
	require.NoError(t, first.Close())

	assert.Eventually(t, func() bool {
		players := session.Players()
		return len(players) == 1 && !players[0].Connected
	}, 2*time.Second, 10*time.Millisecond)

	second := env.dial(t)
	again := joinPlayer(t, second, session.PIN(), "alice")
	assert.True(t, again.Rejoined)
	assert.Equal(t, joined.ParticipantID, again.ParticipantID)
	assert.Equal(t, ack.TotalScore, again.Score)

	// The open question is replayed so the client can render it immediately.
	var current domain.QuestionStarted
	readUntil(t, second, "question_started", &current)
	assert.Equal(t, 0, current.QuestionIndex)
}

func TestWebSocketTimerAdvancesQuestions(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)

	alice := env.dial(t)
	joinPlayer(t, alice, session.PIN(), "Alice")
	require.NoError(t, session.Start())
	readUntil(t, alice, "question_started", nil)

	env.clock.Advance(22 * time.Second)
	var ended domain.QuestionEnded
	readUntil(t, alice, "question_ended", &ended)
	assert.Equal(t, 0, ended.QuestionIndex)
	var next domain.QuestionStarted
	readUntil(t, alice, "question_started", &next)
	assert.Equal(t, 1, next.QuestionIndex)
}

func TestWebSocketManyPlayersJoinAtOnce(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)

	names := []string{"Ann", "Ben", "Cal", "Dee", "Eve", "Fay", "Gus", "Hal"}
	conns := make([]*websocket.Conn, len(names))
	for i := range names {
		conns[i] = env.dial(t)
	}
	for i, name := range names {
		send(t, conns[i], msgJoinRoom, map[string]any{"pin": session.PIN(), "participant_name": name})
	}
	seen := map[string]bool{}
	for i := range conns {
		var ok domain.JoinSuccess
		readUntil(t, conns[i], "join_success", &ok)
		assert.Equal(t, names[i], ok.Nickname)
		seen[ok.ParticipantID] = true
	}
	assert.Len(t, seen, len(names))
	assert.Len(t, session.Players(), len(names))

	require.NoError(t, session.Start())
	for _, c := range conns {
		readUntil(t, c, "question_started", nil)
	}
}

func TestWebSocketAcceptsPlayerNameField(t *testing.T) {
	env := newTestEnv(t, "")
	session := env.session(t)
	conn := env.dial(t)

	send(t, conn, msgJoinRoom, map[string]any{"pin": session.PIN(), "player_name": "Alice"})
	var ok domain.JoinSuccess
	readUntil(t, conn, "join_success", &ok)
	assert.Equal(t, "Alice", ok.Nickname)

	// participant_name wins when both are present.
	other := env.dial(t)
	send(t, other, msgJoinRoom, map[string]any{"pin": session.PIN(), "participant_name": "Bob", "player_name": "Robert"})
	readUntil(t, other, "join_success", &ok)
	assert.Equal(t, "Bob", ok.Nickname)
}

func TestKeepaliveReleasesDeadPeersQuickly(t *testing.T) {
	assert.Less(t, pingPeriod, pongWait)
	assert.LessOrEqual(t, pongWait, 20*time.Second)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://quiz.example.com/"})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "non-browser clients send no origin")
	req.Header.Set("Origin", "https://quiz.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
	assert.True(t, originChecker(nil)(req))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
