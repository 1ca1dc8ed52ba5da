package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/fanout"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 20 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Inbound message types.
const (
	msgJoinRoom       = "join_room"
	msgStartQuiz      = "start_quiz"
	msgStartGame      = "start_game"
	msgNextQuestion   = "next_question"
	msgEndGame        = "end_game"
	msgSubmitAnswer   = "submit_answer"
	msgGetLeaderboard = "get_leaderboard"
	msgLeave          = "leave"
)

type WSHandler struct {
	service  *app.QuizService
	hub      *fanout.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(service *app.QuizService, hub *fanout.Hub, allowedOrigins []string, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With("component", "ws"),
	}
}

// originChecker allows any origin when the list is empty or contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PIN             string      `json:"pin"`
	ParticipantName string      `json:"participant_name"`
	PlayerName      string      `json:"player_name"`
	Role            domain.Role `json:"role"`
	HostToken       string      `json:"host_token"`
}

type nextPayload struct {
	QuestionIndex *int `json:"question_index"`
}

type answerPayload struct {
	QuestionIndex    int     `json:"question_index"`
	SelectedOptionID string  `json:"selected_option_id"`
	ResponseTime     float64 `json:"response_time"` // seconds, as measured by the client
}

// conn is the per-socket state. Only the read loop touches it.
type conn struct {
	id            string
	session       *app.Session
	role          domain.Role
	participantID string
	log           *slog.Logger
}

func (c *conn) joined() bool { return c.session != nil }

// ServeWS upgrades the request and runs the connection until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &conn{id: uuid.NewString()}
	c.log = h.log.With("conn_id", c.id)
	client := h.hub.Register(c.id)

	writerDone := make(chan struct{})
	writerLog := c.log
	go func() {
		defer close(writerDone)
		h.writePump(ws, client.Send, writerLog)
	}()

	h.readLoop(r.Context(), ws, c)

	h.detach(r.Context(), c)
	h.hub.Unregister(c.id)
	<-writerDone
	_ = ws.Close()
	c.log.Debug("connection closed")
}

// writePump is the only writer of ws. It exits when send is closed or a write fails.
func (h *WSHandler) writePump(ws *websocket.Conn, send <-chan []byte, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("ws write error", "error", err)
				// Unblock the read loop so the connection is torn down.
				_ = ws.Close()
				drain(send)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				drain(send)
				return
			}
		}
	}
}

func drain(send <-chan []byte) {
	for range send {
	}
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *conn) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundMessage
		if err := ws.ReadJSON(&in); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.sendError(c, CodeBadRequest, "malformed message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read error", "error", err)
			}
			return
		}
		h.dispatch(ctx, c, in)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *conn, in inboundMessage) {
	if in.Type != msgJoinRoom && !c.joined() {
		h.sendError(c, CodeInvalidTransition, "join a room first")
		return
	}
	switch in.Type {
	case msgJoinRoom:
		var p joinPayload
		if !h.decode(c, in.Payload, &p) {
			return
		}
		h.handleJoin(ctx, c, p)
	case msgStartQuiz, msgStartGame:
		if h.requireHost(c) {
			h.reply(c, c.session.Start())
		}
	case msgNextQuestion:
		var p nextPayload
		if !h.decode(c, in.Payload, &p) || !h.requireHost(c) {
			return
		}
		expected := -1
		if p.QuestionIndex != nil {
			expected = *p.QuestionIndex
		}
		_, err := c.session.Advance(expected)
		h.reply(c, err)
	case msgEndGame:
		if h.requireHost(c) {
			h.reply(c, c.session.End())
		}
	case msgSubmitAnswer:
		var p answerPayload
		if !h.decode(c, in.Payload, &p) {
			return
		}
		h.handleAnswer(c, p)
	case msgGetLeaderboard:
		board := c.session.Leaderboard()
		h.hub.SendTo(c.id, domain.LeaderboardUpdate{Entries: board.Entries, Final: board.Final})
	case msgLeave:
		h.detach(ctx, c)
	default:
		h.sendError(c, CodeBadRequest, "unsupported message type "+in.Type)
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, c *conn, p joinPayload) {
	if c.joined() {
		h.sendError(c, CodeInvalidTransition, "already joined; leave first")
		return
	}
	role := p.Role
	if role == "" {
		role = domain.RolePlayer
	}

	var (
		session *app.Session
		ev      domain.JoinSuccess
		err     error
	)
	switch role {
	case domain.RoleHost:
		session, err = h.service.JoinHost(ctx, p.PIN, p.HostToken)
		ev = domain.JoinSuccess{Role: domain.RoleHost}
	case domain.RolePlayer:
		var res app.JoinResult
		name := p.ParticipantName
		if name == "" {
			name = p.PlayerName
		}
		session, res, err = h.service.Join(ctx, p.PIN, name)
		ev = domain.JoinSuccess{
			ParticipantID: res.Participant.ID,
			Nickname:      res.Participant.Nickname,
			Role:          domain.RolePlayer,
			Rejoined:      res.Rejoined,
			Score:         res.Participant.Score,
		}
	default:
		err = domain.NewValidationError("role", "must be host or player")
	}
	if err != nil {
		h.reply(c, err)
		return
	}

	c.session, c.role, c.participantID = session, role, ev.ParticipantID
	c.log = c.log.With("pin", session.PIN(), "role", role)
	h.hub.Join(c.id, fanout.Membership{PIN: session.PIN(), Role: role, ParticipantID: ev.ParticipantID})

	ev.Session = session.Info()
	h.hub.SendTo(c.id, ev)
	h.catchUp(c)
	c.log.Info("connection joined", "participant_id", ev.ParticipantID, "rejoined", ev.Rejoined,
		"members", h.hub.Members(session.PIN()))
}

// catchUp sends the state a connection missed before it joined the room.
func (h *WSHandler) catchUp(c *conn) {
	info := c.session.Info()
	h.hub.SendTo(c.id, domain.LobbyUpdate{Status: info.Status, Players: c.session.Players()})
	switch info.Status {
	case domain.StatusInProgress:
		if q, ok := c.session.CurrentQuestion(); ok {
			h.hub.SendTo(c.id, q)
		}
	case domain.StatusFinished:
		board := c.session.Leaderboard()
		h.hub.SendTo(c.id, domain.GameEnded{Leaderboard: board.Entries})
	}
}

func (h *WSHandler) handleAnswer(c *conn, p answerPayload) {
	if c.role != domain.RolePlayer {
		h.sendError(c, CodeForbidden, "only players can answer")
		return
	}
	ack, err := c.session.Submit(domain.AnswerSubmission{
		ParticipantID: c.participantID,
		QuestionIndex: p.QuestionIndex,
		OptionID:      p.SelectedOptionID,
		ResponseTime:  time.Duration(p.ResponseTime * float64(time.Second)),
	})
	if err != nil && !errors.Is(err, domain.ErrSubmissionRejected) {
		h.reply(c, err)
		return
	}
	h.hub.SendTo(c.id, ack)
}

// detach leaves the room. Players are removed from the lobby or marked
// disconnected once the game started, so they can rejoin under the same nickname.
func (h *WSHandler) detach(_ context.Context, c *conn) {
	if !c.joined() {
		return
	}
	if c.role == domain.RolePlayer {
		c.session.Leave(c.participantID)
	}
	m, inRoom := h.hub.Membership(c.id)
	h.hub.Leave(c.id)
	if inRoom {
		c.log.Info("connection left", "participant_id", m.ParticipantID, "members", h.hub.Members(m.PIN))
	}
	c.session, c.role, c.participantID = nil, "", ""
}

func (h *WSHandler) requireHost(c *conn) bool {
	if c.role != domain.RoleHost {
		h.sendError(c, CodeForbidden, domain.ErrForbidden.Error())
		return false
	}
	return true
}

func (h *WSHandler) decode(c *conn, raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		h.sendError(c, CodeBadRequest, "invalid payload")
		return false
	}
	return true
}

// reply reports err to the connection; nil is silent since the outcome arrives as a broadcast.
func (h *WSHandler) reply(c *conn, err error) {
	if err == nil {
		return
	}
	status, code := classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		c.log.Error("command failed", "error", err)
		detail = "internal error"
	}
	h.sendError(c, code, detail)
}

func (h *WSHandler) sendError(c *conn, code, detail string) {
	h.hub.SendTo(c.id, domain.ErrorEvent{Code: code, Detail: detail})
}
