package http

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type SessionHandler struct {
	service   *app.QuizService
	publicURL string
}

func NewSessionHandler(service *app.QuizService, publicURL string) *SessionHandler {
	return &SessionHandler{service: service, publicURL: strings.TrimRight(publicURL, "/")}
}

type CreateSessionRequest struct {
	QuestionSetID string `json:"question_set_id" binding:"required"`
	HostName      string `json:"host_name" binding:"required"`
}

type CreateSessionResponse struct {
	Session   domain.SessionInfo `json:"session"`
	HostToken string             `json:"host_token"`
}

type QRResponse struct {
	PIN       string `json:"pin"`
	JoinURL   string `json:"join_url"`
	QRDataURL string `json:"qr_data_url"`
}

// Create opens a lobby for a stored question set.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), req.QuestionSetID, req.HostName, c.GetString(hostIDKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{
		Session:   session.Info(),
		HostToken: session.HostToken(),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Session(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Info())
}

func (h *SessionHandler) Leaderboard(c *gin.Context) {
	board, err := h.service.Leaderboard(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// Export downloads the final results; 425 until the session finished.
func (h *SessionHandler) Export(c *gin.Context) {
	art, err := h.service.ExportResults(c.Request.Context(), c.Param("pin"), c.DefaultQuery("format", "csv"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.Filename))
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

// QR renders the join link of a session as a PNG data URL.
func (h *SessionHandler) QR(c *gin.Context) {
	session, err := h.service.Session(c.Request.Context(), c.Param("pin"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	join := h.joinURL(c, session.PIN())
	png, err := qrcode.Encode(join, qrcode.Medium, 256)
	if err != nil {
		abortWithError(c, fmt.Errorf("encode qr: %w", err))
		return
	}
	c.JSON(http.StatusOK, QRResponse{
		PIN:       session.PIN(),
		JoinURL:   join,
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (h *SessionHandler) joinURL(c *gin.Context, pin string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/join?pin=" + url.QueryEscape(pin)
}
