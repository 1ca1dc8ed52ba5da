package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/domain"
)

// Error codes shared by the REST and socket surfaces.
const (
	CodeNotFound           = "not_found"
	CodeNicknameConflict   = "nickname_conflict"
	CodeInvalidTransition  = "invalid_transition"
	CodeSubmissionRejected = "submission_rejected"
	CodeNotReady           = "not_ready"
	CodeValidation         = "validation_error"
	CodeForbidden          = "forbidden"
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps a domain error onto an HTTP status and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrNicknameConflict):
		return http.StatusConflict, CodeNicknameConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, domain.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity, CodeSubmissionRejected
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusTooEarly, CodeNotReady
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}
