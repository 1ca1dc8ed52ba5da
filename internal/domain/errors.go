package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every lookup failure (unknown PIN, question set, participant).
	ErrNotFound = errors.New("not found")
	// ErrNicknameConflict is returned when a nickname is already taken in the session.
	ErrNicknameConflict = errors.New("nickname already taken")
	// ErrInvalidTransition is returned for commands the session state does not allow.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSubmissionRejected marks late, duplicate, or malformed answers. It is never fatal.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrNotReady is returned when results are requested before the session finished.
	ErrNotReady = errors.New("results not ready")
	// ErrValidation is the root of malformed input (question sets, commands).
	ErrValidation = errors.New("validation failed")
	// ErrForbidden is returned when a non-host issues a host command.
	ErrForbidden = errors.New("host privileges required")

	// ErrSessionNotFound is returned when no live session uses the PIN.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = fmt.Errorf("question set %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a participant acts before joining.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrPINInUse is returned by registries when a PIN is already reserved.
	ErrPINInUse = errors.New("pin already in use")
)

// ValidationError names the offending field of a rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Rejection reasons carried by answer acknowledgments.
const (
	RejectNotOpen       = "question_not_open"
	RejectWrongQuestion = "wrong_question"
	RejectLate          = "late"
	RejectDuplicate     = "duplicate"
	RejectUnknownOption = "unknown_option"
)

// RejectedError wraps ErrSubmissionRejected with the reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "submission rejected: " + e.Reason }

func (e *RejectedError) Unwrap() error { return ErrSubmissionRejected }
