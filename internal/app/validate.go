package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// QuestionSetValidator checks the structural well-formedness of question sets
// handed over by the generation service or the host review flow.
type QuestionSetValidator struct {
	validate *validator.Validate
}

func NewQuestionSetValidator() *QuestionSetValidator {
	return &QuestionSetValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Prepare normalises a question set for confirmation: it trims text, assigns missing
// ids and default time limits, then validates. The returned set is what gets stored.
func (v *QuestionSetValidator) Prepare(set domain.QuestionSet, now time.Time) (domain.QuestionSet, error) {
	out := domain.QuestionSet{
		ID:        strings.TrimSpace(set.ID),
		Title:     strings.TrimSpace(set.Title),
		CreatedAt: set.CreatedAt,
		Questions: make([]domain.Question, len(set.Questions)),
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	for i, q := range set.Questions {
		nq := domain.Question{
			ID:               strings.TrimSpace(q.ID),
			Text:             strings.TrimSpace(q.Text),
			CorrectOptionID:  strings.TrimSpace(q.CorrectOptionID),
			TimeLimitSeconds: q.TimeLimitSeconds,
			Points:           q.Points,
			Options:          make([]domain.Option, len(q.Options)),
		}
		if nq.ID == "" {
			nq.ID = fmt.Sprintf("q%d", i+1)
		}
		if nq.TimeLimitSeconds == 0 {
			nq.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
		}
		for j, opt := range q.Options {
			nq.Options[j] = domain.Option{ID: strings.TrimSpace(opt.ID), Text: strings.TrimSpace(opt.Text)}
		}
		out.Questions[i] = nq
	}

	if err := v.Validate(out); err != nil {
		return domain.QuestionSet{}, err
	}
	return out, nil
}

// Validate checks struct constraints and that every correct option is one of the listed options.
func (v *QuestionSetValidator) Validate(set domain.QuestionSet) error {
	if err := v.validate.Struct(set); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return domain.NewValidationError(fieldPath(fe.Namespace()), describe(fe))
		}
		return domain.NewValidationError("", err.Error())
	}
	seen := make(map[string]bool, len(set.Questions))
	for i, q := range set.Questions {
		if seen[q.ID] {
			return domain.NewValidationError(fmt.Sprintf("questions[%d].id", i), "duplicate question id "+q.ID)
		}
		seen[q.ID] = true
		if !q.HasOption(q.CorrectOptionID) {
			return domain.NewValidationError(fmt.Sprintf("questions[%d].correct_option_id", i),
				fmt.Sprintf("%q is not one of the listed options", q.CorrectOptionID))
		}
	}
	return nil
}

// fieldPath turns "QuestionSet.Questions[0].Options" into "questions[0].options".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param()
	case "max":
		return "allows at most " + fe.Param()
	case "unique":
		return "must have unique " + strings.ToLower(fe.Param()) + " values"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
