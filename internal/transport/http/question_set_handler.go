package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type QuestionSetHandler struct {
	service *app.QuizService
}

func NewQuestionSetHandler(service *app.QuizService) *QuestionSetHandler {
	return &QuestionSetHandler{service: service}
}

// Create confirms a reviewed question set and stores it.
func (h *QuestionSetHandler) Create(c *gin.Context) {
	var set domain.QuestionSet
	if err := c.ShouldBindJSON(&set); err != nil {
		badRequest(c, "invalid question set body: "+err.Error())
		return
	}
	saved, err := h.service.ConfirmQuestionSet(c.Request.Context(), set)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *QuestionSetHandler) List(c *gin.Context) {
	sets, err := h.service.QuestionSets(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if sets == nil {
		sets = []domain.QuestionSetSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"question_sets": sets})
}

func (h *QuestionSetHandler) Get(c *gin.Context) {
	set, err := h.service.QuestionSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *QuestionSetHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteQuestionSet(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
