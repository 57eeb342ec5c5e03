package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	"go.uber.org/zap"
)

type quizHandler struct {
	quiz         *app.QuizService
	results      *app.ResultService
	logger       *zap.Logger
	defaultTotal int
}

type quizResponse struct {
	Questions []domain.PublicQuestion `json:"questions"`
	Total     int                     `json:"total"`
}

// getQuiz assembles a quiz without starting a session. Answer keys are never included.
func (h *quizHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	total := h.defaultTotal
	if raw := r.URL.Query().Get("total"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.quiz.MaxTotal() {
			writeDomainError(w, &domain.ValidationError{Fields: []domain.FieldError{{Field: "total", Message: fmt.Sprintf("must be between 1 and %d", h.quiz.MaxTotal())}}})
			return
		}
		total = n
	}
	lang := domain.Language(strings.ToLower(r.URL.Query().Get("lang")))

	questions, err := h.quiz.Assemble(r.Context(), total, r.URL.Query().Get("grade"))
	if domain.IsValidation(err) {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		h.logger.Error("quiz assembly failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not load questions")
		return
	}
	out := make([]domain.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.Public(lang))
	}
	writeJSON(w, http.StatusOK, quizResponse{Questions: out, Total: len(out)})
}

func (h *quizHandler) submitResult(w http.ResponseWriter, r *http.Request) {
	var in app.SubmitResultInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := h.results.Submit(r.Context(), in)
	if err != nil {
		if !domain.IsValidation(err) {
			h.logger.Error("result submit failed", zap.String("participantId", in.ParticipantID), zap.Error(err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Result submitted successfully", "result": result})
}
