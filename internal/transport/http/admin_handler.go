package http

import (
	"net/http"
	"strings"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/auth"
	"mathchrono-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type adminHandler struct {
	admin   *app.AdminService
	results *app.ResultService
	tokens  *auth.TokenService
	logger  *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *adminHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := h.admin.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *adminHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.admin.ListQuestions(r.Context())
	if err != nil {
		h.fail(w, "list questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *adminHandler) createQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	created, err := h.admin.CreateQuestion(r.Context(), q)
	if err != nil {
		h.fail(w, "create question", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *adminHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	updated, err := h.admin.UpdateQuestion(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		h.fail(w, "update question", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *adminHandler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *adminHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var in app.NewUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := h.admin.CreateUser(r.Context(), in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *adminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *adminHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.results.Leaderboard(r.Context(), r.URL.Query().Get("grade"))
	if err != nil {
		h.fail(w, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *adminHandler) exportGrade(w http.ResponseWriter, r *http.Request) {
	grade := strings.TrimSpace(chi.URLParam(r, "grade"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="grade_`+sanitizeFilename(grade)+`_results.csv"`)
	if err := h.results.ExportCSV(r.Context(), grade, w); err != nil {
		// Headers may already be out; log and stop.
		h.logger.Error("csv export failed", zap.String("grade", grade), zap.Error(err))
	}
}

func (h *adminHandler) fail(w http.ResponseWriter, op string, err error) {
	if !domain.IsValidation(err) {
		h.logger.Warn("admin request failed", zap.String("op", op), zap.Error(err))
	}
	writeDomainError(w, err)
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
