package http

import (
	"net/http"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/auth"
	"mathchrono-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Quiz           *app.QuizService
	Results        *app.ResultService
	Admin          *app.AdminService
	Tokens         *auth.TokenService
	Logger         *zap.Logger
	AllowedOrigins []string
	DefaultTotal   int
}

// NewRouter mounts the REST API, the quiz websocket and the health check.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.DefaultTotal <= 0 {
		d.DefaultTotal = app.DefaultQuizSize
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.With(requireParticipant(d.Tokens)).Get("/ws", NewWSHandler(d.Quiz, d.Logger, d.DefaultTotal).ServeWS)

	quiz := &quizHandler{quiz: d.Quiz, results: d.Results, logger: d.Logger, defaultTotal: d.DefaultTotal}
	admin := &adminHandler{admin: d.Admin, results: d.Results, tokens: d.Tokens, logger: d.Logger}

	r.Route("/api", func(r chi.Router) {
		// REST handlers get a deadline; the websocket above does not.
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/quiz", quiz.getQuiz)
		r.Post("/result/submit", quiz.submitResult)
		r.Post("/auth/login", admin.login)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(d.Tokens, domain.RoleAdmin))
			r.Get("/questions", admin.listQuestions)
			r.Post("/questions", admin.createQuestion)
			r.Put("/questions/{id}", admin.updateQuestion)
			r.Delete("/questions/{id}", admin.deleteQuestion)
			r.Get("/users", admin.listUsers)
			r.Post("/users", admin.createUser)
			r.Delete("/users/{id}", admin.deleteUser)
			r.Get("/stats", admin.stats)
			r.Get("/leaderboard", admin.leaderboard)
			r.Get("/export/grade/{grade}", admin.exportGrade)
		})
	})
	return r
}
