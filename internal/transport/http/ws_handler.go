package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/auth"
	"mathchrono-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSHandler struct {
	service      *app.QuizService
	logger       *zap.Logger
	defaultTotal int
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger, defaultTotal int) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service:      service,
		logger:       logger,
		defaultTotal: defaultTotal,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// answerPayload carries either a literal value or an option index. Neither
// means the participant skipped the question.
type answerPayload struct {
	QuestionID  string  `json:"questionId"`
	Value       *string `json:"value"`
	OptionIndex *int    `json:"optionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type questionPayload struct {
	Position int                   `json:"position"`
	Total    int                   `json:"total"`
	Deadline time.Time             `json:"deadline"`
	Question domain.PublicQuestion `json:"question"`
}

type resultPayload struct {
	Score    int           `json:"score"`
	Answered int           `json:"answered"`
	Total    int           `json:"total"`
	Reason   app.EndReason `json:"reason"`
	Warnings int           `json:"warnings"`
}

type submitErrorPayload struct {
	Message string `json:"message"`
	Score   int    `json:"score"`
}

type warningPayload struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one answer session per connection.
// The participant comes from the verified token claims. Query: teamName,
// grade (defaults to the token's), language (english|malay), total, and
// optionally participantId, which must match the token.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.ParticipantID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	if id := q.Get("participantId"); id != "" && id != claims.ParticipantID {
		http.Error(w, "participantId does not match token", http.StatusForbidden)
		return
	}
	participant := domain.Participant{
		ID:       claims.ParticipantID,
		TeamName: q.Get("teamName"),
		Grade:    q.Get("grade"),
		Language: domain.Language(q.Get("language")),
	}
	if participant.Grade == "" {
		participant.Grade = claims.Grade
	}
	if participant.TeamName == "" || participant.Grade == "" {
		http.Error(w, "missing teamName or grade", http.StatusBadRequest)
		return
	}
	total := h.defaultTotal
	if raw := q.Get("total"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.service.MaxTotal() {
			http.Error(w, fmt.Sprintf("total must be between 1 and %d", h.service.MaxTotal()), http.StatusBadRequest)
			return
		}
		total = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, _, err := h.service.Start(ctx, participant, total)
	if err != nil {
		h.logger.Warn("quiz start failed", zap.String("participantId", participant.ID), zap.Error(err))
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	lang := session.Participant().Language

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	watcherDone := make(chan struct{})

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-writerDone:
		}
	}

	// Single writer; everything else goes through send.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	// Timers move the session too, so state pushes are driven by change signals.
	go func() {
		defer close(watcherDone)
		var last progressKey
		for {
			select {
			case <-session.Changes():
				p := session.Progress()
				key := keyOf(p)
				if key == last {
					continue
				}
				last = key
				if typ, payload, ok := progressMessage(p, lang); ok {
					emit(typ, payload)
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					emit("error", errorPayload{Message: "invalid answer payload"})
					continue
				}
			}
			if payload.OptionIndex != nil {
				_, err = session.AnswerOption(ctx, payload.QuestionID, *payload.OptionIndex)
			} else {
				_, err = session.Answer(ctx, payload.QuestionID, payload.Value)
			}
			if err != nil {
				emit("error", errorPayload{Message: err.Error()})
			}
		case "visibility":
			msg, count := session.VisibilityLost()
			emit("warning", warningPayload{Message: msg, Count: count})
		case "retry":
			if _, err := h.service.Retry(ctx, participant.ID); err != nil {
				emit("error", errorPayload{Message: err.Error()})
			}
		default:
			emit("error", errorPayload{Message: "unsupported message type"})
		}
	}

	// Leaving mid-quiz abandons the session without a result.
	h.service.Release(session)
	close(closeSignals)
	<-watcherDone
	close(send)
	<-writerDone
}

type progressKey struct {
	state     app.SessionState
	position  int
	attempts  int
	submitErr bool
}

func keyOf(p app.Progress) progressKey {
	return progressKey{state: p.State, position: p.Position, attempts: p.Attempts, submitErr: p.SubmitErr != nil}
}

func progressMessage(p app.Progress, lang domain.Language) (string, any, bool) {
	switch {
	case p.State == app.StatePresenting && p.Current != nil:
		return "question", questionPayload{
			Position: p.Position,
			Total:    p.Total,
			Deadline: p.Deadline,
			Question: p.Current.Public(lang),
		}, true
	case p.State == app.StateSubmitting && p.SubmitErr != nil && p.Outcome != nil:
		return "submitError", submitErrorPayload{Message: "result could not be saved, send retry", Score: p.Outcome.Score}, true
	case p.State == app.StateDone && p.Outcome != nil:
		return "result", resultPayload{
			Score:    p.Outcome.Score,
			Answered: len(p.Outcome.Answers),
			Total:    p.Outcome.Total,
			Reason:   p.Outcome.Reason,
			Warnings: p.Outcome.Warnings,
		}, true
	default:
		return "", nil, false
	}
}
