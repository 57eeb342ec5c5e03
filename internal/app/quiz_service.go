package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mathchrono-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// SessionRepository abstracts where running answer sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	// Replace registers session for participantID and returns the one it displaced.
	Replace(participantID string, session *Session) *Session
	Get(participantID string) (*Session, bool)
	// Remove unregisters participantID only while it still maps to session.
	Remove(participantID string, session *Session)
}

// QuizService contains the participant-facing quiz use cases.
type QuizService struct {
	assembler *Assembler
	sessions  SessionRepository
	results   *ResultService
	opts      SessionOptions
	maxTotal  int
	logger    *zap.Logger
}

func NewQuizService(assembler *Assembler, sessions SessionRepository, results *ResultService, opts SessionOptions, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		assembler: assembler,
		sessions:  sessions,
		results:   results,
		opts:      opts,
		maxTotal:  MaxQuizSize,
		logger:    logger,
	}
}

// WithMaxTotal caps the question count a caller may request.
func (s *QuizService) WithMaxTotal(n int) *QuizService {
	if n > 0 {
		s.maxTotal = n
	}
	return s
}

// MaxTotal is the largest accepted question count.
func (s *QuizService) MaxTotal() int {
	return s.maxTotal
}

func (s *QuizService) checkTotal(verr *domain.ValidationError, total int) {
	if total < 0 || total > s.maxTotal {
		verr.Add("total", fmt.Sprintf("must be between 1 and %d", s.maxTotal))
	}
}

// Assemble draws a quiz without starting a session.
func (s *QuizService) Assemble(ctx context.Context, total int, grade string) ([]domain.Question, error) {
	verr := &domain.ValidationError{}
	s.checkTotal(verr, total)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return s.assembler.Assemble(ctx, total, strings.TrimSpace(grade))
}

// Start abandons any running session of the participant, assembles a fresh
// quiz and presents its first question.
func (s *QuizService) Start(ctx context.Context, p domain.Participant, total int) (*Session, Progress, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.TeamName = strings.TrimSpace(p.TeamName)
	p.Grade = strings.TrimSpace(p.Grade)
	if p.Language == "" {
		p.Language = domain.LanguageEnglish
	}
	verr := &domain.ValidationError{}
	if p.ID == "" {
		verr.Add("participantId", "required")
	}
	if p.TeamName == "" {
		verr.Add("teamName", "required")
	}
	if p.Grade == "" {
		verr.Add("grade", "required")
	}
	s.checkTotal(verr, total)
	if err := verr.OrNil(); err != nil {
		return nil, Progress{}, err
	}

	session := NewSession(p, s.submitOutcome, s.opts)
	if prev := s.sessions.Replace(p.ID, session); prev != nil {
		prev.Abandon()
	}

	questions, err := s.assembler.Assemble(ctx, total, p.Grade)
	if err != nil {
		s.sessions.Remove(p.ID, session)
		return nil, Progress{}, err
	}
	progress, err := session.Load(questions)
	if err != nil {
		s.sessions.Remove(p.ID, session)
		return nil, Progress{}, err
	}

	s.logger.Info("quiz session started",
		zap.String("participantId", p.ID),
		zap.String("grade", p.Grade),
		zap.Int("questions", len(questions)),
	)
	go s.reap(p.ID, session)
	return session, progress, nil
}

// Session returns the running session of participantID.
func (s *QuizService) Session(participantID string) (*Session, error) {
	session, ok := s.sessions.Get(participantID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Retry re-sends a failed submission and unregisters the session on success.
func (s *QuizService) Retry(ctx context.Context, participantID string) (Progress, error) {
	session, err := s.Session(participantID)
	if err != nil {
		return Progress{}, err
	}
	progress, err := session.RetrySubmit(ctx)
	if err != nil {
		return progress, err
	}
	if progress.State == StateDone {
		s.sessions.Remove(participantID, session)
	}
	return progress, nil
}

// Abandon drops the participant's session without persisting a result.
func (s *QuizService) Abandon(participantID string) {
	session, ok := s.sessions.Get(participantID)
	if !ok {
		return
	}
	session.Abandon()
	s.sessions.Remove(participantID, session)
}

// Release abandons session and unregisters it, leaving any newer session of
// the same participant untouched.
func (s *QuizService) Release(session *Session) {
	session.Abandon()
	s.sessions.Remove(session.Participant().ID, session)
}

// reap unregisters a session once it is finished for good. Sessions whose
// submit failed stay registered so the participant can retry.
func (s *QuizService) reap(participantID string, session *Session) {
	<-session.Done()
	p := session.Progress()
	fields := []zap.Field{zap.String("participantId", participantID), zap.String("state", p.StateName)}
	if p.Outcome != nil {
		fields = append(fields, zap.String("reason", string(p.Outcome.Reason)), zap.Int("score", p.Outcome.Score))
	}
	if p.SubmitErr != nil {
		s.logger.Warn("quiz submission failed", append(fields, zap.Error(p.SubmitErr))...)
		s.evictAfter(participantID, session, s.opts.withDefaults().RetryWindow)
		return
	}
	s.logger.Info("quiz session finished", fields...)
	s.sessions.Remove(participantID, session)
}

// evictAfter drops a session still waiting for a retry once window has passed.
func (s *QuizService) evictAfter(participantID string, session *Session, window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	<-timer.C

	if current, ok := s.sessions.Get(participantID); !ok || current != session {
		return
	}
	p := session.Progress()
	if p.State == StateDone {
		s.sessions.Remove(participantID, session)
		return
	}
	fields := []zap.Field{zap.String("participantId", participantID), zap.Int("attempts", p.Attempts)}
	if p.Outcome != nil {
		fields = append(fields, zap.Int("score", p.Outcome.Score))
	}
	s.logger.Warn("evicting session with unsaved result", fields...)
	s.Release(session)
}

func (s *QuizService) submitOutcome(ctx context.Context, out Outcome) (domain.Result, error) {
	score := out.Score
	return s.results.Submit(ctx, SubmitResultInput{
		ParticipantID: out.Participant.ID,
		TeamName:      out.Participant.TeamName,
		Grade:         out.Participant.Grade,
		Score:         &score,
	})
}
