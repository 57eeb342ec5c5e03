package app

import (
	"context"
	"math"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/domain"
)

// SessionState is the answer-session lifecycle position.
type SessionState int

const (
	StateLoading SessionState = iota
	StatePresenting
	StateSubmitting
	StateDone
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePresenting:
		return "presenting"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// EndReason records why a session stopped taking answers.
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonExpired   EndReason = "expired"
	ReasonAbandoned EndReason = "abandoned"
)

// DefaultSessionDuration is the whole-quiz countdown.
const DefaultSessionDuration = 15 * time.Minute

// DefaultRetryWindow is how long a session with a failed submission waits for
// a retry before it is evicted.
const DefaultRetryWindow = 10 * time.Minute

// VisibilityWarning is returned when the participant leaves the quiz window.
const VisibilityWarning = "Switching tabs or windows is not allowed during the quiz."

// Outcome is the frozen answer log and score handed to the result sink.
// It is kept after a failed submit so a retry does not replay the quiz.
type Outcome struct {
	Participant domain.Participant `json:"participant"`
	Answers     []domain.Answer    `json:"answers"`
	Total       int                `json:"total"`
	Score       int                `json:"score"`
	Reason      EndReason          `json:"reason"`
	Warnings    int                `json:"warnings"`
}

// SubmitFunc persists an outcome.
type SubmitFunc func(ctx context.Context, out Outcome) (domain.Result, error)

// Timer is the part of *time.Timer the session needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d; swapped out in tests.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SessionOptions configures timing and scoring for one session.
type SessionOptions struct {
	Duration         time.Duration
	QuestionTimeouts bool
	SubmitTimeout    time.Duration
	RetryWindow      time.Duration
	Rules            ScoringRules
	Now              func() time.Time
	AfterFunc        AfterFunc
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Duration <= 0 {
		o.Duration = DefaultSessionDuration
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 15 * time.Second
	}
	if o.RetryWindow <= 0 {
		o.RetryWindow = DefaultRetryWindow
	}
	if o.Rules == (ScoringRules{}) {
		o.Rules = DefaultScoringRules()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = realAfterFunc
	}
	return o
}

// Progress is a snapshot returned from every transition.
type Progress struct {
	State     SessionState     `json:"-"`
	StateName string           `json:"state"`
	Position  int              `json:"position"`
	Total     int              `json:"total"`
	Current   *domain.Question `json:"-"`
	Deadline  time.Time        `json:"deadline"`
	Outcome   *Outcome         `json:"outcome,omitempty"`
	Result    *domain.Result   `json:"result,omitempty"`
	SubmitErr error            `json:"-"`
	Attempts  int              `json:"attempts"`
}

// Session is the per-participant answer state machine:
// Loading -> Presenting(i) -> Submitting -> Done. Every mutation goes through
// mu, and the submit latch guarantees one automatic submission per session.
type Session struct {
	participant domain.Participant
	opts        SessionOptions
	submit      SubmitFunc

	mu          sync.Mutex
	state       SessionState
	questions   []domain.Question
	position    int
	presentedAt time.Time
	deadline    time.Time
	answers     []domain.Answer
	warnings    int
	fired       bool
	outcome     *Outcome
	result      *domain.Result
	submitErr   error
	attempts    int
	countdown   Timer
	questionTmr Timer

	done     chan struct{}
	doneOnce sync.Once
	changes  chan struct{}
}

// NewSession creates a session in the Loading state.
func NewSession(participant domain.Participant, submit SubmitFunc, opts SessionOptions) *Session {
	return &Session{
		participant: participant,
		opts:        opts.withDefaults(),
		submit:      submit,
		state:       StateLoading,
		done:        make(chan struct{}),
		changes:     make(chan struct{}, 1),
	}
}

// Participant returns the session owner.
func (s *Session) Participant() domain.Participant {
	return s.participant
}

// Done is closed after the first submission attempt finishes or the session is abandoned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Changes receives a signal after every transition, including those fired by
// timers. Signals coalesce; read Progress for the current state.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Load moves Loading -> Presenting(0) and arms the countdown.
func (s *Session) Load(questions []domain.Question) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return s.progressLocked(), domain.ErrSessionClosed
	}
	if len(questions) == 0 {
		return s.progressLocked(), domain.ErrNoQuestions
	}

	s.questions = append([]domain.Question(nil), questions...)
	s.answers = make([]domain.Answer, 0, len(questions))
	now := s.opts.Now()
	s.deadline = now.Add(s.opts.Duration)
	s.countdown = s.opts.AfterFunc(s.opts.Duration, s.expireFromTimer)
	s.presentLocked(0, now)
	return s.progressLocked(), nil
}

// Answer records value for the current question and advances. questionID may be
// empty; when set it must match the current question.
func (s *Session) Answer(ctx context.Context, questionID string, value *string) (Progress, error) {
	s.mu.Lock()
	if err := s.acceptingLocked(questionID); err != nil {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, err
	}
	fire := s.recordLocked(value)
	s.mu.Unlock()

	return s.afterTransition(ctx, fire), nil
}

// AnswerOption records the option at index for choice questions.
func (s *Session) AnswerOption(ctx context.Context, questionID string, index int) (Progress, error) {
	s.mu.Lock()
	if err := s.acceptingLocked(questionID); err != nil {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, err
	}
	value, err := s.questions[s.position].OptionValue(index)
	if err != nil {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, err
	}
	fire := s.recordLocked(&value)
	s.mu.Unlock()

	return s.afterTransition(ctx, fire), nil
}

// TimeoutQuestion records the question at position as unanswered. Stale
// timeouts for questions already answered are ignored.
func (s *Session) TimeoutQuestion(ctx context.Context, position int) (Progress, error) {
	s.mu.Lock()
	if s.state != StatePresenting || s.position != position {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, nil
	}
	fire := s.recordLocked(nil)
	s.mu.Unlock()

	return s.afterTransition(ctx, fire), nil
}

// Expire is the forced termination: the in-flight question is not recorded.
func (s *Session) Expire(ctx context.Context) Progress {
	s.mu.Lock()
	fire := false
	if s.state == StatePresenting {
		fire = s.finishLocked(ReasonExpired)
	}
	s.mu.Unlock()

	return s.afterTransition(ctx, fire)
}

// VisibilityLost counts an anti-cheat signal. It never changes state.
func (s *Session) VisibilityLost() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings++
	return VisibilityWarning, s.warnings
}

// Abandon ends the session without persisting anything.
func (s *Session) Abandon() {
	s.mu.Lock()
	if s.state == StateLoading || s.state == StatePresenting {
		s.fired = true
		s.state = StateDone
		s.stopTimersLocked()
	}
	s.mu.Unlock()
	s.signal()
	s.closeDone()
}

// RetrySubmit re-sends the preserved outcome after a failed submission.
func (s *Session) RetrySubmit(ctx context.Context) (Progress, error) {
	s.mu.Lock()
	if s.state != StateSubmitting || s.submitErr == nil {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, domain.ErrNothingToRetry
	}
	s.submitErr = nil
	s.mu.Unlock()

	return s.afterTransition(ctx, true), nil
}

// Progress returns the current snapshot.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) acceptingLocked(questionID string) error {
	switch s.state {
	case StateLoading:
		return domain.ErrSessionNotReady
	case StatePresenting:
	default:
		return domain.ErrSessionClosed
	}
	if questionID != "" && questionID != s.questions[s.position].ID {
		return domain.ErrQuestionMismatch
	}
	return nil
}

// recordLocked appends exactly one answer and advances; it reports whether
// the submit latch fired.
func (s *Session) recordLocked(value *string) bool {
	now := s.opts.Now()
	var stored *string
	if value != nil {
		v := *value
		stored = &v
	}
	s.answers = append(s.answers, domain.Answer{
		QuestionID:     s.questions[s.position].ID,
		Value:          stored,
		ElapsedSeconds: elapsedSeconds(s.presentedAt, now),
	})

	next := s.position + 1
	if next >= len(s.questions) {
		s.position = next
		return s.finishLocked(ReasonCompleted)
	}
	s.presentLocked(next, now)
	return false
}

func (s *Session) presentLocked(position int, now time.Time) {
	s.state = StatePresenting
	s.position = position
	s.presentedAt = now
	s.signal()

	if s.questionTmr != nil {
		s.questionTmr.Stop()
		s.questionTmr = nil
	}
	if !s.opts.QuestionTimeouts {
		return
	}
	ref := s.questions[position].TimeRefSec
	if ref <= 0 {
		return
	}
	s.questionTmr = s.opts.AfterFunc(time.Duration(ref)*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
		defer cancel()
		_, _ = s.TimeoutQuestion(ctx, position)
	})
}

// finishLocked is the single authoritative termination transition.
func (s *Session) finishLocked(reason EndReason) bool {
	if s.fired {
		return false
	}
	s.fired = true
	s.state = StateSubmitting
	s.stopTimersLocked()
	s.signal()

	answers := append([]domain.Answer(nil), s.answers...)
	s.outcome = &Outcome{
		Participant: s.participant,
		Answers:     answers,
		Total:       len(s.questions),
		Score:       s.opts.Rules.Score(answers, s.questions),
		Reason:      reason,
		Warnings:    s.warnings,
	}
	return true
}

func (s *Session) afterTransition(ctx context.Context, fire bool) Progress {
	if fire {
		s.deliver(ctx)
	}
	return s.Progress()
}

// deliver runs the submit call outside the lock; the latch already keeps
// concurrent triggers out.
func (s *Session) deliver(ctx context.Context) {
	s.mu.Lock()
	out := *s.outcome
	s.attempts++
	s.mu.Unlock()

	var (
		result domain.Result
		err    error
	)
	if s.submit != nil {
		result, err = s.submit(ctx, out)
	}

	s.mu.Lock()
	if err != nil {
		s.submitErr = err
	} else {
		s.result = &result
		s.state = StateDone
	}
	s.mu.Unlock()
	s.signal()
	s.closeDone()
}

func (s *Session) expireFromTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	defer cancel()
	s.Expire(ctx)
}

func (s *Session) stopTimersLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.questionTmr != nil {
		s.questionTmr.Stop()
		s.questionTmr = nil
	}
}

func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) progressLocked() Progress {
	p := Progress{
		State:     s.state,
		StateName: s.state.String(),
		Position:  s.position,
		Total:     len(s.questions),
		Deadline:  s.deadline,
		SubmitErr: s.submitErr,
		Attempts:  s.attempts,
	}
	if s.state == StatePresenting {
		q := s.questions[s.position]
		p.Current = &q
	}
	if s.outcome != nil {
		out := *s.outcome
		p.Outcome = &out
	}
	if s.result != nil {
		r := *s.result
		p.Result = &r
	}
	return p
}

func elapsedSeconds(from, to time.Time) int {
	secs := int(math.Round(to.Sub(from).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
