package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
)

func TestSessionNaturalCompletion(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sink := &recordingSink{}
	questions := buildQuestions(3)
	session := app.NewSession(participant(), sink.submit, clock.options(false))

	if _, err := session.Answer(ctx, "", strPtr("x")); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Fatalf("expected not ready while loading, got %v", err)
	}
	if _, err := session.Load(nil); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions error, got %v", err)
	}

	p, err := session.Load(questions)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.State != app.StatePresenting || p.Position != 0 || p.Current.ID != "q1" {
		t.Fatalf("expected presenting q1, got %+v", p)
	}

	for i, q := range questions {
		clock.advance(4 * time.Second)
		p, err = session.Answer(ctx, q.ID, strPtr(q.CorrectValue()))
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	if p.State != app.StateDone {
		t.Fatalf("expected done, got %s", p.StateName)
	}
	if sink.calls() != 1 {
		t.Fatalf("expected one submission, got %d", sink.calls())
	}
	out := sink.last()
	if out.Score != 100 || out.Reason != app.ReasonCompleted || len(out.Answers) != 3 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Answers[0].ElapsedSeconds != 4 {
		t.Fatalf("expected 4s elapsed, got %d", out.Answers[0].ElapsedSeconds)
	}
	if p.Result == nil || p.Result.Score != 100 {
		t.Fatalf("expected result in progress, got %+v", p.Result)
	}
	select {
	case <-session.Done():
	default:
		t.Fatalf("expected done channel closed")
	}

	if _, err := session.Answer(ctx, "", strPtr("late")); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}

func TestSessionForcedTimeoutMidQuiz(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sink := &recordingSink{}
	questions := buildQuestions(30)
	session := app.NewSession(participant(), sink.submit, clock.options(false))
	if _, err := session.Load(questions); err != nil {
		t.Fatalf("load: %v", err)
	}

	// answer questions 1..9, then the countdown fires while question 10 is shown
	for i := 0; i < 9; i++ {
		clock.advance(2 * time.Second)
		if _, err := session.Answer(ctx, questions[i].ID, strPtr(questions[i].CorrectValue())); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	clock.advance(3 * time.Second)
	clock.fireCountdown()

	if sink.calls() != 1 {
		t.Fatalf("expected exactly one submission, got %d", sink.calls())
	}
	out := sink.last()
	if len(out.Answers) != 9 {
		t.Fatalf("expected 9 recorded answers, got %d", len(out.Answers))
	}
	if out.Reason != app.ReasonExpired {
		t.Fatalf("expected expired reason, got %s", out.Reason)
	}
	// 9 fast correct answers of 30 questions: 36/120
	if out.Score != 30 {
		t.Fatalf("expected score 30, got %d", out.Score)
	}

	// the natural path can no longer fire
	if _, err := session.Answer(ctx, "", strPtr("x")); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	session.Expire(ctx)
	if sink.calls() != 1 {
		t.Fatalf("expected latch to hold, got %d submissions", sink.calls())
	}
}

func TestSessionConcurrentTerminationFiresOnce(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{delay: 5 * time.Millisecond}
	questions := buildQuestions(1)

	for run := 0; run < 50; run++ {
		sink.reset()
		session := app.NewSession(participant(), sink.submit, newFakeClock().options(false))
		if _, err := session.Load(questions); err != nil {
			t.Fatalf("load: %v", err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = session.Answer(ctx, "", strPtr(questions[0].CorrectValue()))
		}()
		go func() {
			defer wg.Done()
			session.Expire(ctx)
		}()
		wg.Wait()
		if sink.calls() != 1 {
			t.Fatalf("run %d: expected one submission, got %d", run, sink.calls())
		}
	}
}

func TestSessionQuestionTimeoutRecordsUnanswered(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sink := &recordingSink{}
	questions := buildQuestions(2)
	session := app.NewSession(participant(), sink.submit, clock.options(true))
	if _, err := session.Load(questions); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.advance(60 * time.Second)
	clock.fireQuestionTimer(0)

	p := session.Progress()
	if p.Position != 1 {
		t.Fatalf("expected advance to position 1, got %d", p.Position)
	}

	// a stale timer for position 0 must not record again
	if _, err := session.TimeoutQuestion(ctx, 0); err != nil {
		t.Fatalf("stale timeout: %v", err)
	}
	if p := session.Progress(); p.Position != 1 {
		t.Fatalf("stale timeout advanced the session")
	}

	if _, err := session.Answer(ctx, questions[1].ID, strPtr(questions[1].CorrectValue())); err != nil {
		t.Fatalf("answer: %v", err)
	}
	out := sink.last()
	if len(out.Answers) != 2 || out.Answers[0].Value != nil {
		t.Fatalf("expected first answer unanswered, got %+v", out.Answers)
	}
	// one fast correct of two: 4/8
	if out.Score != 50 {
		t.Fatalf("expected 50, got %d", out.Score)
	}
}

func TestSessionAnswerOptionAndMismatch(t *testing.T) {
	ctx := context.Background()
	questions := buildQuestions(2)
	sink := &recordingSink{}
	session := app.NewSession(participant(), sink.submit, newFakeClock().options(false))
	if _, err := session.Load(questions); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := session.Answer(ctx, "q2", strPtr("a")); !errors.Is(err, domain.ErrQuestionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := session.AnswerOption(ctx, "q1", 9); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	p, err := session.AnswerOption(ctx, "q1", questions[0].CorrectIndex)
	if err != nil {
		t.Fatalf("answer option: %v", err)
	}
	if p.Position != 1 {
		t.Fatalf("expected position 1, got %d", p.Position)
	}
}

func TestSessionRetryAfterFailedSubmit(t *testing.T) {
	ctx := context.Background()
	questions := buildQuestions(1)
	sink := &recordingSink{failures: 1}
	session := app.NewSession(participant(), sink.submit, newFakeClock().options(false))
	if _, err := session.Load(questions); err != nil {
		t.Fatalf("load: %v", err)
	}

	p, err := session.Answer(ctx, "", strPtr(questions[0].CorrectValue()))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if p.State != app.StateSubmitting || p.SubmitErr == nil || p.Outcome == nil {
		t.Fatalf("expected failed submission preserved, got %+v", p)
	}
	if p.Outcome.Score != 100 {
		t.Fatalf("expected computed score kept, got %d", p.Outcome.Score)
	}

	p, err = session.RetrySubmit(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if p.State != app.StateDone || sink.calls() != 2 {
		t.Fatalf("expected done after retry, got state=%s calls=%d", p.StateName, sink.calls())
	}
	if _, err := session.RetrySubmit(ctx); !errors.Is(err, domain.ErrNothingToRetry) {
		t.Fatalf("expected nothing to retry, got %v", err)
	}
}

func TestSessionSignalsChanges(t *testing.T) {
	ctx := context.Background()
	questions := buildQuestions(2)
	sink := &recordingSink{failures: 1}
	session := app.NewSession(participant(), sink.submit, newFakeClock().options(false))

	drained := func() bool {
		select {
		case <-session.Changes():
			return true
		default:
			return false
		}
	}

	if _, err := session.Load(questions); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !drained() {
		t.Fatalf("expected a change signal after load")
	}
	if drained() {
		t.Fatalf("signals must coalesce into one pending notification")
	}

	p, _ := session.Answer(ctx, "", strPtr("x"))
	if !drained() || p.Position != 1 {
		t.Fatalf("expected signal on advance, got %+v", p)
	}
	p, _ = session.Answer(ctx, "", strPtr("x"))
	if !drained() || p.Attempts != 1 || p.SubmitErr == nil {
		t.Fatalf("expected failed first attempt signalled, got %+v", p)
	}

	p, err := session.RetrySubmit(ctx)
	if err != nil || p.Attempts != 2 || !drained() {
		t.Fatalf("expected second attempt signalled, got %+v %v", p, err)
	}
}

func TestSessionVisibilityAndAbandon(t *testing.T) {
	sink := &recordingSink{}
	clock := newFakeClock()
	session := app.NewSession(participant(), sink.submit, clock.options(false))
	if _, err := session.Load(buildQuestions(3)); err != nil {
		t.Fatalf("load: %v", err)
	}

	msg, count := session.VisibilityLost()
	if msg == "" || count != 1 {
		t.Fatalf("expected first warning, got %q %d", msg, count)
	}
	if p := session.Progress(); p.State != app.StatePresenting {
		t.Fatalf("visibility loss must not end the session")
	}

	session.Abandon()
	clock.fireCountdown()
	if sink.calls() != 0 {
		t.Fatalf("abandoned sessions must not submit, got %d", sink.calls())
	}
	if p := session.Progress(); p.State != app.StateDone {
		t.Fatalf("expected done after abandon, got %s", p.StateName)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []app.Outcome
	count    int32
	failures int
	delay    time.Duration
}

func (r *recordingSink) submit(_ context.Context, out app.Outcome) (domain.Result, error) {
	atomic.AddInt32(&r.count, 1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
	if r.failures > 0 {
		r.failures--
		return domain.Result{}, errors.New("store down")
	}
	return domain.Result{
		ParticipantID: out.Participant.ID,
		TeamName:      out.Participant.TeamName,
		Grade:         out.Participant.Grade,
		Score:         out.Score,
	}, nil
}

func (r *recordingSink) calls() int {
	return int(atomic.LoadInt32(&r.count))
}

func (r *recordingSink) last() app.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return app.Outcome{}
	}
	return r.outcomes[len(r.outcomes)-1]
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = nil
	atomic.StoreInt32(&r.count, 0)
}

// fakeClock drives time and timers by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) options(questionTimeouts bool) app.SessionOptions {
	return app.SessionOptions{
		Duration:         15 * time.Minute,
		QuestionTimeouts: questionTimeouts,
		Now:              c.Now,
		AfterFunc:        c.AfterFunc,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireCountdown runs the first (session-wide) timer, even if stopped, to
// prove late firings are harmless.
func (c *fakeClock) fireCountdown() {
	c.mu.Lock()
	if len(c.timers) == 0 {
		c.mu.Unlock()
		return
	}
	f := c.timers[0].f
	c.mu.Unlock()
	f()
}

// fireQuestionTimer runs the n-th per-question timer.
func (c *fakeClock) fireQuestionTimer(n int) {
	c.mu.Lock()
	f := c.timers[n+1].f
	c.mu.Unlock()
	f()
}

func participant() domain.Participant {
	return domain.Participant{ID: "PART_1", TeamName: "Pi Rates", Grade: "10", Language: domain.LanguageEnglish}
}

func strPtr(s string) *string {
	return &s
}
