package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	"mathchrono-quiz-service/internal/infra/memory"
)

func TestStartPlayAndSubmit(t *testing.T) {
	ctx := context.Background()
	svc, sessions, results, resultSvc := newTestService(t, nil)

	session, p, err := svc.Start(ctx, participant(), 10)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if p.State != app.StatePresenting || p.Total != 10 {
		t.Fatalf("expected 10 presented questions, got %+v", p)
	}
	if got, err := svc.Session("PART_1"); err != nil || got != session {
		t.Fatalf("expected registered session, got %v %v", got, err)
	}

	for p.State == app.StatePresenting {
		p, err = session.Answer(ctx, p.Current.ID, strPtr(p.Current.CorrectValue()))
		if err != nil {
			t.Fatalf("answer failed: %v", err)
		}
	}
	if p.State != app.StateDone || p.Result == nil || p.Result.Score != 100 {
		t.Fatalf("expected perfect stored result, got %+v", p)
	}
	resultSvc.Wait()

	stored, err := results.ListResults(ctx, "10")
	if err != nil || len(stored) != 1 || stored[0].Score != 100 {
		t.Fatalf("expected one stored result, got %+v %v", stored, err)
	}
	waitUntil(t, func() bool { return sessions.Len() == 0 })
}

func TestStartReplacesRunningSession(t *testing.T) {
	ctx := context.Background()
	svc, _, results, _ := newTestService(t, nil)

	first, _, err := svc.Start(ctx, participant(), 5)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	second, _, err := svc.Start(ctx, participant(), 5)
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected first session abandoned")
	}
	if got, _ := svc.Session("PART_1"); got != second {
		t.Fatalf("expected second session registered")
	}
	stored, _ := results.ListResults(ctx, "")
	if len(stored) != 0 {
		t.Fatalf("abandoned session must not persist, got %+v", stored)
	}
}

func TestStartValidatesParticipant(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)

	_, _, err := svc.Start(context.Background(), domain.Participant{ID: " "}, 5)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 3 {
		t.Fatalf("expected three field errors, got %v", err)
	}
}

func TestStartWithEmptyBank(t *testing.T) {
	sessions := memory.NewSessionStore()
	assembler := app.NewAssembler(memory.NewQuestionStore(), nil)
	resultSvc := app.NewResultService(memory.NewResultStore(), nil, nil)
	svc := app.NewQuizService(assembler, sessions, resultSvc, app.SessionOptions{}, nil)

	if _, _, err := svc.Start(context.Background(), participant(), 5); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions error, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected failed start to unregister session")
	}
}

func TestRetryAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyResultStore{ResultStore: memory.NewResultStore(), failures: 1}
	svc, sessions, _, _ := newTestService(t, store)

	session, p, err := svc.Start(ctx, participant(), 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	p, _ = session.Answer(ctx, "", strPtr(p.Current.CorrectValue()))
	if p.State != app.StateSubmitting || p.SubmitErr == nil {
		t.Fatalf("expected failed submission, got %+v", p)
	}

	if _, err := svc.Retry(ctx, "unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	p, err = svc.Retry(ctx, "PART_1")
	if err != nil || p.State != app.StateDone {
		t.Fatalf("expected retry to succeed, got %+v %v", p, err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected session removed after retry")
	}
}

func TestUnretriedFailedSubmissionIsEvicted(t *testing.T) {
	ctx := context.Background()
	store := &flakyResultStore{ResultStore: memory.NewResultStore(), failures: 1}
	sessions := memory.NewSessionStore()
	resultSvc := app.NewResultService(store, nil, nil)
	questions := seededStore(t, map[domain.Category]int{
		domain.CategoryAlgebra:      3,
		domain.CategoryTrigonometry: 3,
		domain.CategoryProfitLoss:   3,
	})
	svc := app.NewQuizService(app.NewAssembler(questions, nil), sessions, resultSvc,
		app.SessionOptions{Duration: time.Minute, RetryWindow: 20 * time.Millisecond}, nil)

	session, p, err := svc.Start(ctx, participant(), 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	p, _ = session.Answer(ctx, "", strPtr(p.Current.CorrectValue()))
	if p.SubmitErr == nil {
		t.Fatalf("expected failed submission, got %+v", p)
	}

	waitUntil(t, func() bool { return sessions.Len() == 0 })
	if _, err := svc.Retry(ctx, "PART_1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected evicted session, got %v", err)
	}
}

func TestStartRejectsOversizedTotal(t *testing.T) {
	svc, sessions, _, _ := newTestService(t, nil)
	svc.WithMaxTotal(50)

	_, _, err := svc.Start(context.Background(), participant(), 1<<40)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "total" {
		t.Fatalf("expected total rejected, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("rejected start must not register a session")
	}
	if _, err := svc.Assemble(context.Background(), 51, ""); !domain.IsValidation(err) {
		t.Fatalf("expected assemble to reject total above max, got %v", err)
	}
}

func TestAbandonRemovesSession(t *testing.T) {
	svc, sessions, _, _ := newTestService(t, nil)
	if _, _, err := svc.Start(context.Background(), participant(), 3); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	svc.Abandon("PART_1")
	svc.Abandon("PART_1")
	if sessions.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", sessions.Len())
	}
}

type flakyResultStore struct {
	app.ResultStore
	failures int
}

func (f *flakyResultStore) UpsertResult(ctx context.Context, r domain.Result) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	return f.ResultStore.UpsertResult(ctx, r)
}

func newTestService(t *testing.T, results app.ResultStore) (*app.QuizService, *memory.SessionStore, app.ResultStore, *app.ResultService) {
	t.Helper()
	if results == nil {
		results = memory.NewResultStore()
	}
	questions := seededStore(t, map[domain.Category]int{
		domain.CategoryAlgebra:      10,
		domain.CategoryTrigonometry: 10,
		domain.CategoryProfitLoss:   10,
	})
	sessions := memory.NewSessionStore()
	resultSvc := app.NewResultService(results, nil, nil)
	svc := app.NewQuizService(app.NewAssembler(questions, nil), sessions, resultSvc, app.SessionOptions{Duration: time.Minute}, nil)
	return svc, sessions, results, resultSvc
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
