package memory

import (
	"context"
	"errors"
	"testing"

	"mathchrono-quiz-service/internal/domain"
)

func TestQuestionStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionStore()

	created, err := store.CreateQuestion(ctx, sampleQuestion("", domain.CategoryProfitLoss))
	if err != nil || created.ID == "" {
		t.Fatalf("expected generated id, got %+v %v", created, err)
	}
	created.Active = false
	if _, err := store.UpdateQuestion(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, _ := store.ListActiveQuestions(ctx, domain.CategoryProfitLoss, "")
	if len(active) != 0 {
		t.Fatalf("inactive question listed as active")
	}
	counts, _ := store.CountByCategory(ctx)
	if counts[domain.CategoryProfitLoss] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if err := store.DeleteQuestion(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetQuestion(ctx, created.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.UpdateQuestion(ctx, created); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestResultStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	_ = store.UpsertResult(ctx, domain.Result{ParticipantID: "p1", Grade: "10", Score: 10})
	_ = store.UpsertResult(ctx, domain.Result{ParticipantID: "p1", Grade: "10", Score: 90})
	_ = store.UpsertResult(ctx, domain.Result{ParticipantID: "p2", Grade: "11", Score: 50})

	grade10, _ := store.ListResults(ctx, "10")
	if len(grade10) != 1 || grade10[0].Score != 90 {
		t.Fatalf("expected single upserted row, got %+v", grade10)
	}
	all, _ := store.ListResults(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected two results, got %d", len(all))
	}
}

func TestUserStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	u := domain.User{ID: "u1", Email: "a@x.my", ParticipantID: "PART_1"}
	if _, err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	u.ID = "u2"
	if _, err := store.CreateUser(ctx, u); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected duplicate email rejected, got %v", err)
	}
	if err := store.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "a@x.my"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
