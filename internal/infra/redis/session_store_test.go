package redis

import (
	"context"
	"testing"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	p := domain.Participant{ID: "PART_1", TeamName: "Pi Rates", Grade: "10", Language: domain.LanguageMalay}
	session := app.NewSession(p, nil, app.SessionOptions{})
	_ = store.Replace(p.ID, session)
	if !mr.Exists("quiz:session:PART_1") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("quiz:session:PART_1", "team"); got != "Pi Rates" {
		t.Fatalf("expected team stored, got %q", got)
	}
	if ttl := mr.TTL("quiz:session:PART_1"); ttl != time.Minute {
		t.Fatalf("expected ttl, got %v", ttl)
	}

	ids, err := store.Active(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != "PART_1" {
		t.Fatalf("expected active participant, got %v %v", ids, err)
	}

	store.Remove(p.ID, app.NewSession(p, nil, app.SessionOptions{}))
	if !mr.Exists("quiz:session:PART_1") {
		t.Fatalf("stale remove must keep the key")
	}
	store.Remove(p.ID, session)
	if mr.Exists("quiz:session:PART_1") {
		t.Fatalf("expected redis key to be removed")
	}
}
