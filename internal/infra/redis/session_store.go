package redis

import (
	"context"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions own timers and a mutex, so the live objects stay in a local map.
//   - Redis holds a participant profile per running session
//     (HSET quiz:session:{participantID} team grade started_at) so other
//     instances and operators can see who is mid-quiz.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Replace(participantID string, session *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[participantID]
	s.sessions[participantID] = session

	p := session.Participant()
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(participantID))
	pipe.HSet(ctx, s.key(participantID),
		"team", p.TeamName,
		"grade", p.Grade,
		"language", string(p.Language),
		"started_at", s.now().UTC().Format(time.RFC3339),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(participantID), s.ttl)
	}
	// best-effort liveness marker
	_, _ = pipe.Exec(ctx)
	return prev
}

func (s *SessionStore) Get(participantID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[participantID]
	return session, ok
}

func (s *SessionStore) Remove(participantID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[participantID]
	if !ok || current != session {
		return
	}
	delete(s.sessions, participantID)
	_ = s.client.Del(context.Background(), s.key(participantID)).Err()
}

// Active lists participant IDs with a live session marker in Redis.
func (s *SessionStore) Active(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, "quiz:session:*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len("quiz:session:"):])
	}
	return ids, iter.Err()
}

func (s *SessionStore) key(participantID string) string {
	return "quiz:session:" + participantID
}
