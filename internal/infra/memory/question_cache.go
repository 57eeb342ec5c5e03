package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches active question pools with TTL to avoid repeated DB hits
// during assembly bursts. Writes through it drop every cached pool.
type QuestionCache struct {
	app.QuestionRepository

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(repo app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: repo,
		ttl:                ttl,
		clock:              time.Now,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:              make(map[string]cachedPool),
	}
}

func (c *QuestionCache) ListActiveQuestions(ctx context.Context, category domain.Category, grade string) ([]domain.Question, error) {
	key := string(category) + "|" + grade
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return clonePool(entry.questions), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.QuestionRepository.ListActiveQuestions(ctx, category, grade)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		c.cache[key] = cachedPool{questions: questions, expiresAt: expiresAt}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePool(result.([]domain.Question)), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.Invalidate()
	return c.QuestionRepository.CreateQuestion(ctx, q)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.Invalidate()
	return c.QuestionRepository.UpdateQuestion(ctx, q)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	defer c.Invalidate()
	return c.QuestionRepository.DeleteQuestion(ctx, id)
}

// Invalidate drops every cached pool.
func (c *QuestionCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cachedPool)
	c.mu.Unlock()
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clonePool(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = cloneQuestion(q)
	}
	return out
}
