package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const poolKeyPrefix = "quiz:pool:"

// QuestionCache caches active question pools in Redis and falls back to the
// wrapped repository on a miss. Pools are stored as JSON:
//
//	SET quiz:pool:{category}:{grade} [question, ...] EX ttl
//
// Redis failures degrade to direct repository reads.
type QuestionCache struct {
	app.QuestionRepository

	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, repo app.QuestionRepository, ttl time.Duration, logger *zap.Logger) *QuestionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionCache{
		QuestionRepository: repo,
		client:             client,
		ttl:                ttl,
		logger:             logger,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListActiveQuestions(ctx context.Context, category domain.Category, grade string) ([]domain.Question, error) {
	key := c.poolKey(category, grade)
	if qs, ok := c.cached(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cached(ctx, key); ok {
			return qs, nil
		}

		qs, err := c.QuestionRepository.ListActiveQuestions(ctx, category, grade)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(qs)
		if err == nil {
			err = c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err()
		}
		if err != nil {
			c.logger.Warn("question pool cache write failed", zap.String("key", key), zap.Error(err))
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	qs := result.([]domain.Question)
	return append([]domain.Question(nil), qs...), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	created, err := c.QuestionRepository.CreateQuestion(ctx, q)
	c.invalidate(ctx)
	return created, err
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	updated, err := c.QuestionRepository.UpdateQuestion(ctx, q)
	c.invalidate(ctx)
	return updated, err
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	err := c.QuestionRepository.DeleteQuestion(ctx, id)
	c.invalidate(ctx)
	return err
}

// Invalidate drops every cached pool.
func (c *QuestionCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, poolKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *QuestionCache) invalidate(ctx context.Context) {
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("question pool cache invalidation failed", zap.Error(err))
	}
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("question pool cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) poolKey(category domain.Category, grade string) string {
	if grade == "" {
		grade = "*all"
	}
	return poolKeyPrefix + string(category) + ":" + grade
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
