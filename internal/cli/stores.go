package cli

import (
	"context"
	"fmt"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/config"
	"mathchrono-quiz-service/internal/infra/memory"
	"mathchrono-quiz-service/internal/infra/postgres"
	"mathchrono-quiz-service/internal/infra/seed"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// stores is the persistence backing one process. Without a Postgres URL
// everything lives in memory and the seed file is loaded on start.
type stores struct {
	questions app.QuestionRepository
	users     app.UserRepository
	results   app.ResultStore
	pool      *pgxpool.Pool
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Postgres.URL == "" {
		s := &stores{
			questions: memory.NewQuestionStore(),
			users:     memory.NewUserStore(),
			results:   memory.NewResultStore(),
		}
		if cfg.Quiz.SeedPath != "" {
			n, err := seedFrom(ctx, s.questions, cfg.Quiz.SeedPath)
			if err != nil {
				return nil, err
			}
			logger.Info("seeded in-memory question bank", zap.Int("questions", n), zap.String("path", cfg.Quiz.SeedPath))
		}
		logger.Warn("postgres not configured, results are kept in memory only")
		return s, nil
	}

	if cfg.Postgres.MigrateOnStart {
		group, err := postgres.Migrate(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("migrations applied", zap.String("group", group.String()))
	}
	pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	return &stores{
		questions: postgres.NewQuestionStore(pool),
		users:     postgres.NewUserStore(pool),
		results:   postgres.NewResultStore(pool),
		pool:      pool,
	}, nil
}

func seedFrom(ctx context.Context, w seed.QuestionWriter, path string) (int, error) {
	questions, err := seed.LoadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := seed.Apply(ctx, w, questions)
	if err != nil {
		return n, fmt.Errorf("seed %s: %w", path, err)
	}
	return n, nil
}
