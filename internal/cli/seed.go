package cli

import (
	"context"
	"fmt"

	"mathchrono-quiz-service/internal/config"
	"mathchrono-quiz-service/internal/infra/postgres"
	"mathchrono-quiz-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd loads the question bank from a YAML file into Postgres.
// Questions are written by ID, so re-running overwrites rather than duplicates.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions from a YAML file into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to quiz.seed_path)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if file == "" {
		file = cfg.Quiz.SeedPath
	}
	if file == "" {
		return fmt.Errorf("no seed file given")
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if _, err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
		return err
	}
	pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := seedFrom(ctx, postgres.NewQuestionStore(pool), file)
	if err != nil {
		return err
	}
	log.Info("questions seeded", zap.Int("count", n), zap.String("file", file))
	return nil
}
