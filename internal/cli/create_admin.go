package cli

import (
	"context"
	"fmt"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/config"
	"mathchrono-quiz-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCreateAdminCmd bootstraps an admin account so the console can be used.
func NewCreateAdminCmd(configPath *string) *cobra.Command {
	var in app.NewUserInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.IsAdmin = true
			return runCreateAdmin(cmd.Context(), *configPath, in)
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "login password (min 6 characters)")
	cmd.Flags().StringVar(&in.Grade, "grade", "-", "grade label stored on the account")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runCreateAdmin(ctx context.Context, configPath string, in app.NewUserInput) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured; in-memory accounts do not outlive the command")
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	cfg.Postgres.MigrateOnStart = true
	cfg.Quiz.SeedPath = ""
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := app.NewAdminService(st.questions, st.users, st.results, log).CreateUser(ctx, in)
	if err != nil {
		return err
	}
	log.Info("admin created", zap.String("email", user.Email), zap.String("participantId", user.ParticipantID))
	return nil
}
