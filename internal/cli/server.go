package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/auth"
	"mathchrono-quiz-service/internal/config"
	"mathchrono-quiz-service/internal/infra/memory"
	redisinfra "mathchrono-quiz-service/internal/infra/redis"
	"mathchrono-quiz-service/internal/logger"
	"mathchrono-quiz-service/internal/notify"
	transport "mathchrono-quiz-service/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		questions app.QuestionRepository
		sessions  app.SessionRepository
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, cache reads will fall back to the store", zap.Error(err))
		}
		questions = redisinfra.NewQuestionCache(client, st.questions, cfg.Quiz.CacheTTL, log)
		sessions = redisinfra.NewSessionStore(client, cfg.Redis.TTL)
	} else {
		questions = memory.NewQuestionCache(st.questions, cfg.Quiz.CacheTTL)
		sessions = memory.NewSessionStore()
	}

	dist, err := cfg.Quiz.AssemblyDistribution()
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}

	results := app.NewResultService(st.results, notifier, log)
	admin := app.NewAdminService(questions, st.users, st.results, log)
	quiz := app.NewQuizService(app.NewAssembler(questions, dist), sessions, results, app.SessionOptions{
		Duration:         cfg.Quiz.Duration,
		QuestionTimeouts: cfg.Quiz.QuestionTimeouts,
	}, log).WithMaxTotal(cfg.Quiz.MaxSize)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: transport.NewRouter(transport.Deps{
			Quiz:           quiz,
			Results:        results,
			Admin:          admin,
			Tokens:         auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
			Logger:         log,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			DefaultTotal:   cfg.Quiz.Size,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Pending result notifications finish before the process exits.
		results.Wait()
		return err
	})
	return g.Wait()
}

func buildNotifier(cfg config.Config, log *zap.Logger) (app.ResultNotifier, error) {
	var multi notify.Multi
	if cfg.Mail.Host != "" {
		mailer, err := notify.NewSMTPMailer(notify.MailConfig{
			Host:       cfg.Mail.Host,
			Port:       cfg.Mail.Port,
			Username:   cfg.Mail.Username,
			Password:   cfg.Mail.Password,
			From:       cfg.Mail.From,
			Instructor: cfg.Mail.Instructor,
		})
		if err != nil {
			return nil, err
		}
		multi = append(multi, mailer)
	}
	if cfg.Telegram.Token != "" {
		bot, err := notify.NewTelegramBot(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			// The bot is optional; results are still stored and mailed.
			log.Warn("telegram disabled", zap.Error(err))
		} else {
			multi = append(multi, bot)
		}
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil
	}
	return multi, nil
}

// shutdownGrace bounds short-lived subcommands.
const shutdownGrace = 30 * time.Second
