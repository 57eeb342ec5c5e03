package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from a YAML file, .env and the environment.
type Config struct {
	Env      string   `mapstructure:"env"`
	Server   Server   `mapstructure:"server"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
	Quiz     Quiz     `mapstructure:"quiz"`
	Auth     Auth     `mapstructure:"auth"`
	Mail     Mail     `mapstructure:"mail"`
	Telegram Telegram `mapstructure:"telegram"`
}

type Server struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Postgres struct {
	URL            string `mapstructure:"url"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// Quiz tunes assembly and session timing.
type Quiz struct {
	Size             int             `mapstructure:"size"`
	MaxSize          int             `mapstructure:"max_size"`
	Duration         time.Duration   `mapstructure:"duration"`
	QuestionTimeouts bool            `mapstructure:"question_timeouts"`
	CacheTTL         time.Duration   `mapstructure:"cache_ttl"`
	SeedPath         string          `mapstructure:"seed_path"`
	Distribution     []CategoryShare `mapstructure:"distribution"`
}

// CategoryShare is one configured distribution entry.
type CategoryShare struct {
	Category string  `mapstructure:"category"`
	Weight   float64 `mapstructure:"weight"`
}

type Auth struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Mail configures the instructor notification. Empty Host disables it.
type Mail struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	Instructor string `mapstructure:"instructor"`
}

// Telegram configures the result announcement channel. Empty Token disables it.
type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// Load reads path (optional), then .env, then the environment. Later sources win.
func Load(path string) (Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("postgres.url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("mail.host", "SMTP_HOST")
	_ = v.BindEnv("mail.port", "SMTP_PORT")
	_ = v.BindEnv("mail.username", "EMAIL_USER")
	_ = v.BindEnv("mail.password", "EMAIL_PASS")
	_ = v.BindEnv("mail.instructor", "INSTRUCTOR_EMAIL")
	_ = v.BindEnv("telegram.token", "TELEGRAM_API_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("error loading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30m")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.migrate_on_start", true)
	v.SetDefault("quiz.size", 30)
	v.SetDefault("quiz.max_size", 200)
	v.SetDefault("quiz.duration", "15m")
	v.SetDefault("quiz.question_timeouts", false)
	v.SetDefault("quiz.cache_ttl", "10m")
	v.SetDefault("quiz.seed_path", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "8h")
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.instructor", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Quiz.Size <= 0 {
		errs = append(errs, fmt.Errorf("quiz.size must be positive, got %d", c.Quiz.Size))
	}
	if c.Quiz.MaxSize < c.Quiz.Size {
		errs = append(errs, fmt.Errorf("quiz.max_size must be at least quiz.size (%d), got %d", c.Quiz.Size, c.Quiz.MaxSize))
	}
	if c.Quiz.Duration <= 0 {
		errs = append(errs, fmt.Errorf("quiz.duration must be positive, got %s", c.Quiz.Duration))
	}
	if _, err := c.Quiz.AssemblyDistribution(); err != nil {
		errs = append(errs, fmt.Errorf("quiz.distribution: %w", err))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL))
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required in production"))
	}
	if c.Mail.Host != "" && c.Mail.Instructor == "" {
		errs = append(errs, errors.New("mail.instructor is required when mail.host is set"))
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required when telegram.token is set"))
	}
	return errors.Join(errs...)
}

// AssemblyDistribution converts the configured shares, falling back to the
// default distribution when none are configured.
func (q Quiz) AssemblyDistribution() (app.Distribution, error) {
	if len(q.Distribution) == 0 {
		return app.DefaultDistribution(), nil
	}
	dist := make(app.Distribution, 0, len(q.Distribution))
	for _, share := range q.Distribution {
		dist = append(dist, app.CategoryWeight{Category: domain.Category(share.Category), Weight: share.Weight})
	}
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	return dist, nil
}

// IsProduction reports whether the production logger and checks apply.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}
