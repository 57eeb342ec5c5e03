package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"mathchrono-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// QuestionRepository is the admin-facing question bank.
type QuestionRepository interface {
	QuestionStore
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	CountByCategory(ctx context.Context) (map[domain.Category]int, error)
}

// UserRepository stores participant and admin accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	CountParticipants(ctx context.Context) (int, error)
}

// NewUserInput is the admin payload for creating an account.
type NewUserInput struct {
	Name     string `json:"name" validate:"required"`
	Grade    string `json:"grade" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	IsAdmin  bool   `json:"isAdmin"`
}

// AdminService covers question bank, account management and analytics.
type AdminService struct {
	questions QuestionRepository
	users     UserRepository
	results   ResultStore
	logger    *zap.Logger
	validate  *validator.Validate
	cost      int
}

func NewAdminService(questions QuestionRepository, users UserRepository, results ResultStore, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		questions: questions,
		users:     users,
		results:   results,
		logger:    logger,
		validate:  newValidator(),
		cost:      bcrypt.DefaultCost,
	}
}

// WithBcryptCost lowers hashing cost for tests.
func (s *AdminService) WithBcryptCost(cost int) *AdminService {
	s.cost = cost
	return s
}

func (s *AdminService) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.questions.ListQuestions(ctx)
}

// CreateQuestion validates q for its kind and stores it under a fresh ID.
func (s *AdminService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q, err := domain.NewQuestion(q)
	if err != nil {
		return domain.Question{}, err
	}
	q.ID = uuid.NewString()
	created, err := s.questions.CreateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	s.logger.Info("question created", zap.String("id", created.ID), zap.String("category", string(created.Category)))
	return created, nil
}

// UpdateQuestion replaces the stored question id with q.
func (s *AdminService) UpdateQuestion(ctx context.Context, id string, q domain.Question) (domain.Question, error) {
	if _, err := s.questions.GetQuestion(ctx, id); err != nil {
		return domain.Question{}, err
	}
	q.ID = id
	q, err := domain.NewQuestion(q)
	if err != nil {
		return domain.Question{}, err
	}
	return s.questions.UpdateQuestion(ctx, q)
}

func (s *AdminService) DeleteQuestion(ctx context.Context, id string) error {
	return s.questions.DeleteQuestion(ctx, id)
}

// CreateUser hashes the password and allocates a participant ID.
func (s *AdminService) CreateUser(ctx context.Context, in NewUserInput) (domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Grade = strings.TrimSpace(in.Grade)
	if err := validateStruct(s.validate, in); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	prefix := "PART_"
	if in.IsAdmin {
		prefix = "ADMIN_"
	}
	user := domain.User{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Grade:         in.Grade,
		Email:         in.Email,
		PasswordHash:  string(hash),
		ParticipantID: prefix + uuid.NewString(),
		IsAdmin:       in.IsAdmin,
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	return created, nil
}

func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	return s.users.DeleteUser(ctx, id)
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *AdminService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Stats summarizes participants, submissions and the question bank.
func (s *AdminService) Stats(ctx context.Context) (domain.Stats, error) {
	participants, err := s.users.CountParticipants(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count participants: %w", err)
	}
	results, err := s.results.ListResults(ctx, "")
	if err != nil {
		return domain.Stats{}, fmt.Errorf("list results: %w", err)
	}
	byCategory, err := s.questions.CountByCategory(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count questions: %w", err)
	}

	avg := 0.0
	if len(results) > 0 {
		sum := 0
		for _, r := range results {
			sum += r.Score
		}
		avg = math.Round(float64(sum)/float64(len(results))*100) / 100
	}
	return domain.Stats{
		Participants:        participants,
		Submissions:         len(results),
		AverageScore:        avg,
		QuestionsByCategory: byCategory,
	}, nil
}
