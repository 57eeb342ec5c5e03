package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ResultStore persists final results with upsert-by-participant semantics.
type ResultStore interface {
	UpsertResult(ctx context.Context, result domain.Result) error
	// ListResults returns every result, or only those of grade when set.
	ListResults(ctx context.Context, grade string) ([]domain.Result, error)
}

// ResultNotifier is the out-of-band channel informed after a submission.
type ResultNotifier interface {
	NotifyResult(ctx context.Context, result domain.Result) error
}

// SubmitResultInput is the boundary payload of the result sink.
type SubmitResultInput struct {
	ParticipantID string `json:"participantId" validate:"required"`
	TeamName      string `json:"teamName" validate:"required"`
	Grade         string `json:"grade" validate:"required"`
	Score         *int   `json:"score" validate:"required,min=0,max=100"`
}

// ResultService is the result sink plus leaderboard reads.
type ResultService struct {
	store         ResultStore
	notifier      ResultNotifier
	logger        *zap.Logger
	validate      *validator.Validate
	now           func() time.Time
	notifyTimeout time.Duration

	wg sync.WaitGroup
}

func NewResultService(store ResultStore, notifier ResultNotifier, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		store:         store,
		notifier:      notifier,
		logger:        logger,
		validate:      newValidator(),
		now:           time.Now,
		notifyTimeout: 30 * time.Second,
	}
}

// Submit validates and upserts a result, then notifies without waiting.
// Resubmitting the same participant overwrites the earlier result.
func (s *ResultService) Submit(ctx context.Context, in SubmitResultInput) (domain.Result, error) {
	in.ParticipantID = strings.TrimSpace(in.ParticipantID)
	in.TeamName = strings.TrimSpace(in.TeamName)
	in.Grade = strings.TrimSpace(in.Grade)
	if err := validateStruct(s.validate, in); err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		ParticipantID: in.ParticipantID,
		TeamName:      in.TeamName,
		Grade:         in.Grade,
		Score:         *in.Score,
		SubmittedAt:   s.now().UTC(),
	}
	if err := s.store.UpsertResult(ctx, result); err != nil {
		return domain.Result{}, fmt.Errorf("store result: %w", err)
	}

	s.logger.Info("result submitted",
		zap.String("participantId", result.ParticipantID),
		zap.String("team", result.TeamName),
		zap.String("grade", result.Grade),
		zap.Int("score", result.Score),
	)
	s.notifyAsync(result)
	return result, nil
}

// Wait blocks until in-flight notifications finish.
func (s *ResultService) Wait() {
	s.wg.Wait()
}

func (s *ResultService) notifyAsync(result domain.Result) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyResult(ctx, result); err != nil {
			s.logger.Warn("result notification failed",
				zap.String("participantId", result.ParticipantID),
				zap.Error(err),
			)
		}
	}()
}

// Leaderboard ranks results by score, then earliest submission, then team name.
func (s *ResultService) Leaderboard(ctx context.Context, grade string) (domain.Leaderboard, error) {
	results, err := s.store.ListResults(ctx, strings.TrimSpace(grade))
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].SubmittedAt.Equal(results[j].SubmittedAt) {
			return results[i].SubmittedAt.Before(results[j].SubmittedAt)
		}
		return results[i].TeamName < results[j].TeamName
	})

	entries := make([]domain.LeaderboardEntry, 0, len(results))
	for i, r := range results {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: r.ParticipantID,
			TeamName:      r.TeamName,
			Grade:         r.Grade,
			Score:         r.Score,
			SubmittedAt:   r.SubmittedAt,
		})
	}
	return domain.Leaderboard{Grade: grade, Entries: entries, UpdatedAt: s.now().UTC()}, nil
}

// ExportCSV writes the grade leaderboard as CSV.
func (s *ResultService) ExportCSV(ctx context.Context, grade string, w io.Writer) error {
	lb, err := s.Leaderboard(ctx, grade)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "participant_id", "team_name", "grade", "score", "submitted_at"}); err != nil {
		return err
	}
	for _, e := range lb.Entries {
		row := []string{
			strconv.Itoa(e.Rank),
			e.ParticipantID,
			e.TeamName,
			e.Grade,
			strconv.Itoa(e.Score),
			e.SubmittedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct converts validator failures into a domain.ValidationError.
func validateStruct(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), describeTag(fe))
	}
	return verr
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	case "email":
		return "must be a valid email"
	default:
		return "failed " + fe.Tag()
	}
}
