package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mathchrono-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const questionColumns = `id, kind, prompt_en, prompt_ms, options, correct_index, correct_text,
	category, difficulty, time_ref_sec, active, grade`

// QuestionStore persists the question bank in Postgres.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) ListActiveQuestions(ctx context.Context, category domain.Category, grade string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions
		WHERE active AND category=$1 AND ($2='' OR grade='' OR grade=$2)
		ORDER BY created_at, id`, string(category), grade)
	if err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	return collectQuestions(rows)
}

func (s *QuestionStore) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return collectQuestions(rows)
}

func (s *QuestionStore) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// CreateQuestion inserts q, overwriting any row with the same ID so seed files can be re-applied.
func (s *QuestionStore) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return domain.Question{}, fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO questions (`+questionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			kind=EXCLUDED.kind, prompt_en=EXCLUDED.prompt_en, prompt_ms=EXCLUDED.prompt_ms,
			options=EXCLUDED.options, correct_index=EXCLUDED.correct_index, correct_text=EXCLUDED.correct_text,
			category=EXCLUDED.category, difficulty=EXCLUDED.difficulty, time_ref_sec=EXCLUDED.time_ref_sec,
			active=EXCLUDED.active, grade=EXCLUDED.grade, updated_at=now()`,
		questionArgs(q, options)...)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (s *QuestionStore) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return domain.Question{}, fmt.Errorf("marshal options: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE questions SET
			kind=$2, prompt_en=$3, prompt_ms=$4, options=$5, correct_index=$6, correct_text=$7,
			category=$8, difficulty=$9, time_ref_sec=$10, active=$11, grade=$12, updated_at=now()
		WHERE id=$1`, questionArgs(q, options)...)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *QuestionStore) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *QuestionStore) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, count(*) FROM questions GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.Category]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		out[domain.Category(category)] = n
	}
	return out, rows.Err()
}

func questionArgs(q domain.Question, options []byte) []interface{} {
	return []interface{}{
		q.ID, string(q.Kind), q.Prompt.EN, q.Prompt.MS, string(options), q.CorrectIndex, q.CorrectText,
		string(q.Category), string(q.Difficulty), q.TimeRefSec, q.Active, q.Grade,
	}
}

func collectQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q       domain.Question
		kind    string
		cat     string
		diff    string
		options []byte
	)
	err := row.Scan(&q.ID, &kind, &q.Prompt.EN, &q.Prompt.MS, &options, &q.CorrectIndex, &q.CorrectText,
		&cat, &diff, &q.TimeRefSec, &q.Active, &q.Grade)
	if err != nil {
		return domain.Question{}, err
	}
	q.Kind = domain.QuestionKind(kind)
	q.Category = domain.Category(cat)
	q.Difficulty = domain.Difficulty(diff)
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	if len(q.Options) == 0 {
		q.Options = nil
	}
	return q, nil
}

func nonNil(options []string) []string {
	if options == nil {
		return []string{}
	}
	return options
}
