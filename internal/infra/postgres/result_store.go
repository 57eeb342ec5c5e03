package postgres

import (
	"context"
	"fmt"

	"mathchrono-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore keeps one row per participant; resubmissions overwrite it.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) UpsertResult(ctx context.Context, r domain.Result) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO results (participant_id, team_name, grade, score, submitted_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (participant_id) DO UPDATE SET
			team_name=EXCLUDED.team_name, grade=EXCLUDED.grade,
			score=EXCLUDED.score, submitted_at=EXCLUDED.submitted_at`,
		r.ParticipantID, r.TeamName, r.Grade, r.Score, r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListResults(ctx context.Context, grade string) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, `SELECT participant_id, team_name, grade, score, submitted_at
		FROM results WHERE $1='' OR grade=$1 ORDER BY participant_id`, grade)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Result, 0)
	for rows.Next() {
		var r domain.Result
		if err := rows.Scan(&r.ParticipantID, &r.TeamName, &r.Grade, &r.Score, &r.SubmittedAt); err != nil {
			return nil, err
		}
		r.SubmittedAt = r.SubmittedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
