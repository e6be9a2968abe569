// Package storage persists finished assessments. The repository is a
// capability interface with postgres and in-memory implementations,
// selected by configuration.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Record is one persisted assessment row. Results holds the full pipeline
// output as JSON.
type Record struct {
	ID         string
	UserID     string
	JobID      string
	ResumeID   string
	FinalScore float64
	Results    json.RawMessage
	CreatedAt  time.Time
}

// HistoryItem is an append-only score correction.
type HistoryItem struct {
	ID           string
	AssessmentID string
	OldScore     *float64
	NewScore     *float64
	Diff         json.RawMessage
	CreatedAt    time.Time
}

// ErrNotFound is returned when an assessment id is unknown.
var ErrNotFound = errors.New("assessment not found")

type Repository interface {
	CreateAssessment(ctx context.Context, rec *Record) (string, error)
	GetAssessment(ctx context.Context, id string) (*Record, error)
	AppendHistory(ctx context.Context, assessmentID string, oldScore, newScore *float64, diff json.RawMessage) (string, error)
	ListHistory(ctx context.Context, assessmentID string, limit int) ([]HistoryItem, error)
}

// Store is the postgres-backed repository.
type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

func (s *Store) CreateAssessment(ctx context.Context, rec *Record) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `insert into assessments(
id, user_id, job_id, resume_id, final_score, results
) values ($1,$2,$3,$4,$5,$6)`,
		id, rec.UserID, rec.JobID, rec.ResumeID, rec.FinalScore, rec.Results,
	)
	return id, errors.Wrap(err, "inserting assessment")
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.QueryRow(ctx, `select id, user_id, job_id, resume_id, final_score, results, created_at
  from assessments where id = $1`, id).
		Scan(&rec.ID, &rec.UserID, &rec.JobID, &rec.ResumeID, &rec.FinalScore, &rec.Results, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "selecting assessment")
	}
	return &rec, nil
}

func (s *Store) AppendHistory(ctx context.Context, assessmentID string, oldScore, newScore *float64, diff json.RawMessage) (string, error) {
	if diff == nil {
		diff = json.RawMessage(`{}`)
	}
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `insert into assessment_history(
id, assessment_id, old_score, new_score, diff
) values ($1,$2,$3,$4,$5)`,
		id, assessmentID, oldScore, newScore, diff,
	)
	return id, errors.Wrap(err, "inserting history")
}

func (s *Store) ListHistory(ctx context.Context, assessmentID string, limit int) ([]HistoryItem, error) {
	rows, err := s.db.Query(ctx, `select id, assessment_id, old_score, new_score, diff, created_at
  from assessment_history where assessment_id = $1
  order by created_at desc limit $2`, assessmentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "selecting history")
	}
	defer rows.Close()

	var out []HistoryItem
	for rows.Next() {
		var h HistoryItem
		if err := rows.Scan(&h.ID, &h.AssessmentID, &h.OldScore, &h.NewScore, &h.Diff, &h.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning history row")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
