package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

var _ repository.SubmissionRepository = (*pgSubmissionRepo)(nil)

//go:embed schema.sql
var schema string

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgSubmissionRepo struct {
	db DB
}

// NewPostgresSubmissionRepository creates a PostgreSQL-backed submission
// repository. db is normally a *pgxpool.Pool.
func NewPostgresSubmissionRepository(db DB) repository.SubmissionRepository {
	return &pgSubmissionRepo{db: db}
}

// EnsureSchema creates the submissions table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepo) Create(ctx context.Context, sub *domain.Submission, job *domain.JudgeJob) error {
	testCases, err := json.Marshal(job.TestCases)
	if err != nil {
		return fmt.Errorf("postgres: encode test cases: %w", err)
	}

	query := `
		INSERT INTO submissions (submission_id, problem_id, student_id, source_code, test_cases,
		                         time_limit_seconds, memory_limit_mb, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	_, err = r.db.Exec(ctx, query,
		sub.SubmissionID, sub.ProblemID, sub.StudentID, job.SourceCode, testCases,
		job.Limits.DefaultTimeLimitSeconds, job.Limits.DefaultMemoryLimitMB,
		string(sub.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: create submission: %w", err)
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

func (r *pgSubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	query := `
		SELECT submission_id, problem_id, student_id, status,
		       verdict, passed_count, total_count, max_time_ms, avg_time_ms,
		       max_memory_bytes, avg_memory_bytes, error_message, case_results, violations,
		       created_at, updated_at
		FROM submissions
		WHERE submission_id = $1`

	var (
		sub                        domain.Submission
		status                     string
		verdict, errorMessage      *string
		passed, total              *int
		maxTime, avgTime           *int64
		maxMem, avgMem             *int64
		caseResults, violationsRaw []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sub.SubmissionID, &sub.ProblemID, &sub.StudentID, &status,
		&verdict, &passed, &total, &maxTime, &avgTime,
		&maxMem, &avgMem, &errorMessage, &caseResults, &violationsRaw,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get submission by id: %w", err)
	}
	sub.Status = domain.SubmissionStatus(status)

	if verdict == nil {
		return &sub, nil
	}
	v := &domain.JudgeVerdict{
		Status:         domain.Verdict(*verdict),
		PassedCount:    deref(passed),
		TotalCount:     deref(total),
		MaxTimeMs:      deref(maxTime),
		AvgTimeMs:      deref(avgTime),
		MaxMemoryBytes: deref(maxMem),
		AvgMemoryBytes: deref(avgMem),
		ErrorMessage:   deref(errorMessage),
		CaseResults:    []domain.CaseVerdict{},
	}
	if len(caseResults) > 0 {
		if err := json.Unmarshal(caseResults, &v.CaseResults); err != nil {
			return nil, fmt.Errorf("postgres: decode case results: %w", err)
		}
	}
	if len(violationsRaw) > 0 {
		if err := json.Unmarshal(violationsRaw, &v.Violations); err != nil {
			return nil, fmt.Errorf("postgres: decode violations: %w", err)
		}
	}
	sub.Verdict = v
	return &sub, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (r *pgSubmissionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	query := `UPDATE submissions SET status = $1, updated_at = $2 WHERE submission_id = $3`
	tag, err := r.db.Exec(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %w: %s", domain.ErrSubmissionNotFound, id)
	}
	return nil
}

func (r *pgSubmissionRepo) SetVerdict(ctx context.Context, id uuid.UUID, v *domain.JudgeVerdict) error {
	caseResults, err := json.Marshal(v.CaseResults)
	if err != nil {
		return fmt.Errorf("postgres: encode case results: %w", err)
	}
	violations, err := json.Marshal(v.Violations)
	if err != nil {
		return fmt.Errorf("postgres: encode violations: %w", err)
	}

	query := `
		UPDATE submissions
		SET status = $1, verdict = $2, passed_count = $3, total_count = $4,
		    max_time_ms = $5, avg_time_ms = $6, max_memory_bytes = $7, avg_memory_bytes = $8,
		    error_message = $9, case_results = $10, violations = $11, updated_at = $12
		WHERE submission_id = $13`

	tag, err := r.db.Exec(ctx, query,
		string(domain.SubmissionFinished), string(v.Status), v.PassedCount, v.TotalCount,
		v.MaxTimeMs, v.AvgTimeMs, v.MaxMemoryBytes, v.AvgMemoryBytes,
		v.ErrorMessage, caseResults, violations, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set verdict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %w: %s", domain.ErrSubmissionNotFound, id)
	}
	return nil
}
