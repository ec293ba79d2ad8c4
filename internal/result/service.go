package result

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
	"github.com/prepmate/prepmate/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

// Service is the store for finalized, immutable test results.
type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
		eb: c.EventBus,
	}
}

// Create stores a new result and announces it on the event bus. At most one
// result may exist per session; a second insert for the same session fails
// with AlreadyExists so the caller can fall back to the stored row.
func (s *Service) Create(ctx context.Context, r domain.TestResult) (*domain.TestResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate result ID: %w", err)
	}

	r.ResultID = id.String()
	r.CreatedAt = time.Now().UTC()

	const stmt = `
INSERT INTO results (result_id, session_id, owner_id, test_type, correct, total, accuracy, time_taken_ms, weak_topics, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err = s.db.Exec(ctx, stmt,
		r.ResultID, r.SessionID, r.OwnerID, r.TestType,
		r.Correct, r.Total, r.Accuracy, r.TimeTaken.Milliseconds(),
		r.WeakTopics, r.CreatedAt,
	)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result already exists: session=%s", r.SessionID),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	s.eb.Publish(ctx, domain.EventResultCreated{
		Result: r,
	})

	return &r, nil
}

// GetBySession returns the result derived from a session, if any. Internal
// to the finalize path; callers have already checked ownership.
func (s *Service) GetBySession(ctx context.Context, sessionID string) (*domain.TestResult, error) {
	const stmt = `
SELECT result_id, session_id, owner_id, test_type, correct, total, accuracy, time_taken_ms, weak_topics, created_at
FROM results
WHERE session_id = $1;`

	r, err := s.queryOne(ctx, stmt, sessionID)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("result not found: session=%s", sessionID))
	}

	return r, err
}

// GetResult returns a single result. The caller's verified identity must
// own it.
func (s *Service) GetResult(ctx context.Context, resultID, ownerID string) (*domain.TestResult, error) {
	const stmt = `
SELECT result_id, session_id, owner_id, test_type, correct, total, accuracy, time_taken_ms, weak_topics, created_at
FROM results
WHERE result_id = $1;`

	r, err := s.queryOne(ctx, stmt, resultID)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("result not found: %s", resultID))
	}
	if err != nil {
		return nil, err
	}

	if r.OwnerID != ownerID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("result %s does not belong to the caller", resultID))
	}

	return r, nil
}

// ListResults returns the owner's results, most recent first.
func (s *Service) ListResults(ctx context.Context, ownerID string) ([]domain.TestResult, error) {
	const stmt = `
SELECT result_id, session_id, owner_id, test_type, correct, total, accuracy, time_taken_ms, weak_topics, created_at
FROM results
WHERE owner_id = $1
ORDER BY created_at DESC;`

	rows, err := s.db.Query(ctx, stmt, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Service) queryOne(ctx context.Context, stmt string, arg any) (*domain.TestResult, error) {
	rows, err := s.db.Query(ctx, stmt, arg)
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	r, err := pgx.CollectExactlyOneRow(rows, scanResult)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

func scanResult(row pgx.CollectableRow) (domain.TestResult, error) {
	var (
		r           domain.TestResult
		timeTakenMS int64
	)
	if err := row.Scan(
		&r.ResultID, &r.SessionID, &r.OwnerID, &r.TestType,
		&r.Correct, &r.Total, &r.Accuracy, &timeTakenMS,
		&r.WeakTopics, &r.CreatedAt,
	); err != nil {
		return domain.TestResult{}, err
	}

	r.TimeTaken = time.Duration(timeTakenMS) * time.Millisecond
	return r, nil
}
