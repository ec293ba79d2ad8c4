package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
)

// Head is the session-level row, without the per-question entries.
type Head struct {
	OwnerID   string
	Type      domain.TestType
	Status    domain.SessionStatus
	StartedAt time.Time
}

// Store persists in-progress sessions.
type Store interface {
	// InsertSession stores a freshly created session and fills in its ID.
	InsertSession(ctx context.Context, ss *domain.TestSession) error
	GetSessionHead(ctx context.Context, sessionID string) (Head, error)
	// UpdateAnswer writes answer and grade onto the single
	// (session, question) entry. NotFound when the question is not part
	// of the session.
	UpdateAnswer(ctx context.Context, sessionID, questionID, answer string, correct bool) error
	// CountAnswers returns the session's entry count and how many are
	// graded correct. Ungraded entries only count toward total.
	CountAnswers(ctx context.Context, sessionID string) (total, correct int, err error)
	// CloseSession transitions open -> finalized. A no-op when the
	// session is already finalized.
	CloseSession(ctx context.Context, sessionID string) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) InsertSession(ctx context.Context, ss *domain.TestSession) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSessionStmt  = `INSERT INTO sessions (session_id, owner_id, type, status, started_at) VALUES ($1, $2, $3, $4, $5);`
		insQuestionStmt = `INSERT INTO session_questions (session_id, position, question_id) VALUES ($1, $2, $3);`
	)

	_, err = tx.Exec(ctx, insSessionStmt, id, ss.OwnerID, ss.Type, ss.Status, ss.StartedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	ss.SessionID = id.String()
	for i, q := range ss.Questions { // TODO: Batch insert
		_, err = tx.Exec(ctx, insQuestionStmt, id, i, q.QuestionID)
		if err != nil {
			return fmt.Errorf("insert session question: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetSessionHead(ctx context.Context, sessionID string) (Head, error) {
	const stmt = `SELECT owner_id, type, status, started_at FROM sessions WHERE session_id = $1;`

	var h Head
	err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&h.OwnerID, &h.Type, &h.Status, &h.StartedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Head{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	if err != nil {
		return Head{}, fmt.Errorf("get session: %w", err)
	}

	return h, nil
}

func (s *PGStore) UpdateAnswer(ctx context.Context, sessionID, questionID, answer string, correct bool) error {
	const stmt = `
UPDATE session_questions
SET user_answer = $3, is_correct = $4
WHERE session_id = $1 AND question_id = $2;`

	tag, err := s.db.Exec(ctx, stmt, sessionID, questionID, answer, correct)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("question %s is not part of session %s", questionID, sessionID))
	}

	return nil
}

func (s *PGStore) CountAnswers(ctx context.Context, sessionID string) (total, correct int, err error) {
	const stmt = `
SELECT COUNT(*), COUNT(*) FILTER (WHERE is_correct)
FROM session_questions
WHERE session_id = $1;`

	if err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&total, &correct); err != nil {
		return 0, 0, fmt.Errorf("count answers: %w", err)
	}

	return total, correct, nil
}

func (s *PGStore) CloseSession(ctx context.Context, sessionID string) error {
	const stmt = `UPDATE sessions SET status = $2 WHERE session_id = $1 AND status = $3;`

	if _, err := s.db.Exec(ctx, stmt, sessionID, domain.SessionFinalized, domain.SessionOpen); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	return nil
}
