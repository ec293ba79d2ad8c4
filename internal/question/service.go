package question

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service is the question bank. Everything it hands out has the answer key
// stripped except GetAnswerKey, which exists for server-side grading only.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

type CreateQuestionRequest struct {
	Type          domain.TestType
	Question      string
	Options       []string
	CorrectOption string
	Topic         string
	Difficulty    domain.Difficulty
}

// CreateQuestion inserts a new bank entry. All fields are required.
func (s *Service) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*domain.Question, error) {
	if req.Question == "" || len(req.Options) == 0 || req.CorrectOption == "" || req.Topic == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("all question fields are required"))
	}
	if !req.Type.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid test type: %q", req.Type))
	}
	if !req.Difficulty.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid difficulty: %q", req.Difficulty))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}

	const stmt = `
INSERT INTO questions (question_id, type, question, options, correct_option, topic, difficulty)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = s.db.Exec(ctx, stmt, id, req.Type, req.Question, req.Options, req.CorrectOption, req.Topic, req.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return &domain.Question{
		QuestionID:    id.String(),
		Type:          req.Type,
		Question:      req.Question,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
	}, nil
}

// GetQuestion fetches a bank entry by ID, answer key stripped.
func (s *Service) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	const stmt = `
SELECT question_id, type, question, options, topic, difficulty
FROM questions
WHERE question_id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, id).
		Scan(&q.QuestionID, &q.Type, &q.Question, &q.Options, &q.Topic, &q.Difficulty)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	return &q, nil
}

// ListQuestions returns every bank entry matching (type, difficulty) in the
// query's natural return order, answer keys stripped. Used to seed sessions.
func (s *Service) ListQuestions(ctx context.Context, t domain.TestType, d domain.Difficulty) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, type, question, options, topic, difficulty
FROM questions
WHERE type = $1 AND difficulty = $2;`

	rows, err := s.db.Query(ctx, stmt, t, d)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.QuestionID, &q.Type, &q.Question, &q.Options, &q.Topic, &q.Difficulty); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}

	return questions, nil
}

// GetAnswerKey returns the authoritative correct option for grading.
// Never exposed over the HTTP surface.
func (s *Service) GetAnswerKey(ctx context.Context, id string) (string, error) {
	const stmt = `SELECT correct_option FROM questions WHERE question_id = $1;`

	var key string
	err := s.db.QueryRow(ctx, stmt, id).Scan(&key)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: %s", id))
	}
	if err != nil {
		return "", fmt.Errorf("get answer key: %w", err)
	}

	return key, nil
}
