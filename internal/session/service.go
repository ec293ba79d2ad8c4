package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
)

// Bank is the question repository the engine grades against.
type Bank interface {
	ListQuestions(ctx context.Context, t domain.TestType, d domain.Difficulty) ([]domain.Question, error)
	GetAnswerKey(ctx context.Context, id string) (string, error)
}

// Results is the store finalized sessions are reported into.
type Results interface {
	Create(ctx context.Context, r domain.TestResult) (*domain.TestResult, error)
	GetBySession(ctx context.Context, sessionID string) (*domain.TestResult, error)
}

type Config struct {
	Store   Store
	Bank    Bank
	Results Results
	Now     func() time.Time
}

// Service is the practice-test session engine: it creates sessions, grades
// submitted answers against the authoritative answer key, and finalizes a
// session into exactly one immutable result.
type Service struct {
	store   Store
	bank    Bank
	results Results
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		bank:    c.Bank,
		results: c.Results,
		now:     c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateSessionRequest struct {
	// OwnerID is the verified identity of the caller, injected by the
	// auth layer. The engine never parses credentials itself.
	OwnerID    string
	Type       domain.TestType
	Difficulty domain.Difficulty
}

type CreateSessionResponse struct {
	Session *domain.TestSession
	// Questions carries the matched bank entries, answer keys stripped,
	// in session order. The client run is seeded from this.
	Questions []domain.Question
}

// CreateSession freezes a question set for the caller and opens a session
// over it. The question ordering is whatever the bank query yields and is
// fixed for the session's lifetime.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if req.OwnerID == "" {
		return nil, errors.New(errors.CodeUnauthenticated)
	}
	if !req.Type.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid test type: %q", req.Type))
	}
	if !req.Difficulty.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid difficulty: %q", req.Difficulty))
	}

	questions, err := s.bank.ListQuestions(ctx, req.Type, req.Difficulty)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no questions found: type=%s difficulty=%s", req.Type, req.Difficulty))
	}

	ss := &domain.TestSession{
		OwnerID:   req.OwnerID,
		Type:      req.Type,
		Status:    domain.SessionOpen,
		Questions: make([]domain.SessionQuestion, 0, len(questions)),
		StartedAt: s.now().UTC(),
	}
	for _, q := range questions {
		ss.Questions = append(ss.Questions, domain.SessionQuestion{QuestionID: q.QuestionID})
	}

	if err := s.store.InsertSession(ctx, ss); err != nil {
		return nil, err
	}

	return &CreateSessionResponse{
		Session:   ss,
		Questions: questions,
	}, nil
}

type SubmitAnswerRequest struct {
	SessionID  string
	OwnerID    string
	QuestionID string
	UserAnswer string
}

// SubmitAnswer grades the submitted answer against the bank's answer key and
// records it on the session. The write targets the single
// (session, question) entry, so concurrent submissions for sibling questions
// cannot clobber each other. Re-submitting overwrites: last write wins per
// question.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	if req.SessionID == "" || req.QuestionID == "" || req.UserAnswer == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session ID, question ID and answer are required"))
	}

	head, err := s.checkOwner(ctx, req.SessionID, req.OwnerID)
	if err != nil {
		return err
	}
	if head.Status == domain.SessionFinalized {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already finalized: %s", req.SessionID))
	}

	key, err := s.bank.GetAnswerKey(ctx, req.QuestionID)
	if err != nil {
		return err
	}

	return s.store.UpdateAnswer(ctx, req.SessionID, req.QuestionID, req.UserAnswer, domain.Grade(key, req.UserAnswer))
}

type FinalizeSessionRequest struct {
	SessionID string
	OwnerID   string
}

type FinalizeSessionResponse struct {
	Result *domain.TestResult
}

// FinalizeSession converts the session's current state into a stored result.
// Unanswered and incorrect entries both count against accuracy. Finalize is
// idempotent: repeated calls return the result created by the first one,
// backed by the one-result-per-session uniqueness in the result store.
func (s *Service) FinalizeSession(ctx context.Context, req FinalizeSessionRequest) (*FinalizeSessionResponse, error) {
	head, err := s.checkOwner(ctx, req.SessionID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if head.Status == domain.SessionFinalized {
		return s.existingResult(ctx, req.SessionID)
	}

	total, correct, err := s.store.CountAnswers(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	r, err := s.results.Create(ctx, domain.TestResult{
		SessionID:  req.SessionID,
		OwnerID:    head.OwnerID,
		TestType:   head.Type,
		Correct:    correct,
		Total:      total,
		Accuracy:   domain.Accuracy(correct, total),
		TimeTaken:  s.now().Sub(head.StartedAt),
		WeakTopics: []string{}, // extension point: per-topic accuracy breakdown
	})
	if errors.Is(err, errors.CodeAlreadyExists) {
		// Lost a duplicate-finalize race; the winner's result stands.
		return s.existingResult(ctx, req.SessionID)
	}
	if err != nil {
		return nil, err
	}

	// The result row is already durable; a failure here only widens the
	// window in which late submits still succeed.
	if err := s.store.CloseSession(ctx, req.SessionID); err != nil {
		slog.ErrorContext(ctx, "session: mark finalized failed",
			"session_id", req.SessionID,
			"error", err,
		)
	}

	return &FinalizeSessionResponse{Result: r}, nil
}

func (s *Service) checkOwner(ctx context.Context, sessionID, ownerID string) (Head, error) {
	head, err := s.store.GetSessionHead(ctx, sessionID)
	if err != nil {
		return Head{}, err
	}
	if head.OwnerID != ownerID {
		return Head{}, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("session %s does not belong to the caller", sessionID))
	}

	return head, nil
}

func (s *Service) existingResult(ctx context.Context, sessionID string) (*FinalizeSessionResponse, error) {
	r, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &FinalizeSessionResponse{Result: r}, nil
}
