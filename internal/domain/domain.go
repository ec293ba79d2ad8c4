package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TestType classifies a practice test round.
type TestType string

const (
	TestTypeAptitude TestType = "Aptitude"
	TestTypeCoding   TestType = "Coding"
	TestTypeHR       TestType = "HR"
)

func (t TestType) Valid() bool {
	switch t {
	case TestTypeAptitude, TestTypeCoding, TestTypeHR:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is a bank entry. CorrectOption is the answer key and is stripped
// before a question leaves the service boundary.
type Question struct {
	QuestionID    string
	Type          TestType
	Question      string
	Options       []string
	CorrectOption string
	Topic         string
	Difficulty    Difficulty
}

// Public returns a copy safe to hand to test takers.
func (q Question) Public() Question {
	q.CorrectOption = ""
	return q
}

type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionFinalized SessionStatus = "finalized"
)

// SessionQuestion is one graded slot of a test session. UserAnswer and
// IsCorrect stay nil until an answer is submitted.
type SessionQuestion struct {
	QuestionID string
	UserAnswer *string
	IsCorrect  *bool
}

// TestSession holds the frozen question set of a single test attempt.
// The Questions slice is ordered at creation and never reordered or resized.
type TestSession struct {
	SessionID string
	OwnerID   string
	Type      TestType
	Status    SessionStatus
	Questions []SessionQuestion
	StartedAt time.Time
}

// TestResult is the immutable scored report derived from a session at
// finalization.
type TestResult struct {
	ResultID   string
	SessionID  string
	OwnerID    string
	TestType   TestType
	Correct    int
	Total      int
	Accuracy   float64
	TimeTaken  time.Duration
	WeakTopics []string
	CreatedAt  time.Time
}

// Grade reports whether a submitted answer matches the answer key.
// Correctness is exact string equality, nothing fuzzier.
func Grade(correctOption, userAnswer string) bool {
	return correctOption == userAnswer
}

// Accuracy computes 100*correct/total. A zero total yields 0 rather than
// dividing; sessions are created with at least one question.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}

	return decimal.NewFromInt(int64(correct) * 100).
		Div(decimal.NewFromInt(int64(total))).
		InexactFloat64()
}

// Leaderboard ranks owners by their best accuracy for one test type,
// descending.
type Leaderboard struct {
	TestType TestType
	Entries  []LeaderboardEntry
}

type LeaderboardEntry struct {
	OwnerID  string
	Accuracy float64
}
