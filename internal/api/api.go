package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
	"github.com/prepmate/prepmate/internal/event"
	"github.com/prepmate/prepmate/internal/leaderboard"
	"github.com/prepmate/prepmate/internal/question"
	"github.com/prepmate/prepmate/internal/session"
)

// SessionService is the session engine as the API consumes it.
type SessionService interface {
	CreateSession(ctx context.Context, req session.CreateSessionRequest) (*session.CreateSessionResponse, error)
	SubmitAnswer(ctx context.Context, req session.SubmitAnswerRequest) error
	FinalizeSession(ctx context.Context, req session.FinalizeSessionRequest) (*session.FinalizeSessionResponse, error)
}

type QuestionService interface {
	CreateQuestion(ctx context.Context, req question.CreateQuestionRequest) (*domain.Question, error)
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
}

type ResultService interface {
	ListResults(ctx context.Context, ownerID string) ([]domain.TestResult, error)
	GetResult(ctx context.Context, resultID, ownerID string) (*domain.TestResult, error)
}

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Verifier     Verifier
	Session      SessionService
	Question     QuestionService
	Result       ResultService
	Leaderboard  LeaderboardService
	Redis        Redis
	PubsubPrefix string
}

type API struct {
	ts SessionService
	qs QuestionService
	rs ResultService
	ls LeaderboardService

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ts:     c.Session,
		qs:     c.Question,
		rs:     c.Result,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	g := c.Router.Group("/api", Authenticate(c.Verifier))
	g.POST("/tests", a.CreateTest)
	g.POST("/tests/answers", a.SubmitAnswer)
	g.POST("/tests/:id/finalize", a.FinalizeTest)
	g.GET("/results", a.ListResults)
	g.GET("/results/:id", a.GetResult)
	g.GET("/leaderboard/:type", a.GetLeaderboard)
	g.POST("/questions", a.CreateQuestion)
	g.GET("/questions/:id", a.GetQuestion)

	// Report-ready notifications for connected clients.
	c.EventBus.Subscribe(domain.EventNameResultCreated, func(ctx context.Context, e event.Event) error {
		return a.PublishResultCreated(ctx, e.(domain.EventResultCreated))
	})

	return a
}

type (
	CreateTestRequest struct {
		Type       string `json:"type" binding:"required"`
		Difficulty string `json:"difficulty" binding:"required"`
	}

	CreateTestResponse struct {
		Session   TestSession `json:"session"`
		Questions []Question  `json:"questions"`
	}

	TestSession struct {
		SessionID string            `json:"session_id"`
		Type      string            `json:"type"`
		Status    string            `json:"status"`
		StartedAt time.Time         `json:"started_at"`
		Questions []SessionQuestion `json:"questions"`
	}

	SessionQuestion struct {
		QuestionID string  `json:"question_id"`
		UserAnswer *string `json:"user_answer"`
		IsCorrect  *bool   `json:"is_correct"`
	}

	Question struct {
		QuestionID string   `json:"question_id"`
		Type       string   `json:"type"`
		Question   string   `json:"question"`
		Options    []string `json:"options"`
		Topic      string   `json:"topic"`
		Difficulty string   `json:"difficulty"`
	}

	SubmitAnswerRequest struct {
		SessionID  string `json:"session_id" binding:"required"`
		QuestionID string `json:"question_id" binding:"required"`
		UserAnswer string `json:"user_answer" binding:"required"`
	}

	AckResponse struct {
		Acknowledged bool `json:"acknowledged"`
	}

	FinalizeTestResponse struct {
		ResultID string  `json:"result_id"`
		Accuracy float64 `json:"accuracy"`
	}

	TestResult struct {
		ResultID    string    `json:"result_id"`
		TestType    string    `json:"test_type"`
		Correct     int       `json:"correct"`
		Total       int       `json:"total"`
		Accuracy    float64   `json:"accuracy"`
		TimeTakenMS int64     `json:"time_taken_ms"`
		WeakTopics  []string  `json:"weak_topics"`
		CreatedAt   time.Time `json:"created_at"`
	}

	ListResultsResponse struct {
		Results []TestResult `json:"results"`
	}

	CreateQuestionRequest struct {
		Type          string   `json:"type" binding:"required"`
		Question      string   `json:"question" binding:"required"`
		Options       []string `json:"options" binding:"required"`
		CorrectOption string   `json:"correct_option" binding:"required"`
		Topic         string   `json:"topic" binding:"required"`
		Difficulty    string   `json:"difficulty" binding:"required"`
	}

	CreateQuestionResponse struct {
		QuestionID string `json:"question_id"`
	}

	Leaderboard struct {
		TestType string             `json:"test_type"`
		Entries  []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		OwnerID  string  `json:"owner_id"`
		Accuracy float64 `json:"accuracy"`
	}
)

func (a *API) CreateTest(c *gin.Context) {
	var req CreateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("test type and difficulty are required"),
			errors.WithCause(err)))
		return
	}

	resp, err := a.ts.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		OwnerID:    Owner(c),
		Type:       domain.TestType(req.Type),
		Difficulty: domain.Difficulty(req.Difficulty),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	out := CreateTestResponse{
		Session: TestSession{
			SessionID: resp.Session.SessionID,
			Type:      string(resp.Session.Type),
			Status:    string(resp.Session.Status),
			StartedAt: resp.Session.StartedAt,
			Questions: make([]SessionQuestion, 0, len(resp.Session.Questions)),
		},
		Questions: make([]Question, 0, len(resp.Questions)),
	}
	for _, q := range resp.Session.Questions {
		out.Session.Questions = append(out.Session.Questions, SessionQuestion{
			QuestionID: q.QuestionID,
			UserAnswer: q.UserAnswer,
			IsCorrect:  q.IsCorrect,
		})
	}
	for _, q := range resp.Questions {
		out.Questions = append(out.Questions, toQuestion(q))
	}

	c.JSON(http.StatusCreated, out)
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session ID, question ID and answer are required"),
			errors.WithCause(err)))
		return
	}

	err := a.ts.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID:  req.SessionID,
		OwnerID:    Owner(c),
		QuestionID: req.QuestionID,
		UserAnswer: req.UserAnswer,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, AckResponse{Acknowledged: true})
}

func (a *API) FinalizeTest(c *gin.Context) {
	resp, err := a.ts.FinalizeSession(c.Request.Context(), session.FinalizeSessionRequest{
		SessionID: c.Param("id"),
		OwnerID:   Owner(c),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, FinalizeTestResponse{
		ResultID: resp.Result.ResultID,
		Accuracy: resp.Result.Accuracy,
	})
}

func (a *API) ListResults(c *gin.Context) {
	results, err := a.rs.ListResults(c.Request.Context(), Owner(c))
	if err != nil {
		abortError(c, err)
		return
	}

	out := ListResultsResponse{Results: make([]TestResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toResult(r))
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) GetResult(c *gin.Context) {
	r, err := a.rs.GetResult(c.Request.Context(), c.Param("id"), Owner(c))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResult(*r))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		TestType: domain.TestType(c.Param("type")),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	out := Leaderboard{
		TestType: string(l.TestType),
		Entries:  make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			OwnerID:  e.OwnerID,
			Accuracy: e.Accuracy,
		})
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("all question fields are required"),
			errors.WithCause(err)))
		return
	}

	q, err := a.qs.CreateQuestion(c.Request.Context(), question.CreateQuestionRequest{
		Type:          domain.TestType(req.Type),
		Question:      req.Question,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Topic:         req.Topic,
		Difficulty:    domain.Difficulty(req.Difficulty),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateQuestionResponse{QuestionID: q.QuestionID})
}

func (a *API) GetQuestion(c *gin.Context) {
	q, err := a.qs.GetQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestion(*q))
}

func toQuestion(q domain.Question) Question {
	return Question{
		QuestionID: q.QuestionID,
		Type:       string(q.Type),
		Question:   q.Question,
		Options:    q.Options,
		Topic:      q.Topic,
		Difficulty: string(q.Difficulty),
	}
}

func toResult(r domain.TestResult) TestResult {
	weak := r.WeakTopics
	if weak == nil {
		weak = []string{}
	}

	return TestResult{
		ResultID:    r.ResultID,
		TestType:    string(r.TestType),
		Correct:     r.Correct,
		Total:       r.Total,
		Accuracy:    r.Accuracy,
		TimeTakenMS: r.TimeTaken.Milliseconds(),
		WeakTopics:  weak,
		CreatedAt:   r.CreatedAt,
	}
}

func abortError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
		// Internals stay internal.
		e = errors.New(errors.CodeInternal)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
