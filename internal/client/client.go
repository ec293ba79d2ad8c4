// Package client is the HTTP side of the test runner: a thin typed wrapper
// over the REST surface that candidates' terminals talk to.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prepmate/prepmate/internal/api"
	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL string
	Token   string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

func New(c Config) (*Client, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if c.Token == "" {
		return nil, fmt.Errorf("client: token is required")
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL: c.BaseURL,
		token:   c.Token,
		hc:      hc,
	}, nil
}

// CreateTest opens a session and returns it alongside the presentable
// question set, in session order.
func (c *Client) CreateTest(ctx context.Context, testType, difficulty string) (*api.CreateTestResponse, error) {
	var resp api.CreateTestResponse
	err := c.do(ctx, http.MethodPost, "/api/tests", api.CreateTestRequest{
		Type:       testType,
		Difficulty: difficulty,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) error {
	return c.do(ctx, http.MethodPost, "/api/tests/answers", api.SubmitAnswerRequest{
		SessionID:  sessionID,
		QuestionID: questionID,
		UserAnswer: answer,
	}, nil)
}

func (c *Client) FinalizeSession(ctx context.Context, sessionID string) (*domain.TestResult, error) {
	var resp api.FinalizeTestResponse
	if err := c.do(ctx, http.MethodPost, "/api/tests/"+sessionID+"/finalize", nil, &resp); err != nil {
		return nil, err
	}

	return &domain.TestResult{
		ResultID:  resp.ResultID,
		SessionID: sessionID,
		Accuracy:  resp.Accuracy,
	}, nil
}

// GetResult fetches the full report for one of the caller's results.
func (c *Client) GetResult(ctx context.Context, resultID string) (*api.TestResult, error) {
	var resp api.TestResult
	if err := c.do(ctx, http.MethodGet, "/api/results/"+resultID, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) ListResults(ctx context.Context) ([]api.TestResult, error) {
	var resp api.ListResultsResponse
	if err := c.do(ctx, http.MethodGet, "/api/results", nil, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// CreateQuestion adds a bank entry. Admin tooling only; candidate tokens are
// expected to be rejected by deployments with a real identity provider.
func (c *Client) CreateQuestion(ctx context.Context, req api.CreateQuestionRequest) (string, error) {
	var resp api.CreateQuestionResponse
	if err := c.do(ctx, http.MethodPost, "/api/questions", req, &resp); err != nil {
		return "", err
	}

	return resp.QuestionID, nil
}

func (c *Client) GetLeaderboard(ctx context.Context, testType string) (*api.Leaderboard, error) {
	var resp api.Leaderboard
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard/"+testType, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal %s %s: %v", method, path, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %v", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Internal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Internal(fmt.Errorf("client: decode %s %s: %v", method, path, err))
	}

	return nil
}

// decodeError rebuilds the server's coded error so callers can tell a
// definite rejection from a transient failure. Unparseable bodies come back
// as internal.
func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == 0 {
		return errors.Internal(fmt.Errorf("client: server returned status %d", resp.StatusCode))
	}

	return errors.New(e.Code, errors.WithMessagef("%s", e.Message))
}
