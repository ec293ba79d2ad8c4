//go:build integration_test

// A full practice run against a locally running server: seed the bank, take
// a test through the runner, finalize concurrently and watch the report
// notification arrive over Redis.
package demo

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prepmate/prepmate/internal/api"
	"github.com/prepmate/prepmate/internal/client"
	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/runner"
)

const (
	baseURL     = "http://localhost:8080"
	redisAddr   = "localhost:6379"
	redisPrefix = "prepmate"

	adminToken     = "admin-token"
	candidateToken = "u1-token"
	candidate      = "u1"
)

func TestPracticeRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		admin = makeClient(t, adminToken)
		cand  = makeClient(t, candidateToken)
		wg    = new(sync.WaitGroup)
	)

	// Seed the bank.
	answerKeys := make(map[string]string)
	for _, q := range []struct {
		question string
		options  []string
		correct  string
	}{
		{"2+2?", []string{"3", "4"}, "4"},
		{"3*3?", []string{"6", "9"}, "9"},
		{"10/2?", []string{"5", "2"}, "5"},
	} {
		id, err := admin.CreateQuestion(ctx, api.CreateQuestionRequest{
			Type:          "Aptitude",
			Question:      q.question,
			Options:       q.options,
			CorrectOption: q.correct,
			Topic:         "math",
			Difficulty:    "Easy",
		})
		require.NoError(t, err)
		answerKeys[id] = q.correct
	}

	subscribeAsUser(t, ctx, wg)

	// Take the test. First two answered correctly, the last one skipped.
	resp, err := cand.CreateTest(ctx, "Aptitude", "Easy")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(resp.Questions), 3)

	questions := make([]domain.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		questions = append(questions, domain.Question{
			QuestionID: q.QuestionID,
			Question:   q.Question,
			Options:    q.Options,
		})
	}

	r, err := runner.New(runner.Config{Engine: cand}, resp.Session.SessionID, questions)
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	for i := 0; i < 2; i++ {
		_, q := r.Current()
		r.Select(answerKeys[q.QuestionID])
		require.True(t, r.Next(ctx))
	}

	// Concurrent finalizes must converge on one result.
	var (
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	var eg errgroup.Group
	for i := 0; i < 3; i++ {
		eg.Go(func() error {
			res, err := r.Finalize(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[res.ResultID] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.Len(t, ids, 1, "every finalize must return the same result")

	// The report lands in the history and on the leaderboard.
	results, err := cand.ListResults(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	board, err := cand.GetLeaderboard(ctx, "Aptitude")
	require.NoError(t, err)
	require.NotEmpty(t, board.Entries)

	wg.Wait()
}

func makeClient(t *testing.T, token string) *client.Client {
	t.Helper()

	c, err := client.New(client.Config{
		BaseURL: baseURL,
		Token:   token,
	})
	require.NoError(t, err)
	return c
}

func subscribeAsUser(t *testing.T, ctx context.Context, wg *sync.WaitGroup) {
	t.Helper()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	require.NoError(t, rc.Ping(ctx).Err())

	sub := rc.Subscribe(ctx, redisPrefix+":user:"+candidate)
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Close()

		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)

		var n api.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		require.Equal(t, "result.created", n.Event)
	}()
}
