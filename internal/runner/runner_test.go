package runner_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
	"github.com/prepmate/prepmate/internal/runner"
)

type fakeEngine struct {
	answers     map[string]string
	submitCalls int
	failSubmits bool
	rejectAll   bool

	finalized     bool
	finalizeCalls int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{answers: make(map[string]string)}
}

func (e *fakeEngine) SubmitAnswer(_ context.Context, sessionID, questionID, answer string) error {
	e.submitCalls++
	if e.failSubmits {
		return fmt.Errorf("connection refused")
	}
	if e.rejectAll {
		return errors.New(errors.CodeNotFound)
	}
	e.answers[questionID] = answer
	return nil
}

func (e *fakeEngine) FinalizeSession(_ context.Context, sessionID string) (*domain.TestResult, error) {
	e.finalizeCalls++
	e.finalized = true
	return &domain.TestResult{ResultID: "res-1", SessionID: sessionID}, nil
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		{QuestionID: "q1", Question: "2+2?", Options: []string{"3", "4"}},
		{QuestionID: "q2", Question: "3*3?", Options: []string{"6", "9"}},
		{QuestionID: "q3", Question: "10/2?", Options: []string{"5", "2"}},
	}
}

func makeRunner(t *testing.T, e *fakeEngine) *runner.Runner {
	t.Helper()

	r, err := runner.New(runner.Config{Engine: e}, "sess-1", threeQuestions())
	require.NoError(t, err)
	return r
}

func TestRunner_NextRequiresAnswer(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	require.False(t, r.Next(context.Background()), "no local answer, next is a no-op")
	require.Zero(t, e.submitCalls, "a no-op next must not hit the network")

	idx, _ := r.Current()
	require.Zero(t, idx)
}

func TestRunner_NextSyncsAndAdvances(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	r.Select("4")
	require.True(t, r.Next(context.Background()))

	idx, q := r.Current()
	require.Equal(t, 1, idx)
	require.Equal(t, "q2", q.QuestionID)
	require.Equal(t, map[string]string{"q1": "4"}, e.answers)
}

func TestRunner_NoNextOnLastQuestion(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	advance(t, r, "4", "9")
	r.Select("5")

	require.False(t, r.Next(context.Background()), "last question only finalizes")
	idx, _ := r.Current()
	require.Equal(t, 2, idx)
}

func TestRunner_GoTo(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	require.False(t, r.GoTo(1), "jumping ahead is rejected")
	require.False(t, r.GoTo(-1))

	advance(t, r, "4", "9")

	require.True(t, r.GoTo(0), "revisiting an answered question is allowed")
	idx, _ := r.Current()
	require.Zero(t, idx)

	require.True(t, r.GoTo(2), "moving back up to the furthest reached question is allowed")
	require.False(t, r.GoTo(3))
}

func TestRunner_FinalizeFlushesCurrentAnswer(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	advance(t, r, "4")
	r.Select("6")

	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "res-1", res.ResultID)
	require.Equal(t, map[string]string{"q1": "4", "q2": "6"}, e.answers,
		"the unsynced current answer is flushed before finalizing")
	require.True(t, e.finalized)
}

func TestRunner_FinalizeAnywhere(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	// End the test immediately, nothing answered.
	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "res-1", res.ResultID)
	require.Zero(t, e.submitCalls)
}

func TestRunner_SyncFailureDoesNotBlockNavigation(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	e.failSubmits = true
	r.Select("4")
	require.True(t, r.Next(context.Background()), "a failed sync must not block the user")
	require.Equal(t, 1, r.PendingSyncs())

	// The next flush retries the queued answer alongside the new one.
	e.failSubmits = false
	r.Select("9")
	require.True(t, r.Next(context.Background()))
	require.Equal(t, map[string]string{"q1": "4", "q2": "9"}, e.answers)
	require.Zero(t, r.PendingSyncs())
}

func TestRunner_FinalizeFailsWhileAnswersPending(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	e.failSubmits = true
	r.Select("4")
	r.Next(context.Background())

	_, err := r.Finalize(context.Background())
	require.Error(t, err, "finalize must not drop unsynced answers")
	require.Zero(t, e.finalizeCalls)

	e.failSubmits = false
	res, err := r.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "res-1", res.ResultID)
	require.Equal(t, "4", e.answers["q1"])
}

func TestRunner_WarningsAfterRepeatedFailures(t *testing.T) {
	e := newFakeEngine()
	r, err := runner.New(runner.Config{Engine: e, MaxSyncFailures: 2}, "sess-1", threeQuestions())
	require.NoError(t, err)

	e.failSubmits = true
	r.Select("4")
	r.Next(context.Background())
	require.Empty(t, r.Warnings(), "one failure is below the warning threshold")

	_, _ = r.Finalize(context.Background())
	require.Equal(t, []string{"q1"}, r.Warnings())
}

func TestRunner_RejectedAnswerIsDropped(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	e.rejectAll = true
	r.Select("4")
	require.True(t, r.Next(context.Background()))
	require.Zero(t, r.PendingSyncs(), "a definite rejection is not retried")
}

func TestRunner_FlagIsLocalOnly(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	r.Flag(0)
	require.True(t, r.Flagged(0))
	r.Flag(0)
	require.False(t, r.Flagged(0))
	require.Zero(t, e.submitCalls)
}

func TestRunner_Answered(t *testing.T) {
	e := newFakeEngine()
	r := makeRunner(t, e)

	require.Zero(t, r.Answered())
	r.Select("4")
	require.Equal(t, 1, r.Answered())
	r.Next(context.Background())
	r.Select("9")
	require.Equal(t, 2, r.Answered())
}

func TestRunner_Elapsed(t *testing.T) {
	tick := make(chan time.Time)
	r, err := runner.New(runner.Config{
		Engine:        newFakeEngine(),
		NewTickerFunc: func(d time.Duration) runner.Ticker { return manualTicker{tick} },
	}, "sess-1", threeQuestions())
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	require.Zero(t, r.Elapsed())

	now := time.Now()
	tick <- now
	tick <- now

	require.Eventually(t, func() bool {
		return r.Elapsed() == 2*time.Second
	}, time.Second, time.Millisecond)
}

type manualTicker struct {
	c chan time.Time
}

func (m manualTicker) C() <-chan time.Time { return m.c }
func (m manualTicker) Stop()               {}

func advance(t *testing.T, r *runner.Runner, answers ...string) {
	t.Helper()

	for _, a := range answers {
		r.Select(a)
		require.True(t, r.Next(context.Background()))
	}
}
