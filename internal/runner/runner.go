package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
)

const (
	tickInterval       = time.Second
	defaultMaxFailures = 3
)

// Engine is the server side the runner syncs against.
type Engine interface {
	SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) error
	FinalizeSession(ctx context.Context, sessionID string) (*domain.TestResult, error)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	Engine Engine
	// MaxSyncFailures is how many failed sync attempts a question takes
	// before Warnings reports it. Zero means the default.
	MaxSyncFailures int
	NewTickerFunc   func(d time.Duration) Ticker
}

// Runner drives the question-by-question flow of one test session on the
// client side: strictly forward navigation, a local answer cache that is
// flushed to the engine before advancing, and a display-only elapsed clock.
//
// Answer syncs are best effort. A failed sync keeps the answer queued and
// retries on the next flush; the queue is force-flushed before finalize so
// no locally recorded answer can be silently dropped from the report.
//
// Methods are meant to be called from a single goroutine (the UI loop); the
// elapsed clock ticks independently.
type Runner struct {
	engine      Engine
	newTicker   func(d time.Duration) Ticker
	maxFailures int

	sessionID string
	questions []domain.Question

	mu       sync.Mutex
	current  int
	furthest int
	answers  []string
	flagged  map[int]bool
	pending  map[string]string // question ID -> latest unsynced answer
	dirty    []string          // sync order, deduplicated
	failures map[string]int

	elapsedSec atomic.Int64
	stopTick   chan struct{}
	stopOnce   sync.Once
}

// New builds a runner over a freshly created session. questions must be the
// session's question set in session order, answer keys stripped.
func New(c Config, sessionID string, questions []domain.Question) (*Runner, error) {
	if c.Engine == nil {
		return nil, fmt.Errorf("runner: engine is required")
	}
	if sessionID == "" || len(questions) == 0 {
		return nil, fmt.Errorf("runner: session with at least one question is required")
	}

	r := &Runner{
		engine:      c.Engine,
		newTicker:   c.NewTickerFunc,
		maxFailures: c.MaxSyncFailures,
		sessionID:   sessionID,
		questions:   questions,
		answers:     make([]string, len(questions)),
		flagged:     make(map[int]bool),
		pending:     make(map[string]string),
		failures:    make(map[string]int),
		stopTick:    make(chan struct{}),
	}
	if r.maxFailures <= 0 {
		r.maxFailures = defaultMaxFailures
	}
	if r.newTicker == nil {
		r.newTicker = func(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }
	}

	return r, nil
}

// Start begins the elapsed clock. The clock is local and display-only; the
// authoritative time taken is computed server-side at finalization.
func (r *Runner) Start() {
	tk := r.newTicker(tickInterval)

	go func() {
		defer tk.Stop()
		for {
			select {
			case <-tk.C():
				r.elapsedSec.Add(1)
			case <-r.stopTick:
				return
			}
		}
	}()
}

// Stop halts the elapsed clock. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopTick) })
}

func (r *Runner) Elapsed() time.Duration {
	return time.Duration(r.elapsedSec.Load()) * time.Second
}

// Current returns the index and question being presented.
func (r *Runner) Current() (int, domain.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current, r.questions[r.current]
}

func (r *Runner) Len() int {
	return len(r.questions)
}

// Select caches an answer for the current question. Local only until the
// next flush.
func (r *Runner) Select(answer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.answers[r.current] = answer
}

// Answer returns the locally cached answer for a question, if any.
func (r *Runner) Answer(index int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.answers) {
		return ""
	}
	return r.answers[index]
}

// Answered counts locally answered questions. Derived for the progress
// indicator; the persisted session may lag until the next flush.
func (r *Runner) Answered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.answers {
		if a != "" {
			n++
		}
	}
	return n
}

// Flag toggles the local review mark on a question. Never synced, never
// graded.
func (r *Runner) Flag(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.questions) {
		return
	}
	r.flagged[index] = !r.flagged[index]
}

func (r *Runner) Flagged(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flagged[index]
}

// GoTo moves back to an already reached question. Jumping ahead of the
// furthest reached question is rejected and changes nothing.
func (r *Runner) GoTo(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index > r.furthest {
		return false
	}
	r.current = index
	return true
}

// Next syncs the current answer and advances. A no-op without a locally
// selected answer, and on the last question (only finalize ends the run
// from there). Sync failures are swallowed; the answer stays queued.
func (r *Runner) Next(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.answers[r.current] == "" || r.current == len(r.questions)-1 {
		return false
	}

	r.enqueueLocked(r.current)
	r.flushLocked(ctx)

	r.current++
	if r.current > r.furthest {
		r.furthest = r.current
	}
	return true
}

// Finalize force-flushes every pending answer and asks the engine to score
// the session. Valid at any point in the run. When a pending answer cannot
// be synced, finalize fails instead of silently losing it; the caller
// retries.
func (r *Runner) Finalize(ctx context.Context) (*domain.TestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.answers[r.current] != "" {
		r.enqueueLocked(r.current)
	}

	if err := r.flushLocked(ctx); err != nil {
		return nil, fmt.Errorf("runner: flush answers before finalize: %w", err)
	}

	return r.engine.FinalizeSession(ctx, r.sessionID)
}

// Warnings lists question IDs whose sync has failed at least the configured
// number of times. Surfaced so the host can show a dismissible notice
// instead of losing answers quietly.
func (r *Runner) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, id := range r.dirty {
		if r.failures[id] >= r.maxFailures {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingSyncs reports how many answers still await a successful sync.
func (r *Runner) PendingSyncs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.dirty)
}

func (r *Runner) enqueueLocked(index int) {
	id := r.questions[index].QuestionID
	if _, queued := r.pending[id]; !queued {
		r.dirty = append(r.dirty, id)
	}
	r.pending[id] = r.answers[index]
}

// flushLocked attempts every queued sync in order. Failures keep the entry
// queued and move on, so one unreachable question cannot starve the rest.
// Returns the last error when anything is still pending afterwards.
func (r *Runner) flushLocked(ctx context.Context) error {
	var (
		remaining []string
		lastErr   error
	)

	for _, id := range r.dirty {
		if err := r.engine.SubmitAnswer(ctx, r.sessionID, id, r.pending[id]); err != nil {
			if e := errors.Convert(err); e.Code != errors.CodeInternal {
				// A definite rejection will not get better with
				// retries; drop the entry.
				slog.WarnContext(ctx, "runner: answer rejected",
					"question_id", id,
					"error", err,
				)
				delete(r.pending, id)
				delete(r.failures, id)
				continue
			}

			r.failures[id]++
			remaining = append(remaining, id)
			lastErr = err
			slog.WarnContext(ctx, "runner: answer sync failed",
				"question_id", id,
				"attempts", r.failures[id],
				"error", err,
			)
			continue
		}

		delete(r.pending, id)
		delete(r.failures, id)
	}

	r.dirty = remaining
	return lastErr
}

type wallTicker struct {
	t *time.Ticker
}

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }
