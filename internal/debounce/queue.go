package debounce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/log"
)

// DefaultQuietWindow is how long the queue waits after the last message
// before releasing the burst.
const DefaultQuietWindow = 5 * time.Second

// Runner processes one compiled turn. The session engine implements it.
type Runner interface {
	Run(ctx context.Context, key Key, compiledTurn string) (reply string, err error)
}

// Disposition says what TryDispatch did with an entry.
type Disposition int

const (
	// Dispatched means the entry was claimed and processed.
	Dispatched Disposition = iota
	// Deferred means the quiet window has not elapsed; retry after Delay.
	Deferred
	// Skipped means the entry was not pending (duplicate timer fire or a
	// racing dispatcher won).
	Skipped
)

// Outcome is the result of one TryDispatch attempt.
type Outcome struct {
	Disposition Disposition
	Delay       time.Duration // remaining wait when Deferred
	Reply       string        // engine reply when Dispatched and successful
	Err         error         // engine error when Dispatched and failed
}

// Queue accumulates messages per conversation key and releases one
// compiled turn per burst.
type Queue struct {
	store  Store
	runner Runner
	quiet  time.Duration
	clock  func() time.Time
	logger log.Logger
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithQuietWindow overrides the default quiet window.
func WithQuietWindow(d time.Duration) QueueOption {
	return func(q *Queue) { q.quiet = d }
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) QueueOption {
	return func(q *Queue) { q.clock = clock }
}

// NewQueue creates a debounce queue over the given store and runner.
func NewQueue(store Store, runner Runner, logger log.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		store:  store,
		runner: runner,
		quiet:  DefaultQuietWindow,
		clock:  time.Now,
		logger: logger.With("component", "debounce"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QuietWindow returns the configured quiet window.
func (q *Queue) QuietWindow() time.Duration { return q.quiet }

// Store exposes the backing store, mainly for status inspection.
func (q *Queue) Store() Store { return q.store }

// Enqueue buffers one inbound message and returns the queue entry ID the
// caller should schedule a dispatch check for.
func (q *Queue) Enqueue(ctx context.Context, key Key, body string) (uuid.UUID, error) {
	now := q.clock()
	entry, err := q.store.AppendOrCreate(ctx, key,
		Message{Body: body, Timestamp: now}, now.Add(q.quiet))
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueueing message: %w", err)
	}
	q.logger.Debug("message buffered",
		"key", key.String(),
		"queue_id", entry.ID,
		"messages", len(entry.Messages))
	return entry.ID, nil
}

// TryDispatch attempts to release the entry. Duplicate timer fires and
// racing dispatchers are harmless: only the attempt that wins the
// pending-to-processing swap invokes the engine. Engine errors are recorded
// on the entry as a failed terminal state, never retried here.
func (q *Queue) TryDispatch(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	entry, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading entry: %w", err)
	}
	if entry.Status != StatusPending {
		return &Outcome{Disposition: Skipped}, nil
	}

	if remaining := q.quiet - q.clock().Sub(entry.LastMessageAt); remaining > 0 {
		return &Outcome{Disposition: Deferred, Delay: remaining}, nil
	}

	// Compile from the row the swap sealed, not the earlier snapshot: a
	// message appended between the read and the claim still belongs to
	// this burst.
	claimed, ok, err := q.store.MarkProcessing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claiming entry: %w", err)
	}
	if !ok {
		return &Outcome{Disposition: Skipped}, nil
	}
	entry = claimed

	bodies := make([]string, len(entry.Messages))
	for i, m := range entry.Messages {
		bodies[i] = m.Body
	}
	compiled := strings.Join(bodies, "\n")

	reply, err := q.runner.Run(ctx, entry.Key, compiled)
	if err != nil {
		q.logger.Error("turn failed",
			"key", entry.Key.String(),
			"queue_id", id,
			"error", err)
		if failErr := q.store.Fail(ctx, id, err.Error()); failErr != nil {
			q.logger.Error("recording failure", "queue_id", id, "error", failErr)
		}
		return &Outcome{Disposition: Dispatched, Err: err}, nil
	}

	if err := q.store.Complete(ctx, id, reply); err != nil {
		q.logger.Error("recording completion", "queue_id", id, "error", err)
	}
	q.logger.Info("turn processed",
		"key", entry.Key.String(),
		"queue_id", id,
		"messages", len(entry.Messages))
	return &Outcome{Disposition: Dispatched, Reply: reply}, nil
}
