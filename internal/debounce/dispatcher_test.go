package debounce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garcomlabs/garcom/internal/log"
)

type blockingRunner struct {
	mu      sync.Mutex
	done    chan struct{}
	replies int
}

func (r *blockingRunner) Run(_ context.Context, _ Key, _ string) (string, error) {
	r.mu.Lock()
	r.replies++
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
	return "ok", nil
}

func TestDispatcherFiresAfterQuietWindow(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	runner := &blockingRunner{done: make(chan struct{}, 1)}
	q := NewQueue(NewMemoryStore(), runner, log.NewNop(), WithQuietWindow(20*time.Millisecond))
	d := NewDispatcher(q, log.NewNop())
	defer d.Close()

	id, err := q.Enqueue(ctx, queueKey(), "olá")
	require.NoError(t, err)
	d.Schedule(id, q.QuietWindow())

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never fired")
	}

	entry, err := q.Store().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, entry.Status)
	assert.Equal(t, "ok", entry.Result)
}

func TestDispatcherResetsTimerOnNewMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	runner := &blockingRunner{done: make(chan struct{}, 1)}
	q := NewQueue(NewMemoryStore(), runner, log.NewNop(), WithQuietWindow(40*time.Millisecond))
	d := NewDispatcher(q, log.NewNop())
	defer d.Close()

	key := queueKey()
	id, err := q.Enqueue(ctx, key, "quero uma pizza")
	require.NoError(t, err)
	d.Schedule(id, q.QuietWindow())

	// Second message inside the window pushes the deadline out. The old
	// timer may still fire early; TryDispatch defers and the dispatcher
	// reschedules, so exactly one run happens with both messages.
	time.Sleep(15 * time.Millisecond)
	id2, err := q.Enqueue(ctx, key, "margherita")
	require.NoError(t, err)
	require.Equal(t, id, id2)
	d.Schedule(id, q.QuietWindow())

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never fired")
	}

	entry, err := q.Store().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, entry.Status)
	require.Len(t, entry.Messages, 2)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.replies, "burst must be processed exactly once")
}

func TestDispatcherSurvivesScheduleStorm(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	runner := &blockingRunner{done: make(chan struct{}, 1)}
	q := NewQueue(NewMemoryStore(), runner, log.NewNop(), WithQuietWindow(5*time.Millisecond))
	d := NewDispatcher(q, log.NewNop())

	id, err := q.Enqueue(ctx, queueKey(), "olá")
	require.NoError(t, err)

	// Zero-delay reschedules race the firing closures. A rearmed timer
	// whose function already fired must not run twice; the wait group
	// count stays balanced through Close or this panics.
	const (
		goroutines = 8
		rounds     = 5000
	)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				d.Schedule(id, time.Nanosecond)
			}
		}()
	}
	wg.Wait()
	d.Close()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.LessOrEqual(t, runner.replies, 1)
}

func TestDispatcherCloseStopsPendingTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	runner := &blockingRunner{done: make(chan struct{}, 1)}
	q := NewQueue(NewMemoryStore(), runner, log.NewNop(), WithQuietWindow(time.Hour))
	d := NewDispatcher(q, log.NewNop())

	id, err := q.Enqueue(ctx, queueKey(), "olá")
	require.NoError(t, err)
	d.Schedule(id, time.Hour)
	d.Close()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Zero(t, runner.replies)
}

func TestDispatcherIgnoresScheduleAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &blockingRunner{done: make(chan struct{}, 1)}
	q := NewQueue(NewMemoryStore(), runner, log.NewNop())
	d := NewDispatcher(q, log.NewNop())
	d.Close()

	d.Schedule(uuid.New(), time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Zero(t, runner.replies)
}
