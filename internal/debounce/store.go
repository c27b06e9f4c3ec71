// Package debounce coalesces bursts of inbound messages from one customer
// into a single compiled turn, released once a quiet interval elapses.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/session"
)

// Status is the lifecycle state of a queue entry. Terminal entries are
// never reused; the next burst creates a fresh entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound indicates no entry exists for the ID.
var ErrNotFound = errors.New("debounce entry not found")

// Key aliases the conversation key.
type Key = session.Key

// Message is one buffered inbound message.
type Message struct {
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is one debounce queue row. Buffered messages are retained after
// processing for audit.
type Entry struct {
	ID                 uuid.UUID
	Key                Key
	Status             Status
	Messages           []Message
	FirstMessageAt     time.Time
	LastMessageAt      time.Time
	ScheduledProcessAt time.Time
	Result             string
	Error              string
}

// Store persists debounce entries. MarkProcessing must be an atomic
// compare-and-swap so two racing dispatchers cannot both claim an entry.
type Store interface {
	// AppendOrCreate appends msg to the key's pending entry, advancing
	// LastMessageAt and ScheduledProcessAt, or creates a new pending entry
	// if none exists. Returns the entry.
	AppendOrCreate(ctx context.Context, key Key, msg Message, scheduledAt time.Time) (*Entry, error)

	// Get loads an entry by ID.
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// MarkProcessing atomically flips pending to processing and returns the
	// claimed row, so the caller compiles exactly the messages the swap
	// sealed. Returns (nil, false, nil) when the entry is not pending.
	MarkProcessing(ctx context.Context, id uuid.UUID) (*Entry, bool, error)

	// Complete marks the entry completed with a result payload.
	Complete(ctx context.Context, id uuid.UUID, result string) error

	// Fail marks the entry failed with the error message.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

// MemoryStore is an in-memory Store for tests and the local REPL.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	pending map[Key]uuid.UUID // key -> pending entry, at most one
}

// NewMemoryStore creates an empty in-memory debounce store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uuid.UUID]*Entry),
		pending: make(map[Key]uuid.UUID),
	}
}

// AppendOrCreate implements Store.
func (s *MemoryStore) AppendOrCreate(_ context.Context, key Key, msg Message, scheduledAt time.Time) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pending[key]; ok {
		e := s.entries[id]
		e.Messages = append(e.Messages, msg)
		e.LastMessageAt = msg.Timestamp
		e.ScheduledProcessAt = scheduledAt
		return copyEntry(e), nil
	}

	e := &Entry{
		ID:                 uuid.New(),
		Key:                key,
		Status:             StatusPending,
		Messages:           []Message{msg},
		FirstMessageAt:     msg.Timestamp,
		LastMessageAt:      msg.Timestamp,
		ScheduledProcessAt: scheduledAt,
	}
	s.entries[e.ID] = e
	s.pending[key] = e.ID
	return copyEntry(e), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(e), nil
}

// MarkProcessing implements Store.
func (s *MemoryStore) MarkProcessing(_ context.Context, id uuid.UUID) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if e.Status != StatusPending {
		return nil, false, nil
	}
	e.Status = StatusProcessing
	delete(s.pending, e.Key)
	return copyEntry(e), true, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID, result string) error {
	return s.finish(id, StatusCompleted, result, "")
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(id, StatusFailed, "", errMsg)
}

func (s *MemoryStore) finish(id uuid.UUID, status Status, result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	e.Result = result
	e.Error = errMsg
	return nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	cp.Messages = make([]Message, len(e.Messages))
	copy(cp.Messages, e.Messages)
	return &cp
}
