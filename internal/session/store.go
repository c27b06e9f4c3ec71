package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound indicates no conversation exists for the key.
	ErrNotFound = errors.New("conversation not found")

	// ErrVersionConflict indicates a concurrent update won the
	// optimistic-concurrency race; the caller should re-read and retry.
	ErrVersionConflict = errors.New("conversation version conflict")
)

// Key identifies one customer conversation at one restaurant.
type Key struct {
	RestaurantID uuid.UUID
	Phone        string
}

func (k Key) String() string {
	return k.RestaurantID.String() + "/" + k.Phone
}

// Conversation is the persistent dialogue state for one key.
// At most one row exists per key; it is reset to idle, never deleted.
type Conversation struct {
	Key       Key
	State     State
	CartID    *uuid.UUID
	UpdatedAt time.Time

	// Checkout details collected during the session, cleared on reset.
	Address       string
	DeliveryFee   int64 // cents
	PaymentMethod string

	// Version supports optimistic concurrency on updates. Incremented by
	// the store on every successful Update.
	Version int64
}

// Store persists conversation state. Implementations must make
// GetOrCreate atomic per key and Update conditional on Version.
type Store interface {
	// GetOrCreate returns the conversation for the key, creating an idle
	// one if none exists.
	GetOrCreate(ctx context.Context, key Key) (*Conversation, error)

	// Update persists state, cart reference, and bumps UpdatedAt. Fails
	// with ErrVersionConflict if conv.Version is stale.
	Update(ctx context.Context, conv *Conversation) error

	// Reset returns the conversation to idle with the cart detached.
	Reset(ctx context.Context, key Key) error
}

// MemoryStore is an in-memory Store for tests and the local REPL.
type MemoryStore struct {
	mu    sync.Mutex
	conns map[Key]*Conversation
	clock func() time.Time
}

// NewMemoryStore creates an empty in-memory conversation store.
// clock may be nil, in which case time.Now is used.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		conns: make(map[Key]*Conversation),
		clock: clock,
	}
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, key Key) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[key]; ok {
		cp := *c
		return &cp, nil
	}
	c := &Conversation{
		Key:       key,
		State:     StateIdle,
		UpdatedAt: s.clock(),
		Version:   1,
	}
	s.conns[key] = c
	cp := *c
	return &cp, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conns[conv.Key]
	if !ok {
		return fmt.Errorf("%s: %w", conv.Key, ErrNotFound)
	}
	if current.Version != conv.Version {
		return fmt.Errorf("%s: %w", conv.Key, ErrVersionConflict)
	}
	next := *conv
	next.Version++
	next.UpdatedAt = s.clock()
	s.conns[conv.Key] = &next
	conv.Version = next.Version
	conv.UpdatedAt = next.UpdatedAt
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conns[key]
	if !ok {
		return nil
	}
	current.State = StateIdle
	current.CartID = nil
	current.Address = ""
	current.DeliveryFee = 0
	current.PaymentMethod = ""
	current.Version++
	current.UpdatedAt = s.clock()
	return nil
}

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a conversation store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetOrCreate implements Store. The insert relies on the unique
// (restaurant_id, customer_phone) index; a concurrent insert loses the race
// and falls through to the read.
func (s *PostgresStore) GetOrCreate(ctx context.Context, key Key) (*Conversation, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_states (restaurant_id, customer_phone, state, address, delivery_fee_cents, payment_method, version, updated_at)
		 VALUES ($1, $2, $3, '', 0, '', 1, now())
		 ON CONFLICT (restaurant_id, customer_phone) DO NOTHING`,
		key.RestaurantID, key.Phone, StateIdle)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return s.get(ctx, key)
}

func (s *PostgresStore) get(ctx context.Context, key Key) (*Conversation, error) {
	conv := &Conversation{Key: key}
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state, cart_id, address, delivery_fee_cents, payment_method, version, updated_at
		 FROM conversation_states
		 WHERE restaurant_id = $1 AND customer_phone = $2`,
		key.RestaurantID, key.Phone).
		Scan(&state, &conv.CartID, &conv.Address, &conv.DeliveryFee,
			&conv.PaymentMethod, &conv.Version, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	conv.State = State(state)
	return conv, nil
}

// Update implements Store using a conditional update on the version column.
func (s *PostgresStore) Update(ctx context.Context, conv *Conversation) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversation_states
		 SET state = $1, cart_id = $2, address = $3, delivery_fee_cents = $4,
		     payment_method = $5, version = version + 1, updated_at = now()
		 WHERE restaurant_id = $6 AND customer_phone = $7 AND version = $8`,
		conv.State, conv.CartID, conv.Address, conv.DeliveryFee,
		conv.PaymentMethod, conv.Key.RestaurantID, conv.Key.Phone, conv.Version)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", conv.Key, ErrVersionConflict)
	}
	conv.Version++
	return nil
}

// Reset implements Store.
func (s *PostgresStore) Reset(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversation_states
		 SET state = $1, cart_id = NULL, address = '', delivery_fee_cents = 0,
		     payment_method = '', version = version + 1, updated_at = now()
		 WHERE restaurant_id = $2 AND customer_phone = $3`,
		StateIdle, key.RestaurantID, key.Phone)
	if err != nil {
		return fmt.Errorf("resetting conversation: %w", err)
	}
	return nil
}
