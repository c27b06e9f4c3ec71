package debounce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists debounce entries in PostgreSQL. The partial
// unique index on (restaurant_id, customer_phone) WHERE status='pending'
// guarantees at most one open entry per key; the conditional UPDATE in
// MarkProcessing provides the compare-and-swap.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a debounce store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// AppendOrCreate implements Store. The append path updates the pending row
// in place; if no pending row exists the insert creates one. A concurrent
// insert for the same key loses on the partial unique index and retries
// the append.
func (s *PostgresStore) AppendOrCreate(ctx context.Context, key Key, msg Message, scheduledAt time.Time) (*Entry, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}

	for range 2 {
		var id uuid.UUID
		err = s.pool.QueryRow(ctx,
			`UPDATE debounce_queue
			 SET messages = messages || $1::jsonb,
			     last_message_at = $2,
			     scheduled_process_at = $3,
			     updated_at = now()
			 WHERE restaurant_id = $4 AND customer_phone = $5 AND status = $6
			 RETURNING id`,
			msgJSON, msg.Timestamp, scheduledAt, key.RestaurantID, key.Phone, StatusPending).
			Scan(&id)
		if err == nil {
			return s.Get(ctx, id)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("appending message: %w", err)
		}

		id = uuid.New()
		_, err = s.pool.Exec(ctx,
			`INSERT INTO debounce_queue (id, restaurant_id, customer_phone, status, messages,
			                             first_message_at, last_message_at, scheduled_process_at)
			 VALUES ($1, $2, $3, $4, jsonb_build_array($5::jsonb), $6, $6, $7)
			 ON CONFLICT DO NOTHING`,
			id, key.RestaurantID, key.Phone, StatusPending, msgJSON, msg.Timestamp, scheduledAt)
		if err != nil {
			return nil, fmt.Errorf("creating entry: %w", err)
		}
		if e, err := s.Get(ctx, id); err == nil {
			return e, nil
		}
		// Lost the insert race; loop back to append to the winner's row.
	}
	return nil, fmt.Errorf("appending message for %s: retries exhausted", key)
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e := &Entry{ID: id}
	var (
		status   string
		messages []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT restaurant_id, customer_phone, status, messages,
		        first_message_at, last_message_at, scheduled_process_at, result, error
		 FROM debounce_queue WHERE id = $1`, id).
		Scan(&e.Key.RestaurantID, &e.Key.Phone, &status, &messages,
			&e.FirstMessageAt, &e.LastMessageAt, &e.ScheduledProcessAt, &e.Result, &e.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry: %w", err)
	}
	e.Status = Status(status)
	if err := json.Unmarshal(messages, &e.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return e, nil
}

// MarkProcessing implements Store. The RETURNING clause hands back the row
// the swap sealed, including messages appended after the caller last read it.
func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*Entry, bool, error) {
	e := &Entry{ID: id}
	var (
		status   string
		messages []byte
	)
	err := s.pool.QueryRow(ctx,
		`UPDATE debounce_queue SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3
		 RETURNING restaurant_id, customer_phone, status, messages,
		           first_message_at, last_message_at, scheduled_process_at, result, error`,
		StatusProcessing, id, StatusPending).
		Scan(&e.Key.RestaurantID, &e.Key.Phone, &status, &messages,
			&e.FirstMessageAt, &e.LastMessageAt, &e.ScheduledProcessAt, &e.Result, &e.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claiming entry: %w", err)
	}
	e.Status = Status(status)
	if err := json.Unmarshal(messages, &e.Messages); err != nil {
		return nil, false, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return e, true, nil
}

// Complete implements Store.
func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, result string) error {
	return s.finish(ctx, id, StatusCompleted, result, "")
}

// Fail implements Store.
func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(ctx, id, StatusFailed, "", errMsg)
}

func (s *PostgresStore) finish(ctx context.Context, id uuid.UUID, status Status, result, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE debounce_queue
		 SET status = $1, result = $2, error = $3, updated_at = now()
		 WHERE id = $4`,
		status, result, errMsg, id)
	if err != nil {
		return fmt.Errorf("finishing entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
