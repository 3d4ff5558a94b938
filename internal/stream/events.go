package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event kinds appended to the audit log.
const (
	EventCreated   = "stream_created"
	EventPaused    = "stream_paused"
	EventResumed   = "stream_resumed"
	EventWithdrawn = "stream_withdrawn"
	EventCompleted = "stream_completed"
	EventCancelled = "stream_cancelled"
)

// Event is one append-only audit record. Creation events carry the stream
// terms; settlement events carry the gross/net/tax split and, for
// cancellations, the refund returned to the sender.
type Event struct {
	StreamID          uint64
	Kind              string
	At                int64
	SenderWalletID    string
	RecipientWalletID string
	RatePerSecond     int64
	Deposit           int64
	Gross             int64
	Net               int64
	Tax               int64
	Refund            int64
}

// Recorder appends events to the audit log. Records are never updated or
// deleted.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	ListByStream(ctx context.Context, streamID uint64) ([]Event, error)
}

type memoryRecorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRecorder builds an in-memory append-only event log.
func NewMemoryRecorder() Recorder {
	return &memoryRecorder{}
}

func (r *memoryRecorder) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memoryRecorder) ListByStream(_ context.Context, streamID uint64) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.StreamID == streamID {
			out = append(out, e)
		}
	}
	return out, nil
}

// PostgresRecorder persists the event log in PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder builds a Postgres-backed event log.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record appends one event row.
func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	_, err := r.db.Exec(ctx, `INSERT INTO stream_events
        (id, stream_id, kind, occurred_at, sender_wallet_id, recipient_wallet_id,
         rate_per_second, deposit, gross, net, tax, refund)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New(), e.StreamID, e.Kind, e.At, e.SenderWalletID, e.RecipientWalletID,
		e.RatePerSecond, e.Deposit, e.Gross, e.Net, e.Tax, e.Refund)
	return err
}

// ListByStream returns the events of one stream in append order.
func (r *PostgresRecorder) ListByStream(ctx context.Context, streamID uint64) ([]Event, error) {
	rows, err := r.db.Query(ctx, `SELECT stream_id, kind, occurred_at, sender_wallet_id,
        recipient_wallet_id, rate_per_second, deposit, gross, net, tax, refund
        FROM stream_events WHERE stream_id = $1 ORDER BY occurred_at, id`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.StreamID, &e.Kind, &e.At, &e.SenderWalletID,
			&e.RecipientWalletID, &e.RatePerSecond, &e.Deposit, &e.Gross, &e.Net, &e.Tax, &e.Refund); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
