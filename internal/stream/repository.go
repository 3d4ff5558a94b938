package stream

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hlpay/paystream/internal/ledger"
)

// Repository persists stream records. Identifiers are never reused: NextID
// hands out each value once, even if the creation that requested it fails.
type Repository interface {
	NextID(ctx context.Context) (uint64, error)
	Insert(ctx context.Context, s Stream) error
	Get(ctx context.Context, id uint64) (Stream, error)
	Update(ctx context.Context, s Stream) error
	ListBySenderWallet(ctx context.Context, walletID string) ([]Stream, error)
	ListByRecipientWallet(ctx context.Context, walletID string) ([]Stream, error)
}

// PostgresRepository stores streams in PostgreSQL. It accepts either a pool
// or an enclosing transaction, so a settlement can update the stream row in
// the same transaction that posts its ledger entries.
type PostgresRepository struct {
	db ledger.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db ledger.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NextID draws the next identifier from the stream_ids sequence, which starts
// at zero to match the numbering the dashboards expect.
func (r *PostgresRepository) NextID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := r.db.QueryRow(ctx, `SELECT nextval('stream_ids')`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

const streamColumns = `id, sender_wallet_id, recipient_wallet_id, escrow_code,
        rate_per_second, deposit, withdrawn, start_time, stop_time,
        paused_at, paused_seconds, status, created_at, updated_at`

// Insert stores a new stream record.
func (r *PostgresRepository) Insert(ctx context.Context, s Stream) error {
	_, err := r.db.Exec(ctx, `INSERT INTO streams (`+streamColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.SenderWalletID, s.RecipientWalletID, s.EscrowCode,
		s.RatePerSecond, s.Deposit, s.Withdrawn, s.StartTime, s.StopTime,
		s.PausedAt, s.PausedSeconds, s.Status, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateStream
	}
	return err
}

// Get fetches a stream by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id uint64) (Stream, error) {
	row := r.db.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = $1`, id)
	s, err := scanStream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stream{}, ErrNotFound
	}
	return s, err
}

// Update persists the mutable fields of an existing stream.
func (r *PostgresRepository) Update(ctx context.Context, s Stream) error {
	cmd, err := r.db.Exec(ctx, `UPDATE streams
        SET withdrawn = $1, paused_at = $2, paused_seconds = $3, status = $4, updated_at = $5
        WHERE id = $6`,
		s.Withdrawn, s.PausedAt, s.PausedSeconds, s.Status, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBySenderWallet returns every stream funded by the wallet, newest first.
func (r *PostgresRepository) ListBySenderWallet(ctx context.Context, walletID string) ([]Stream, error) {
	rows, err := r.db.Query(ctx, `SELECT `+streamColumns+` FROM streams
        WHERE sender_wallet_id = $1 ORDER BY id DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStreams(rows)
}

// ListByRecipientWallet returns every stream paying the wallet, newest first.
func (r *PostgresRepository) ListByRecipientWallet(ctx context.Context, walletID string) ([]Stream, error) {
	rows, err := r.db.Query(ctx, `SELECT `+streamColumns+` FROM streams
        WHERE recipient_wallet_id = $1 ORDER BY id DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStreams(rows)
}

func collectStreams(rows pgx.Rows) ([]Stream, error) {
	var streams []Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, rows.Err()
}

func scanStream(row pgx.Row) (Stream, error) {
	var (
		s         Stream
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&s.ID, &s.SenderWalletID, &s.RecipientWalletID, &s.EscrowCode,
		&s.RatePerSecond, &s.Deposit, &s.Withdrawn, &s.StartTime, &s.StopTime,
		&s.PausedAt, &s.PausedSeconds, &s.Status, &createdAt, &updatedAt); err != nil {
		return Stream{}, err
	}
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}
