package stream

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hlpay/paystream/internal/ledger"
)

// TxRunner executes a ledger posting and the stream row mutation it pays for
// in one atomic scope. If the callback fails, nothing it wrote through the
// handles it was given becomes visible.
type TxRunner interface {
	RunAtomic(ctx context.Context, fn func(ledger.Ledger, Repository) error) error
}

// PostgresTxRunner opens a single database transaction per call and hands the
// callback transaction-scoped ledger and repository handles. A connection
// loss between the ledger posting and the stream commit rolls both back, so
// the deposit can never be stranded in escrow without a stream record and a
// settlement can never land without advancing Withdrawn.
type PostgresTxRunner struct {
	pool *pgxpool.Pool
}

// NewPostgresTxRunner builds the transactional runner over the shared pool.
func NewPostgresTxRunner(pool *pgxpool.Pool) *PostgresTxRunner {
	return &PostgresTxRunner{pool: pool}
}

// RunAtomic implements TxRunner.
func (r *PostgresTxRunner) RunAtomic(ctx context.Context, fn func(ledger.Ledger, Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ledger.NewPostgresLedger(tx), NewPostgresRepository(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// passthroughRunner backs the in-memory wiring. Both backends mutate
// process-local state there, so a crash between the two writes loses ledger
// and stream state together and no rollback machinery is needed.
type passthroughRunner struct {
	ledger ledger.Ledger
	repo   Repository
}

func (r passthroughRunner) RunAtomic(ctx context.Context, fn func(ledger.Ledger, Repository) error) error {
	return fn(r.ledger, r.repo)
}
