package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the querying surface shared by *pgxpool.Pool and pgx.Tx. A ledger
// built on a pool runs each posting in its own transaction; one built on an
// enclosing transaction runs the posting as a nested savepoint, so the
// posting and whatever else the caller writes commit together.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        WHERE a.code = $1`
	var balance int64
	if err := l.db.QueryRow(ctx, query, code).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %s not found", code)
		}
		return 0, err
	}
	return balance, nil
}

// Approve records the amount a spender may move out of the owner's account.
// Approving replaces any previous allowance, mirroring ERC20 approve semantics.
func (l *PostgresLedger) Approve(ctx context.Context, ownerCode, spenderCode string, amount int64) error {
	if amount < 0 {
		return ErrTransferFailed
	}
	_, err := l.db.Exec(ctx, `INSERT INTO allowances (owner_code, spender_code, amount)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_code, spender_code) DO UPDATE SET amount = EXCLUDED.amount`,
		ownerCode, spenderCode, amount)
	return err
}

// Allowance returns the remaining approved amount for the spender.
func (l *PostgresLedger) Allowance(ctx context.Context, ownerCode, spenderCode string) (int64, error) {
	var amount int64
	err := l.db.QueryRow(ctx, `SELECT amount FROM allowances WHERE owner_code = $1 AND spender_code = $2`,
		ownerCode, spenderCode).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// Lock moves a deposit from the payer wallet into an escrow account,
// consuming the payer's allowance for the engine spender.
func (l *PostgresLedger) Lock(ctx context.Context, payerCode, escrowCode, clientTxID string, amount int64) (TransactionResult, error) {
	if amount <= 0 {
		return TransactionResult{}, ErrInsufficientFunds
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return TransactionResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	payerAccountID, err := accountIDForCode(ctx, tx, payerCode)
	if err != nil {
		return TransactionResult{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), escrowCode); err != nil {
		return TransactionResult{}, err
	}
	escrowAccountID, err := accountIDForCode(ctx, tx, escrowCode)
	if err != nil {
		return TransactionResult{}, err
	}

	const existingTxQuery = `SELECT id FROM transactions WHERE client_tx_id = $1 AND kind = 'stream_lock'`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingTxQuery, clientTxID).Scan(&existingTxID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return TransactionResult{}, err
		}
	} else {
		payerBal, balErr := balanceForAccount(ctx, tx, payerAccountID)
		if balErr != nil {
			return TransactionResult{}, balErr
		}
		escrowBal, balErr := balanceForAccount(ctx, tx, escrowAccountID)
		if balErr != nil {
			return TransactionResult{}, balErr
		}
		return TransactionResult{TransactionID: existingTxID.String(), FromBalance: payerBal, ToBalance: escrowBal}, ErrDuplicateTransaction
	}

	payerBalance, err := balanceForAccount(ctx, tx, payerAccountID)
	if err != nil {
		return TransactionResult{}, err
	}
	if payerBalance < amount {
		return TransactionResult{}, ErrInsufficientFunds
	}

	var allowance int64
	err = tx.QueryRow(ctx, `SELECT amount FROM allowances
        WHERE owner_code = $1 AND spender_code = $2 FOR UPDATE`, payerCode, EngineSpenderCode).Scan(&allowance)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && allowance < amount) {
		return TransactionResult{}, ErrInsufficientAllowance
	}
	if err != nil {
		return TransactionResult{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE allowances SET amount = amount - $1
        WHERE owner_code = $2 AND spender_code = $3`, amount, payerCode, EngineSpenderCode); err != nil {
		return TransactionResult{}, err
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`,
		txID, clientTxID, "stream_lock", FundingStatusCompleted); err != nil {
		return TransactionResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, payerAccountID, -amount); err != nil {
		return TransactionResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, escrowAccountID, amount); err != nil {
		return TransactionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransactionResult{}, err
	}

	payerBal, err := l.Balance(ctx, payerCode)
	if err != nil {
		return TransactionResult{}, err
	}
	escrowBal, err := l.Balance(ctx, escrowCode)
	if err != nil {
		return TransactionResult{}, err
	}

	return TransactionResult{TransactionID: txID.String(), FromBalance: payerBal, ToBalance: escrowBal}, nil
}

// Settle pays an escrow account out across the provided legs inside a single
// database transaction: the escrow debit plus every leg credit commit
// together or not at all.
func (l *PostgresLedger) Settle(ctx context.Context, escrowCode, kind, clientTxID string, legs []Leg) (SettlementResult, error) {
	var total int64
	for _, leg := range legs {
		if leg.Amount < 0 {
			return SettlementResult{}, ErrTransferFailed
		}
		total += leg.Amount
	}
	if total <= 0 {
		return SettlementResult{}, ErrTransferFailed
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return SettlementResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	escrowAccountID, err := accountIDForCode(ctx, tx, escrowCode)
	if err != nil {
		return SettlementResult{}, err
	}

	const existingTxQuery = `SELECT id FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingTxQuery, clientTxID, kind).Scan(&existingTxID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return SettlementResult{}, err
		}
	} else {
		escrowBal, balErr := balanceForAccount(ctx, tx, escrowAccountID)
		if balErr != nil {
			return SettlementResult{}, balErr
		}
		return SettlementResult{TransactionID: existingTxID.String(), EscrowBalance: escrowBal}, ErrDuplicateTransaction
	}

	escrowBalance, err := balanceForAccount(ctx, tx, escrowAccountID)
	if err != nil {
		return SettlementResult{}, err
	}
	if escrowBalance < total {
		return SettlementResult{}, ErrInsufficientFunds
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`,
		txID, clientTxID, kind, FundingStatusCompleted); err != nil {
		return SettlementResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, escrowAccountID, -total); err != nil {
		return SettlementResult{}, err
	}
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		legAccountID, err := accountIDForCode(ctx, tx, leg.AccountCode)
		if err != nil {
			return SettlementResult{}, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
			uuid.New(), txID, legAccountID, leg.Amount); err != nil {
			return SettlementResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SettlementResult{}, err
	}

	escrowBal, err := l.Balance(ctx, escrowCode)
	if err != nil {
		return SettlementResult{}, err
	}

	return SettlementResult{TransactionID: txID.String(), EscrowBalance: escrowBal}, nil
}

// BankIn records a bank funding transfer and holds it in suspense until settlement.
func (l *PostgresLedger) BankIn(ctx context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error) {
	if amount <= 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return FundingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	walletAccountID, err := accountIDForCode(ctx, tx, walletCode)
	if err != nil {
		return FundingResult{}, err
	}
	suspenseAccountID, err := accountIDForCode(ctx, tx, BankSuspenseAccountCode)
	if err != nil {
		return FundingResult{}, err
	}

	const existingQuery = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = 'bank_in'`
	var existingTxID uuid.UUID
	var existingStatus string
	if err := tx.QueryRow(ctx, existingQuery, clientTxID).Scan(&existingTxID, &existingStatus); err == nil {
		walletBal, balErr := balanceForAccount(ctx, tx, walletAccountID)
		if balErr != nil {
			return FundingResult{}, balErr
		}
		return FundingResult{TransactionID: existingTxID.String(), WalletBalance: walletBal, Status: existingStatus}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return FundingResult{}, err
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`,
		txID, clientTxID, "bank_in", FundingStatusPendingSettlement); err != nil {
		return FundingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, walletAccountID, amount); err != nil {
		return FundingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, suspenseAccountID, -amount); err != nil {
		return FundingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundingResult{}, err
	}

	walletBalance, err := l.Balance(ctx, walletCode)
	if err != nil {
		return FundingResult{}, err
	}

	return FundingResult{TransactionID: txID.String(), WalletBalance: walletBalance, Status: FundingStatusPendingSettlement}, nil
}

// BankOut records a bank payout request by debiting the wallet and crediting suspense until settlement.
func (l *PostgresLedger) BankOut(ctx context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error) {
	if amount <= 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return FundingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	walletAccountID, err := accountIDForCode(ctx, tx, walletCode)
	if err != nil {
		return FundingResult{}, err
	}
	suspenseAccountID, err := accountIDForCode(ctx, tx, BankSuspenseAccountCode)
	if err != nil {
		return FundingResult{}, err
	}

	const existingQuery = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = 'bank_out'`
	var existingTxID uuid.UUID
	var existingStatus string
	if err := tx.QueryRow(ctx, existingQuery, clientTxID).Scan(&existingTxID, &existingStatus); err == nil {
		walletBal, balErr := balanceForAccount(ctx, tx, walletAccountID)
		if balErr != nil {
			return FundingResult{}, balErr
		}
		return FundingResult{TransactionID: existingTxID.String(), WalletBalance: walletBal, Status: existingStatus}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return FundingResult{}, err
	}

	walletBalance, err := balanceForAccount(ctx, tx, walletAccountID)
	if err != nil {
		return FundingResult{}, err
	}
	if walletBalance < amount {
		return FundingResult{}, ErrInsufficientFunds
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`,
		txID, clientTxID, "bank_out", FundingStatusPendingSettlement); err != nil {
		return FundingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, walletAccountID, -amount); err != nil {
		return FundingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`,
		uuid.New(), txID, suspenseAccountID, amount); err != nil {
		return FundingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundingResult{}, err
	}

	updatedBalance, err := l.Balance(ctx, walletCode)
	if err != nil {
		return FundingResult{}, err
	}

	return FundingResult{TransactionID: txID.String(), WalletBalance: updatedBalance, Status: FundingStatusPendingSettlement}, nil
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("account %s not found", code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}
