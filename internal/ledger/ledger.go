package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAllowance occurs when the payer has not authorized the
	// engine to spend the requested amount from their wallet.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTransferFailed indicates a posting could not be applied. No leg of the
	// attempted transaction is recorded when this is returned.
	ErrTransferFailed = errors.New("ledger transfer failed")
)

const (
	// FundingStatusPendingSettlement indicates a bank transfer awaiting settlement confirmation.
	FundingStatusPendingSettlement = "pending_settlement"
	// FundingStatusCompleted represents a settled transfer.
	FundingStatusCompleted = "completed"
	// BankSuspenseAccountCode is the ledger account used to park bank transfers pre-settlement.
	BankSuspenseAccountCode = "suspense:bank"
	// EngineSpenderCode identifies the streaming engine as an allowance spender.
	// Wallet owners approve this spender before deposits can be locked.
	EngineSpenderCode = "paystream:engine"
)

// TransactionResult captures the outcome of a ledger posting.
type TransactionResult struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
}

// FundingResult captures the outcome of a bank funding transaction.
type FundingResult struct {
	TransactionID string
	WalletBalance int64
	Status        string
}

// Leg is a single payout within a multi-leg settlement. Zero-amount legs are
// skipped; negative amounts are rejected.
type Leg struct {
	AccountCode string
	Amount      int64
}

// SettlementResult reports a committed settlement and the escrow balance
// remaining after every leg was applied.
type SettlementResult struct {
	TransactionID string
	EscrowBalance int64
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
// Lock and Settle are the two instructions the streaming engine issues: Lock
// reserves a deposit into an escrow account consuming the payer's allowance,
// Settle pays escrow out across one or more legs. Both are atomic: either
// every entry of the posting is recorded or none is.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Approve(ctx context.Context, ownerCode, spenderCode string, amount int64) error
	Allowance(ctx context.Context, ownerCode, spenderCode string) (int64, error)
	Lock(ctx context.Context, payerCode, escrowCode, clientTxID string, amount int64) (TransactionResult, error)
	Settle(ctx context.Context, escrowCode, kind, clientTxID string, legs []Leg) (SettlementResult, error)
	BankIn(ctx context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error)
	BankOut(ctx context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error)
}
