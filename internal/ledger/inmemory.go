package ledger

import (
	"context"
	"sync"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]int64
	allowances   map[string]map[string]int64
	transactions map[string]TransactionResult
	settlements  map[string]SettlementResult
	fundingTx    map[string]FundingResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and for running the service without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		allowances:   make(map[string]map[string]int64),
		transactions: make(map[string]TransactionResult),
		settlements:  make(map[string]SettlementResult),
		fundingTx:    make(map[string]FundingResult),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, ErrInsufficientFunds
	}
	return balance, nil
}

func (l *inMemoryLedger) Approve(_ context.Context, ownerCode, spenderCode string, amount int64) error {
	if amount < 0 {
		return ErrTransferFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.allowances[ownerCode]; !ok {
		l.allowances[ownerCode] = make(map[string]int64)
	}
	l.allowances[ownerCode][spenderCode] = amount
	return nil
}

func (l *inMemoryLedger) Allowance(_ context.Context, ownerCode, spenderCode string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[ownerCode][spenderCode], nil
}

// Lock moves a deposit from the payer wallet into an escrow account. The
// payer must have both the funds and an allowance for EngineSpenderCode
// covering the amount; the allowance is consumed on success.
func (l *inMemoryLedger) Lock(_ context.Context, payerCode, escrowCode, clientTxID string, amount int64) (TransactionResult, error) {
	if amount <= 0 {
		return TransactionResult{}, ErrInsufficientFunds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "stream_lock:" + clientTxID
	if res, exists := l.transactions[key]; exists {
		return res, ErrDuplicateTransaction
	}

	payerBalance, ok := l.balances[payerCode]
	if !ok || payerBalance < amount {
		return TransactionResult{}, ErrInsufficientFunds
	}
	if l.allowances[payerCode][EngineSpenderCode] < amount {
		return TransactionResult{}, ErrInsufficientAllowance
	}

	if _, exists := l.balances[escrowCode]; !exists {
		l.balances[escrowCode] = 0
	}

	l.allowances[payerCode][EngineSpenderCode] -= amount
	l.balances[payerCode] = payerBalance - amount
	l.balances[escrowCode] += amount

	res := TransactionResult{
		TransactionID: key,
		FromBalance:   l.balances[payerCode],
		ToBalance:     l.balances[escrowCode],
	}
	l.transactions[key] = res
	return res, nil
}

// Settle pays the escrow account out across the provided legs under a single
// lock acquisition, so concurrent settlements can never partially interleave.
func (l *inMemoryLedger) Settle(_ context.Context, escrowCode, kind, clientTxID string, legs []Leg) (SettlementResult, error) {
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

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kind + ":" + clientTxID
	if res, exists := l.settlements[key]; exists {
		return res, ErrDuplicateTransaction
	}

	escrowBalance, ok := l.balances[escrowCode]
	if !ok || escrowBalance < total {
		return SettlementResult{}, ErrInsufficientFunds
	}

	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		if _, exists := l.balances[leg.AccountCode]; !exists {
			l.balances[leg.AccountCode] = 0
		}
		l.balances[leg.AccountCode] += leg.Amount
	}
	l.balances[escrowCode] = escrowBalance - total

	res := SettlementResult{TransactionID: key, EscrowBalance: l.balances[escrowCode]}
	l.settlements[key] = res
	return res, nil
}

func (l *inMemoryLedger) BankIn(_ context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error) {
	if amount <= 0 {
		return FundingResult{}, ErrInsufficientFunds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "bank_in:" + clientTxID
	if res, exists := l.fundingTx[key]; exists {
		return res, ErrDuplicateTransaction
	}

	walletBalance, ok := l.balances[walletCode]
	if !ok {
		return FundingResult{}, ErrInsufficientFunds
	}

	walletBalance += amount
	l.balances[walletCode] = walletBalance
	l.balances[BankSuspenseAccountCode] -= amount

	res := FundingResult{
		TransactionID: key,
		WalletBalance: walletBalance,
		Status:        FundingStatusPendingSettlement,
	}
	l.fundingTx[key] = res
	return res, nil
}

func (l *inMemoryLedger) BankOut(_ context.Context, walletCode, clientTxID string, amount int64) (FundingResult, error) {
	if amount <= 0 {
		return FundingResult{}, ErrInsufficientFunds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "bank_out:" + clientTxID
	if res, exists := l.fundingTx[key]; exists {
		return res, ErrDuplicateTransaction
	}

	walletBalance, ok := l.balances[walletCode]
	if !ok {
		return FundingResult{}, ErrInsufficientFunds
	}
	if walletBalance < amount {
		return FundingResult{}, ErrInsufficientFunds
	}

	walletBalance -= amount
	l.balances[walletCode] = walletBalance
	l.balances[BankSuspenseAccountCode] += amount

	res := FundingResult{
		TransactionID: key,
		WalletBalance: walletBalance,
		Status:        FundingStatusPendingSettlement,
	}
	l.fundingTx[key] = res
	return res, nil
}
