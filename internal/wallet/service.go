package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hlpay/paystream/internal/ledger"
)

const (
	statusActive = "active"

	defaultCurrency = "HLUSD"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions a wallet and associated ledger account.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	walletID := uuid.New().String()
	accountCode := fmt.Sprintf("wallet:%s", walletID)

	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}

	if err := s.ledger.EnsureAccount(ctx, accountCode); err != nil {
		return Wallet{}, err
	}

	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	wallet := Wallet{
		ID:          walletID,
		OwnerID:     input.OwnerID,
		AccountCode: accountCode,
		Currency:    currency,
		Status:      statusActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the wallet provisioned for a user.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, wallet.AccountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: wallet.ID, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// Approve authorizes the streaming engine to draw up to amount from the
// wallet. Stream deposits are locked against this allowance, mirroring the
// approve-then-create flow of the payroll dashboard.
func (s *Service) Approve(ctx context.Context, id string, amount int64) (Allowance, error) {
	if amount < 0 {
		return Allowance{}, fmt.Errorf("approval amount must not be negative")
	}
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Allowance{}, err
	}
	if err := s.ledger.Approve(ctx, wallet.AccountCode, ledger.EngineSpenderCode, amount); err != nil {
		return Allowance{}, err
	}
	return Allowance{WalletID: wallet.ID, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// EngineAllowance reports the remaining amount the streaming engine may lock.
func (s *Service) EngineAllowance(ctx context.Context, id string) (Allowance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Allowance{}, err
	}
	amount, err := s.ledger.Allowance(ctx, wallet.AccountCode, ledger.EngineSpenderCode)
	if err != nil {
		return Allowance{}, err
	}
	return Allowance{WalletID: wallet.ID, Amount: amount, AsOf: time.Now().UTC()}, nil
}
