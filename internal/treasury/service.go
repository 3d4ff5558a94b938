package treasury

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hlpay/paystream/internal/ledger"
	"github.com/hlpay/paystream/internal/wallet"
)

// Service coordinates bank funding and payout operations using the ledger and
// banking connector. Employers top their wallets up here before approving
// payroll deposits.
type Service struct {
	ledger    ledger.Ledger
	wallets   *wallet.Service
	connector Connector
}

// NewService prepares a treasury service ensuring the bank suspense account exists.
func NewService(ctx context.Context, ledgerBackend ledger.Ledger, wallets *wallet.Service, connector Connector) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if connector == nil {
		connector = StaticConnector{}
	}
	if err := ledgerBackend.EnsureAccount(ctx, ledger.BankSuspenseAccountCode); err != nil {
		return nil, err
	}
	return &Service{ledger: ledgerBackend, wallets: wallets, connector: connector}, nil
}

// DepositInput captures the required data for a bank-funded top-up.
type DepositInput struct {
	WalletID    string
	Amount      int64
	ClientTxID  string
	BankAccount string
	BankCode    string
}

// PayoutInput captures the required data for a payout to a bank account.
type PayoutInput struct {
	WalletID    string
	Amount      int64
	ClientTxID  string
	BankAccount string
}

// FundingResult represents the domain outcome of a treasury operation.
type FundingResult struct {
	TransactionID string
	Status        string
	WalletBalance int64
	BankReference string
	CompletedAt   time.Time
}

// Deposit authorizes and records a bank-funded top-up into the specified wallet.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (FundingResult, error) {
	if err := validateBankAccount(input.BankAccount); err != nil {
		return FundingResult{}, err
	}
	if input.Amount <= 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.connector.AuthorizeDeposit(ctx, DepositAuthorization{
		BankAccount: input.BankAccount,
		BankCode:    input.BankCode,
		Amount:      input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	ledgerResult, err := s.ledger.BankIn(ctx, w.AccountCode, input.ClientTxID, input.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) || errors.Is(err, ledger.ErrInsufficientFunds) {
			return FundingResult{
				TransactionID: ledgerResult.TransactionID,
				Status:        ledgerResult.Status,
				WalletBalance: ledgerResult.WalletBalance,
				BankReference: decision.Reference,
				CompletedAt:   time.Now().UTC(),
			}, err
		}
		return FundingResult{}, err
	}

	return FundingResult{
		TransactionID: ledgerResult.TransactionID,
		Status:        ledgerResult.Status,
		WalletBalance: ledgerResult.WalletBalance,
		BankReference: decision.Reference,
		CompletedAt:   time.Now().UTC(),
	}, nil
}

// Payout authorizes and records a payout to the provided bank account.
func (s *Service) Payout(ctx context.Context, input PayoutInput) (FundingResult, error) {
	if err := validateBankAccount(input.BankAccount); err != nil {
		return FundingResult{}, err
	}
	if input.Amount <= 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.connector.AuthorizePayout(ctx, PayoutAuthorization{
		BankAccount: input.BankAccount,
		Amount:      input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	ledgerResult, err := s.ledger.BankOut(ctx, w.AccountCode, input.ClientTxID, input.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) || errors.Is(err, ledger.ErrInsufficientFunds) {
			return FundingResult{
				TransactionID: ledgerResult.TransactionID,
				Status:        ledgerResult.Status,
				WalletBalance: ledgerResult.WalletBalance,
				BankReference: decision.Reference,
				CompletedAt:   time.Now().UTC(),
			}, err
		}
		return FundingResult{}, err
	}

	return FundingResult{
		TransactionID: ledgerResult.TransactionID,
		Status:        ledgerResult.Status,
		WalletBalance: ledgerResult.WalletBalance,
		BankReference: decision.Reference,
		CompletedAt:   time.Now().UTC(),
	}, nil
}

func validateBankAccount(account string) error {
	digits := strings.ReplaceAll(account, " ", "")
	if len(digits) < 8 || len(digits) > 34 {
		return fmt.Errorf("bank account must be between 8 and 34 characters")
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return fmt.Errorf("bank account must be alphanumeric")
		}
	}
	return nil
}
