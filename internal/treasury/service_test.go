package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hlpay/paystream/internal/ledger"
	"github.com/hlpay/paystream/internal/wallet"
)

func TestServiceDeposit(t *testing.T) {
	ctx := context.Background()
	ledgerBackend := ledger.NewInMemory()
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), ledgerBackend)

	walletRec, err := walletSvc.Create(ctx, wallet.CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	service, err := NewService(ctx, ledgerBackend, walletSvc, StaticConnector{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	clientTxID := "dup"
	res, err := service.Deposit(ctx, DepositInput{
		WalletID:    walletRec.ID,
		Amount:      50_000,
		BankAccount: "FR7630006000011234567890189",
		BankCode:    "30006",
		ClientTxID:  clientTxID,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Status != ledger.FundingStatusPendingSettlement {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if res.WalletBalance != 50_000 {
		t.Fatalf("expected balance 50000, got %d", res.WalletBalance)
	}
	if res.BankReference == "" {
		t.Fatal("expected bank reference")
	}

	if _, err := service.Deposit(ctx, DepositInput{
		WalletID:    walletRec.ID,
		Amount:      50_000,
		BankAccount: "FR7630006000011234567890189",
		ClientTxID:  clientTxID,
	}); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestServiceDepositRejectsBadAccount(t *testing.T) {
	ctx := context.Background()
	ledgerBackend := ledger.NewInMemory()
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), ledgerBackend)

	service, err := NewService(ctx, ledgerBackend, walletSvc, StaticConnector{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := service.Deposit(ctx, DepositInput{
		WalletID:    uuid.NewString(),
		Amount:      1_000,
		BankAccount: "x!",
	}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := service.Deposit(ctx, DepositInput{
		WalletID:    uuid.NewString(),
		Amount:      0,
		BankAccount: "FR7630006000011234567890189",
	}); err == nil {
		t.Fatal("expected amount error")
	}
}

func TestServicePayout(t *testing.T) {
	ctx := context.Background()
	ledgerBackend := ledger.NewInMemory()
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), ledgerBackend)

	walletRec, err := walletSvc.Create(ctx, wallet.CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(ledgerBackend, walletRec.AccountCode, 5_000)

	service, err := NewService(ctx, ledgerBackend, walletSvc, StaticConnector{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	res, err := service.Payout(ctx, PayoutInput{
		WalletID:    walletRec.ID,
		Amount:      2_000,
		BankAccount: "FR7630006000011234567890189",
	})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if res.WalletBalance != 3_000 {
		t.Fatalf("expected balance 3000, got %d", res.WalletBalance)
	}

	_, err = service.Payout(ctx, PayoutInput{
		WalletID:    walletRec.ID,
		Amount:      10_000,
		BankAccount: "FR7630006000011234567890189",
		ClientTxID:  "excess",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}
