package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryLedger_LockMovesDepositToEscrow(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "wallet:hr"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(l, "wallet:hr", 10_000)
	if err := l.Approve(ctx, "wallet:hr", EngineSpenderCode, 10_000); err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err := l.Lock(ctx, "wallet:hr", "stream:0", "client-1", 1_000)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if res.FromBalance != 9_000 {
		t.Fatalf("expected payer balance 9000, got %d", res.FromBalance)
	}
	if res.ToBalance != 1_000 {
		t.Fatalf("expected escrow balance 1000, got %d", res.ToBalance)
	}

	remaining, err := l.Allowance(ctx, "wallet:hr", EngineSpenderCode)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining != 9_000 {
		t.Fatalf("expected allowance consumed to 9000, got %d", remaining)
	}
}

func TestInMemoryLedger_LockWithoutAllowance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:hr")
	SeedBalance(l, "wallet:hr", 5_000)

	if _, err := l.Lock(ctx, "wallet:hr", "stream:0", "client-1", 1_000); err != ErrInsufficientAllowance {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
}

func TestInMemoryLedger_LockInsufficientFunds(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:hr")
	SeedBalance(l, "wallet:hr", 500)
	l.Approve(ctx, "wallet:hr", EngineSpenderCode, 1_000)

	if _, err := l.Lock(ctx, "wallet:hr", "stream:0", "client-1", 1_000); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestInMemoryLedger_SettleIsAllOrNothing(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "stream:0")
	l.EnsureAccount(ctx, "wallet:employee")
	l.EnsureAccount(ctx, "vault:tax")
	SeedBalance(l, "stream:0", 100)

	// Legs exceeding escrow must not move any funds.
	if _, err := l.Settle(ctx, "stream:0", "stream_withdraw", "tx-1", []Leg{
		{AccountCode: "wallet:employee", Amount: 90},
		{AccountCode: "vault:tax", Amount: 20},
	}); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "wallet:employee"); bal != 0 {
		t.Fatalf("expected no partial payout, got %d", bal)
	}

	res, err := l.Settle(ctx, "stream:0", "stream_withdraw", "tx-2", []Leg{
		{AccountCode: "wallet:employee", Amount: 90},
		{AccountCode: "vault:tax", Amount: 10},
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if res.EscrowBalance != 0 {
		t.Fatalf("expected drained escrow, got %d", res.EscrowBalance)
	}

	employee, _ := l.Balance(ctx, "wallet:employee")
	tax, _ := l.Balance(ctx, "vault:tax")
	if employee != 90 || tax != 10 {
		t.Fatalf("unexpected split: employee=%d tax=%d", employee, tax)
	}
}

func TestInMemoryLedger_SettleDuplicate(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "stream:0")
	l.EnsureAccount(ctx, "wallet:employee")
	SeedBalance(l, "stream:0", 1_000)

	legs := []Leg{{AccountCode: "wallet:employee", Amount: 100}}
	if _, err := l.Settle(ctx, "stream:0", "stream_withdraw", "dup", legs); err != nil {
		t.Fatalf("initial settle failed: %v", err)
	}
	if _, err := l.Settle(ctx, "stream:0", "stream_withdraw", "dup", legs); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentSettlementsConserveFunds(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "stream:0")
	l.EnsureAccount(ctx, "wallet:employee")
	l.EnsureAccount(ctx, "vault:tax")
	SeedBalance(l, "stream:0", 100_000)
	ledgerImpl := l.(*inMemoryLedger)

	const workers = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txID := fmt.Sprintf("tx-%d", i)
			legs := []Leg{
				{AccountCode: "wallet:employee", Amount: 450},
				{AccountCode: "vault:tax", Amount: 50},
			}
			if _, err := l.Settle(ctx, "stream:0", "stream_withdraw", txID, legs); err != nil {
				t.Errorf("settle %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := ledgerImpl.balances["stream:0"] + ledgerImpl.balances["wallet:employee"] + ledgerImpl.balances["vault:tax"]
	if total != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
}

func TestInMemoryLedger_BankIn(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:hr")
	l.EnsureAccount(ctx, BankSuspenseAccountCode)

	res, err := l.BankIn(ctx, "wallet:hr", "client-bank-in", 2_000)
	if err != nil {
		t.Fatalf("bank in failed: %v", err)
	}
	if res.Status != FundingStatusPendingSettlement {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if res.WalletBalance != 2_000 {
		t.Fatalf("expected wallet balance 2000, got %d", res.WalletBalance)
	}

	if _, err := l.BankIn(ctx, "wallet:hr", "client-bank-in", 2_000); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate bank in error, got %v", err)
	}
}

func TestInMemoryLedger_BankOut(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:hr")
	l.EnsureAccount(ctx, BankSuspenseAccountCode)
	SeedBalance(l, "wallet:hr", 5_000)

	res, err := l.BankOut(ctx, "wallet:hr", "client-bank-out", 1_500)
	if err != nil {
		t.Fatalf("bank out failed: %v", err)
	}
	if res.WalletBalance != 3_500 {
		t.Fatalf("expected wallet balance 3500, got %d", res.WalletBalance)
	}

	if _, err := l.BankOut(ctx, "wallet:hr", "client-bank-out", 1_500); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate bank out error, got %v", err)
	}

	if _, err := l.BankOut(ctx, "wallet:hr", "client-bank-out-2", 10_000); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}
