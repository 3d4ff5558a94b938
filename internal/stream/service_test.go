package stream

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hlpay/paystream/internal/ledger"
	"github.com/hlpay/paystream/internal/tax"
	"github.com/hlpay/paystream/internal/wallet"
)

const taxVault = "tax:treasury"

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start int64) *fakeClock {
	return &fakeClock{now: time.Unix(start, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(seconds) * time.Second)
}

type testEngine struct {
	svc       *Service
	ledger    ledger.Ledger
	wallets   *wallet.Service
	clock     *fakeClock
	sender    wallet.Wallet
	recipient wallet.Wallet
}

// newTestEngine wires a settlement engine on in-memory backends with a 10%
// withholding policy, a funded and approved sender wallet, and a fake clock
// starting at t=1000.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx := context.Background()

	backend := ledger.NewInMemory()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), backend)

	sender, err := wallets.Create(ctx, wallet.CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create sender wallet: %v", err)
	}
	recipient, err := wallets.Create(ctx, wallet.CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create recipient wallet: %v", err)
	}
	ledger.SeedBalance(backend, sender.AccountCode, 100_000)
	if _, err := wallets.Approve(ctx, sender.ID, 100_000); err != nil {
		t.Fatalf("approve engine allowance: %v", err)
	}

	policy := tax.Policy{RateBasisPoints: 1_000, AccountCode: taxVault}
	svc, err := NewService(ctx, NewMemoryRepository(), backend, nil, wallets, policy, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	clock := newFakeClock(1_000)
	svc.now = clock.Now

	return &testEngine{
		svc:       svc,
		ledger:    backend,
		wallets:   wallets,
		clock:     clock,
		sender:    sender,
		recipient: recipient,
	}
}

func (e *testEngine) create(t *testing.T, rate, deposit int64) Stream {
	t.Helper()
	st, err := e.svc.Create(context.Background(), CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     rate,
		Deposit:           deposit,
	})
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return st
}

func (e *testEngine) balance(t *testing.T, code string) int64 {
	t.Helper()
	amount, err := e.ledger.Balance(context.Background(), code)
	if err != nil {
		t.Fatalf("balance %s: %v", code, err)
	}
	return amount
}

func TestCreateLocksDepositInEscrow(t *testing.T) {
	e := newTestEngine(t)

	st := e.create(t, 10, 1_000)

	if st.ID != 0 {
		t.Fatalf("first stream id = %d, want 0", st.ID)
	}
	if st.Status != StatusActive {
		t.Fatalf("status = %q, want active", st.Status)
	}
	if st.StopTime != st.StartTime+100 {
		t.Fatalf("stop time = %d, want start+100", st.StopTime)
	}
	if got := e.balance(t, e.sender.AccountCode); got != 99_000 {
		t.Fatalf("sender balance = %d, want 99000", got)
	}
	if got := e.balance(t, st.EscrowCode); got != 1_000 {
		t.Fatalf("escrow balance = %d, want 1000", got)
	}

	second := e.create(t, 1, 500)
	if second.ID != 1 {
		t.Fatalf("second stream id = %d, want 1", second.ID)
	}
}

func TestCreateConsumesEngineAllowance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.create(t, 10, 1_000)

	allowance, err := e.wallets.EngineAllowance(ctx, e.sender.ID)
	if err != nil {
		t.Fatalf("engine allowance: %v", err)
	}
	if allowance.Amount != 99_000 {
		t.Fatalf("allowance = %d, want 99000", allowance.Amount)
	}

	if _, err := e.wallets.Approve(ctx, e.sender.ID, 0); err != nil {
		t.Fatalf("revoke allowance: %v", err)
	}
	_, err = e.svc.Create(ctx, CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           1_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestCreateRejectsBadTerms(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"zero rate", CreateInput{SenderWalletID: e.sender.ID, RecipientWalletID: e.recipient.ID, Deposit: 100}, ErrInvalidRate},
		{"negative rate", CreateInput{SenderWalletID: e.sender.ID, RecipientWalletID: e.recipient.ID, RatePerSecond: -1, Deposit: 100}, ErrInvalidRate},
		{"zero deposit", CreateInput{SenderWalletID: e.sender.ID, RecipientWalletID: e.recipient.ID, RatePerSecond: 10}, ErrInvalidDeposit},
		{"self stream", CreateInput{SenderWalletID: e.sender.ID, RecipientWalletID: e.sender.ID, RatePerSecond: 10, Deposit: 100}, ErrInvalidRecipient},
		{"missing recipient", CreateInput{SenderWalletID: e.sender.ID, RatePerSecond: 10, Deposit: 100}, ErrInvalidRecipient},
	}
	for _, tc := range cases {
		if _, err := e.svc.Create(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := uint64(7)
	if _, err := e.svc.Create(ctx, CreateInput{
		StreamID:          &id,
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           100,
	}); err != nil {
		t.Fatalf("create with explicit id: %v", err)
	}
	_, err := e.svc.Create(ctx, CreateInput{
		StreamID:          &id,
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           100,
	})
	if !errors.Is(err, ErrDuplicateStream) {
		t.Fatalf("expected ErrDuplicateStream, got %v", err)
	}
}

func TestCreateRejectsUnownedSenderWallet(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.svc.Create(context.Background(), CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           100,
		CallerUserID:      uuid.NewString(),
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWithdrawSplitsNetAndTax(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	res, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Gross != 100 || res.Net != 90 || res.Tax != 10 {
		t.Fatalf("split = %d/%d/%d, want 100/90/10", res.Gross, res.Net, res.Tax)
	}
	if res.Withdrawn != 100 || res.Completed {
		t.Fatalf("withdrawn = %d completed = %v, want 100 and not completed", res.Withdrawn, res.Completed)
	}
	if got := e.balance(t, e.recipient.AccountCode); got != 90 {
		t.Fatalf("recipient balance = %d, want 90", got)
	}
	if got := e.balance(t, taxVault); got != 10 {
		t.Fatalf("tax vault balance = %d, want 10", got)
	}
	if got := e.balance(t, st.EscrowCode); got != 900 {
		t.Fatalf("escrow balance = %d, want 900", got)
	}
}

func TestWithdrawPartialThenRemainder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(50)

	res, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 200})
	if err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
	if res.Gross != 200 || res.Net != 180 || res.Tax != 20 {
		t.Fatalf("split = %d/%d/%d, want 200/180/20", res.Gross, res.Net, res.Tax)
	}

	res, err = e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
	if err != nil {
		t.Fatalf("remainder withdraw: %v", err)
	}
	if res.Gross != 300 {
		t.Fatalf("remainder gross = %d, want 300", res.Gross)
	}
	if res.Withdrawn != 500 {
		t.Fatalf("withdrawn = %d, want 500", res.Withdrawn)
	}
}

func TestWithdrawRejectsOverdraw(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 101}); !errors.Is(err, ErrExceedsAvailable) {
		t.Fatalf("expected ErrExceedsAvailable, got %v", err)
	}
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: -5}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreateExtremeTermsNothingWithdrawableAtStart(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	ledger.SeedBalance(e.ledger, e.sender.AccountCode, math.MaxInt64)
	if _, err := e.wallets.Approve(ctx, e.sender.ID, math.MaxInt64); err != nil {
		t.Fatalf("approve: %v", err)
	}

	st, err := e.svc.Create(ctx, CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     math.MaxInt64,
		Deposit:           math.MaxInt64,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID}); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("withdraw at start: expected ErrNothingToWithdraw, got %v", err)
	}
	res, err := e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if res.Vested != 0 {
		t.Fatalf("vested at start = %d, want 0", res.Vested)
	}

	e.clock.Advance(1)
	res, err = e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if res.Vested != math.MaxInt64 {
		t.Fatalf("vested after one second = %d, want full deposit", res.Vested)
	}
}

func TestCreateRejectsUnrepresentableSchedule(t *testing.T) {
	e := newTestEngine(t)

	// rate 1 against a maximal deposit puts the stop time past the int64
	// clock range; the terms are rejected before any ledger instruction.
	_, err := e.svc.Create(context.Background(), CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     1,
		Deposit:           math.MaxInt64,
	})
	if !errors.Is(err, ErrInvalidDeposit) {
		t.Fatalf("expected ErrInvalidDeposit, got %v", err)
	}
}

func TestWithdrawNothingVested(t *testing.T) {
	e := newTestEngine(t)

	st := e.create(t, 10, 1_000)

	if _, err := e.svc.Withdraw(context.Background(), WithdrawInput{StreamID: st.ID}); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
}

func TestWithdrawOnlyRecipient(t *testing.T) {
	e := newTestEngine(t)

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	_, err := e.svc.Withdraw(context.Background(), WithdrawInput{StreamID: st.ID, CallerUserID: e.sender.OwnerID})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWithdrawFullDepositCompletesStream(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(500)

	res, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.Completed || res.Gross != 1_000 {
		t.Fatalf("completed = %v gross = %d, want full completion", res.Completed, res.Gross)
	}

	final, err := e.svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if got := e.balance(t, st.EscrowCode); got != 0 {
		t.Fatalf("escrow balance = %d, want 0", got)
	}

	// Terminal streams reject further mutation but keep answering reads.
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if _, err := e.svc.Pause(ctx, st.ID, ""); !errors.Is(err, ErrNotActive) {
		t.Fatalf("pause after completion: expected ErrNotActive, got %v", err)
	}
	if _, err := e.svc.Cancel(ctx, st.ID, ""); !errors.Is(err, ErrNotActive) {
		t.Fatalf("cancel after completion: expected ErrNotActive, got %v", err)
	}
	vested, err := e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested query on terminal stream: %v", err)
	}
	if vested.Vested != 1_000 || vested.Withdrawable != 0 {
		t.Fatalf("terminal vested = %d withdrawable = %d, want 1000/0", vested.Vested, vested.Withdrawable)
	}
}

func TestPauseFreezesAccrual(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	if _, err := e.svc.Pause(ctx, st.ID, ""); err != nil {
		t.Fatalf("pause: %v", err)
	}
	e.clock.Advance(5)

	res, err := e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if res.Vested != 100 {
		t.Fatalf("vested while paused = %d, want frozen 100", res.Vested)
	}

	if _, err := e.svc.Resume(ctx, st.ID, ""); err != nil {
		t.Fatalf("resume: %v", err)
	}
	e.clock.Advance(10)

	res, err = e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if res.Vested != 200 {
		t.Fatalf("vested after resume = %d, want 200", res.Vested)
	}
}

func TestPauseStateTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)

	if _, err := e.svc.Resume(ctx, st.ID, ""); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume running stream: expected ErrNotPaused, got %v", err)
	}
	if _, err := e.svc.Pause(ctx, st.ID, ""); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := e.svc.Pause(ctx, st.ID, ""); !errors.Is(err, ErrAlreadyPaused) {
		t.Fatalf("double pause: expected ErrAlreadyPaused, got %v", err)
	}

	// Only the sender may pause or resume.
	if _, err := e.svc.Resume(ctx, st.ID, e.recipient.OwnerID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("recipient resume: expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.svc.Resume(ctx, st.ID, e.sender.OwnerID); err != nil {
		t.Fatalf("sender resume: %v", err)
	}
}

func TestWithdrawAllowedWhilePaused(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)
	if _, err := e.svc.Pause(ctx, st.ID, ""); err != nil {
		t.Fatalf("pause: %v", err)
	}
	e.clock.Advance(100)

	res, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
	if err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
	if res.Gross != 100 {
		t.Fatalf("gross = %d, want the 100 vested before the pause", res.Gross)
	}
}

func TestCancelSettlesBothParties(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(30)

	res, err := e.svc.Cancel(ctx, st.ID, e.recipient.OwnerID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Vested != 300 || res.Net != 270 || res.Tax != 30 || res.Refund != 700 {
		t.Fatalf("cancel split = vested %d net %d tax %d refund %d, want 300/270/30/700",
			res.Vested, res.Net, res.Tax, res.Refund)
	}
	if got := e.balance(t, e.recipient.AccountCode); got != 270 {
		t.Fatalf("recipient balance = %d, want 270", got)
	}
	if got := e.balance(t, e.sender.AccountCode); got != 99_700 {
		t.Fatalf("sender balance = %d, want 99700", got)
	}
	if got := e.balance(t, taxVault); got != 30 {
		t.Fatalf("tax vault balance = %d, want 30", got)
	}
	if got := e.balance(t, st.EscrowCode); got != 0 {
		t.Fatalf("escrow balance = %d, want 0", got)
	}

	final, err := e.svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", final.Status)
	}
}

func TestCancelAfterPartialWithdraw(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(30)
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 100}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	e.clock.Advance(20)

	res, err := e.svc.Cancel(ctx, st.ID, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// 500 vested, 100 already withdrawn: 400 unpaid splits 360/40, 500 refunds.
	if res.Vested != 500 || res.Net != 360 || res.Tax != 40 || res.Refund != 500 {
		t.Fatalf("cancel split = vested %d net %d tax %d refund %d, want 500/360/40/500",
			res.Vested, res.Net, res.Tax, res.Refund)
	}
	if got := e.balance(t, st.EscrowCode); got != 0 {
		t.Fatalf("escrow balance = %d, want 0", got)
	}
}

func TestCancelRejectsThirdParty(t *testing.T) {
	e := newTestEngine(t)

	st := e.create(t, 10, 1_000)

	_, err := e.svc.Cancel(context.Background(), st.ID, uuid.NewString())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestScheduledStreamVestsNothingBeforeStart(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start := e.clock.Now().Unix() + 100
	st, err := e.svc.Create(ctx, CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           1_000,
		StartTime:         start,
	})
	if err != nil {
		t.Fatalf("create scheduled stream: %v", err)
	}

	e.clock.Advance(50)
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID}); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw before start, got %v", err)
	}

	e.clock.Advance(60) // 10 seconds past start
	res, err := e.svc.VestedAmount(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if res.Vested != 100 {
		t.Fatalf("vested = %d, want 100", res.Vested)
	}
}

func TestVestedAmountQueryIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	at := st.StartTime + 25

	first, err := e.svc.VestedAmount(ctx, st.ID, at)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	e.clock.Advance(500)
	second, err := e.svc.VestedAmount(ctx, st.ID, at)
	if err != nil {
		t.Fatalf("vested: %v", err)
	}
	if first != second {
		t.Fatalf("same query diverged: %+v then %+v", first, second)
	}
	if first.Vested != 250 {
		t.Fatalf("vested = %d, want 250", first.Vested)
	}
}

func TestListStreamsByWallet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := e.create(t, 10, 1_000)
	second := e.create(t, 5, 500)

	sent, err := e.svc.ListBySenderWallet(ctx, e.sender.ID)
	if err != nil {
		t.Fatalf("list by sender: %v", err)
	}
	if len(sent) != 2 || sent[0].ID != second.ID || sent[1].ID != first.ID {
		t.Fatalf("sender list = %v, want [%d %d]", streamIDs(sent), second.ID, first.ID)
	}

	received, err := e.svc.ListByRecipientWallet(ctx, e.recipient.ID)
	if err != nil {
		t.Fatalf("list by recipient: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("recipient list has %d streams, want 2", len(received))
	}

	empty, err := e.svc.ListBySenderWallet(ctx, e.recipient.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("recipient wallet funds %d streams, want 0", len(empty))
	}
}

func TestEventsRecordLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(30)
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 100}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := e.svc.Cancel(ctx, st.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	events, err := e.svc.Events(ctx, st.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []string{EventCreated, EventWithdrawn, EventCancelled}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", kinds, want)
		}
	}

	created := events[0]
	if created.RatePerSecond != 10 || created.Deposit != 1_000 {
		t.Fatalf("creation event terms = %d/%d, want 10/1000", created.RatePerSecond, created.Deposit)
	}
	cancelled := events[2]
	if cancelled.Net != 180 || cancelled.Tax != 20 || cancelled.Refund != 700 {
		t.Fatalf("cancel event = net %d tax %d refund %d, want 180/20/700", cancelled.Net, cancelled.Tax, cancelled.Refund)
	}
}

func TestEventsUnknownStream(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.svc.Events(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// recordingRunner counts entries into the atomic scope and can be set to fail
// before executing the callback, standing in for a transaction that cannot
// begin or commit.
type recordingRunner struct {
	ledger ledger.Ledger
	repo   Repository
	calls  int
	fail   error
}

func (r *recordingRunner) RunAtomic(ctx context.Context, fn func(ledger.Ledger, Repository) error) error {
	r.calls++
	if r.fail != nil {
		return r.fail
	}
	return fn(r.ledger, r.repo)
}

func TestSettlementWritesRunInAtomicScope(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	runner := &recordingRunner{ledger: e.svc.ledger, repo: e.svc.repo}
	e.svc.txr = runner

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 50}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := e.svc.Cancel(ctx, st.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// One scope per settlement: create, withdraw, cancel.
	if runner.calls != 3 {
		t.Fatalf("atomic scope entered %d times, want 3", runner.calls)
	}
}

func TestFailedAtomicScopeLeavesNoPartialWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	broken := errors.New("connection lost")
	e.svc.txr = &recordingRunner{fail: broken}

	// Create: no deposit leaves the sender wallet and no stream record
	// appears when the scope fails.
	if _, err := e.svc.Create(ctx, CreateInput{
		SenderWalletID:    e.sender.ID,
		RecipientWalletID: e.recipient.ID,
		RatePerSecond:     10,
		Deposit:           500,
	}); !errors.Is(err, broken) {
		t.Fatalf("create: expected scope error, got %v", err)
	}
	if _, err := e.svc.Get(ctx, st.ID+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed create left a stream record: %v", err)
	}
	if got := e.balance(t, e.sender.AccountCode); got != 99_000 {
		t.Fatalf("sender balance = %d, want untouched 99000", got)
	}

	// Withdraw: Withdrawn is not advanced and nobody is paid.
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID}); !errors.Is(err, broken) {
		t.Fatalf("withdraw: expected scope error, got %v", err)
	}
	cur, err := e.svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Withdrawn != 0 {
		t.Fatalf("withdrawn = %d after failed scope, want 0", cur.Withdrawn)
	}
	if got := e.balance(t, e.recipient.AccountCode); got != 0 {
		t.Fatalf("recipient balance = %d after failed scope, want 0", got)
	}

	// Cancel: the stream stays active.
	if _, err := e.svc.Cancel(ctx, st.ID, ""); !errors.Is(err, broken) {
		t.Fatalf("cancel: expected scope error, got %v", err)
	}
	cur, err = e.svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Status != StatusActive {
		t.Fatalf("status = %q after failed scope, want active", cur.Status)
	}

	// With the scope restored the same withdrawal succeeds, so the failure
	// left the stream fully retryable.
	e.svc.txr = passthroughRunner{ledger: e.svc.ledger, repo: e.svc.repo}
	res, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
	if err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
	if res.Gross != 100 {
		t.Fatalf("retry gross = %d, want 100", res.Gross)
	}
}

func TestConcurrentWithdrawalsNeverDoublePay(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(10)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrNothingToWithdraw) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d withdrawals succeeded, want exactly 1", ok)
	}
	if got := e.balance(t, e.recipient.AccountCode); got != 90 {
		t.Fatalf("recipient balance = %d, want 90", got)
	}
	if got := e.balance(t, st.EscrowCode); got != 900 {
		t.Fatalf("escrow balance = %d, want 900", got)
	}
}

func TestFundsConservedAcrossLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	st := e.create(t, 10, 1_000)
	e.clock.Advance(40)
	if _, err := e.svc.Withdraw(ctx, WithdrawInput{StreamID: st.ID, Amount: 150}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	e.clock.Advance(25)
	if _, err := e.svc.Cancel(ctx, st.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	total := e.balance(t, e.sender.AccountCode) +
		e.balance(t, e.recipient.AccountCode) +
		e.balance(t, taxVault) +
		e.balance(t, st.EscrowCode)
	if total != 100_000 {
		t.Fatalf("total across accounts = %d, want the seeded 100000", total)
	}
}

func streamIDs(streams []Stream) []uint64 {
	ids := make([]uint64, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID)
	}
	return ids
}
