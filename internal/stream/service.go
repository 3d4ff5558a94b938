package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hlpay/paystream/internal/ledger"
	"github.com/hlpay/paystream/internal/notification"
	"github.com/hlpay/paystream/internal/tax"
	"github.com/hlpay/paystream/internal/wallet"
)

// Service owns all stream mutation: creation, pause/resume, and the
// settlement paths (withdraw, cancel). Every operation validates its
// preconditions and computes the amounts to move before the first ledger
// instruction, and the ledger posting commits in the same atomic scope as
// the stream record it pays for, so a failure at any point leaves no
// partial write.
//
// Operations on one stream id serialize on a per-stream lock; operations on
// distinct ids run concurrently. The clock is read once per operation.
type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	txr      TxRunner
	wallets  *wallet.Service
	policy   tax.Policy
	recorder Recorder
	notifier notification.Notifier
	locks    *lockTable
	now      func() time.Time
}

// NewService wires the settlement engine. The tax vault account is created up
// front so settlements never fail on a missing destination. A nil txr couples
// the ledger and repository directly, which is only sound for the in-memory
// backends.
func NewService(ctx context.Context, repo Repository, ledgerBackend ledger.Ledger, txr TxRunner, wallets *wallet.Service, policy tax.Policy, recorder Recorder, notifier notification.Notifier) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = NewMemoryRecorder()
	}
	if txr == nil {
		txr = passthroughRunner{ledger: ledgerBackend, repo: repo}
	}
	if policy.AccountCode != "" {
		if err := ledgerBackend.EnsureAccount(ctx, policy.AccountCode); err != nil {
			return nil, err
		}
	}
	return &Service{
		repo:     repo,
		ledger:   ledgerBackend,
		txr:      txr,
		wallets:  wallets,
		policy:   policy,
		recorder: recorder,
		notifier: notifier,
		locks:    newLockTable(),
		now:      time.Now,
	}, nil
}

// CreateInput captures the terms of a new stream. StreamID is normally left
// nil and assigned sequentially; callers that manage their own numbering may
// supply one. A zero StartTime means accrual begins immediately; a future one
// schedules the stream.
type CreateInput struct {
	StreamID          *uint64
	SenderWalletID    string
	RecipientWalletID string
	RatePerSecond     int64
	Deposit           int64
	StartTime         int64
	CallerUserID      string
}

// Create validates the stream terms, locks the deposit from the sender wallet
// into the stream's escrow account, and persists the new stream.
func (s *Service) Create(ctx context.Context, input CreateInput) (Stream, error) {
	if input.RatePerSecond <= 0 {
		return Stream{}, ErrInvalidRate
	}
	if input.Deposit <= 0 {
		return Stream{}, ErrInvalidDeposit
	}
	if input.RecipientWalletID == "" || input.RecipientWalletID == input.SenderWalletID {
		return Stream{}, ErrInvalidRecipient
	}

	senderWallet, err := s.wallets.Get(ctx, input.SenderWalletID)
	if err != nil {
		return Stream{}, err
	}
	if input.CallerUserID != "" && senderWallet.OwnerID != input.CallerUserID {
		return Stream{}, ErrUnauthorized
	}
	recipientWallet, err := s.wallets.Get(ctx, input.RecipientWalletID)
	if err != nil {
		return Stream{}, ErrInvalidRecipient
	}

	nowT := s.now().UTC()
	now := nowT.Unix()
	start := input.StartTime
	if start == 0 {
		start = now
	}
	full := ceilDiv(input.Deposit, input.RatePerSecond)
	if start > math.MaxInt64-full {
		return Stream{}, ErrInvalidDeposit
	}

	var id uint64
	if input.StreamID != nil {
		id = *input.StreamID
	} else {
		id, err = s.repo.NextID(ctx)
		if err != nil {
			return Stream{}, err
		}
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	if input.StreamID != nil {
		if _, err := s.repo.Get(ctx, id); err == nil {
			return Stream{}, ErrDuplicateStream
		} else if !errors.Is(err, ErrNotFound) {
			return Stream{}, err
		}
	}

	escrowCode := EscrowCodeFor(id)
	record := Stream{
		ID:                id,
		SenderWalletID:    senderWallet.ID,
		RecipientWalletID: recipientWallet.ID,
		EscrowCode:        escrowCode,
		RatePerSecond:     input.RatePerSecond,
		Deposit:           input.Deposit,
		StartTime:         start,
		StopTime:          start + full,
		Status:            StatusActive,
		CreatedAt:         nowT,
		UpdatedAt:         nowT,
	}

	// The escrow lock and the stream record commit together: a failure on
	// either side rolls back both, so the deposit is never stranded in escrow
	// without a stream that can pay it back out.
	lockTxID := fmt.Sprintf("stream-%d-create", id)
	err = s.txr.RunAtomic(ctx, func(l ledger.Ledger, r Repository) error {
		if err := l.EnsureAccount(ctx, escrowCode); err != nil {
			return err
		}
		if _, err := l.Lock(ctx, senderWallet.AccountCode, escrowCode, lockTxID, input.Deposit); err != nil {
			return err
		}
		return r.Insert(ctx, record)
	})
	if err != nil {
		return Stream{}, err
	}

	_ = s.recorder.Record(ctx, Event{
		StreamID:          id,
		Kind:              EventCreated,
		At:                now,
		SenderWalletID:    record.SenderWalletID,
		RecipientWalletID: record.RecipientWalletID,
		RatePerSecond:     record.RatePerSecond,
		Deposit:           record.Deposit,
	})
	s.notify(ctx, notification.KindStreamCreated, recipientWallet.OwnerID,
		fmt.Sprintf("Payroll stream %d opened: %d per second, %d total", id, record.RatePerSecond, record.Deposit))

	return record, nil
}

// Pause freezes the accrual clock. Sender only.
func (s *Service) Pause(ctx context.Context, id uint64, callerUserID string) (Stream, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return Stream{}, err
	}
	if err := s.authorizeSender(ctx, st, callerUserID); err != nil {
		return Stream{}, err
	}
	if !st.Active() {
		return Stream{}, ErrNotActive
	}
	if st.Paused() {
		return Stream{}, ErrAlreadyPaused
	}

	nowT := s.now().UTC()
	st.PausedAt = nowT.Unix()
	st.Status = StatusPaused
	st.UpdatedAt = nowT
	if err := s.repo.Update(ctx, st); err != nil {
		return Stream{}, err
	}

	_ = s.recorder.Record(ctx, Event{StreamID: id, Kind: EventPaused, At: st.PausedAt})
	return st, nil
}

// Resume unfreezes the accrual clock, folding the completed pause into the
// stream's accumulated paused time. Sender only.
func (s *Service) Resume(ctx context.Context, id uint64, callerUserID string) (Stream, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return Stream{}, err
	}
	if err := s.authorizeSender(ctx, st, callerUserID); err != nil {
		return Stream{}, err
	}
	if !st.Active() {
		return Stream{}, ErrNotActive
	}
	if !st.Paused() {
		return Stream{}, ErrNotPaused
	}

	nowT := s.now().UTC()
	now := nowT.Unix()
	st.PausedSeconds += pauseOverlap(st.StartTime, st.PausedAt, now)
	st.PausedAt = 0
	st.Status = StatusActive
	st.UpdatedAt = nowT
	if err := s.repo.Update(ctx, st); err != nil {
		return Stream{}, err
	}

	_ = s.recorder.Record(ctx, Event{StreamID: id, Kind: EventResumed, At: now})
	return st, nil
}

// WithdrawInput selects the stream and optionally caps the settled amount.
// A zero Amount settles the full withdrawable balance.
type WithdrawInput struct {
	StreamID     uint64
	CallerUserID string
	Amount       int64
}

// WithdrawResult reports the committed settlement split.
type WithdrawResult struct {
	StreamID  uint64
	Gross     int64
	Net       int64
	Tax       int64
	Withdrawn int64
	Completed bool
	SettledAt time.Time
}

// Withdraw settles vested pay to the recipient wallet, routing the withheld
// portion to the tax vault in the same atomic ledger posting. Recipient only.
// Withdrawing from a paused stream is allowed; only accrual is frozen.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (WithdrawResult, error) {
	if input.Amount < 0 {
		return WithdrawResult{}, ErrInvalidAmount
	}

	unlock := s.locks.acquire(input.StreamID)
	defer unlock()

	st, err := s.repo.Get(ctx, input.StreamID)
	if err != nil {
		return WithdrawResult{}, err
	}
	recipientWallet, err := s.wallets.Get(ctx, st.RecipientWalletID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if input.CallerUserID != "" && recipientWallet.OwnerID != input.CallerUserID {
		return WithdrawResult{}, ErrUnauthorized
	}
	if !st.Active() {
		return WithdrawResult{}, ErrNotActive
	}

	nowT := s.now().UTC()
	now := nowT.Unix()
	withdrawable := WithdrawableAt(st, now)
	if withdrawable == 0 {
		return WithdrawResult{}, ErrNothingToWithdraw
	}
	gross := input.Amount
	if gross == 0 {
		gross = withdrawable
	}
	if gross > withdrawable {
		return WithdrawResult{}, ErrExceedsAvailable
	}

	net, withheld := s.policy.Split(gross)
	legs := []ledger.Leg{{AccountCode: recipientWallet.AccountCode, Amount: net}}
	if withheld > 0 {
		legs = append(legs, ledger.Leg{AccountCode: s.policy.AccountCode, Amount: withheld})
	}

	st.Withdrawn += gross
	completed := st.Withdrawn == st.Deposit
	if completed {
		s.foldPause(&st, now)
		st.Status = StatusCompleted
	}
	st.UpdatedAt = nowT

	// Payout and the advanced Withdrawn commit together; otherwise a crash
	// between them would let a retry settle the same vested window twice.
	err = s.txr.RunAtomic(ctx, func(l ledger.Ledger, r Repository) error {
		if _, err := l.Settle(ctx, st.EscrowCode, "stream_withdraw", uuid.NewString(), legs); err != nil {
			return err
		}
		return r.Update(ctx, st)
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	_ = s.recorder.Record(ctx, Event{
		StreamID:          st.ID,
		Kind:              EventWithdrawn,
		At:                now,
		RecipientWalletID: st.RecipientWalletID,
		Gross:             gross,
		Net:               net,
		Tax:               withheld,
	})
	if completed {
		_ = s.recorder.Record(ctx, Event{StreamID: st.ID, Kind: EventCompleted, At: now})
	}
	s.notify(ctx, notification.KindWithdrawal, recipientWallet.OwnerID,
		fmt.Sprintf("You received %d from stream %d (%d withheld)", net, st.ID, withheld))

	return WithdrawResult{
		StreamID:  st.ID,
		Gross:     gross,
		Net:       net,
		Tax:       withheld,
		Withdrawn: st.Withdrawn,
		Completed: completed,
		SettledAt: nowT,
	}, nil
}

// CancelResult reports the terminal settlement: the recipient's final payout
// split and the unvested remainder refunded to the sender.
type CancelResult struct {
	StreamID  uint64
	Vested    int64
	Net       int64
	Tax       int64
	Refund    int64
	SettledAt time.Time
}

// Cancel terminates the stream early. The recipient is paid everything vested
// but not yet withdrawn (tax withheld as usual) and the sender is refunded
// the unvested remainder, all in one atomic ledger posting. Either party may
// cancel.
func (s *Service) Cancel(ctx context.Context, id uint64, callerUserID string) (CancelResult, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	senderWallet, err := s.wallets.Get(ctx, st.SenderWalletID)
	if err != nil {
		return CancelResult{}, err
	}
	recipientWallet, err := s.wallets.Get(ctx, st.RecipientWalletID)
	if err != nil {
		return CancelResult{}, err
	}
	if callerUserID != "" && senderWallet.OwnerID != callerUserID && recipientWallet.OwnerID != callerUserID {
		return CancelResult{}, ErrUnauthorized
	}
	if !st.Active() {
		return CancelResult{}, ErrNotActive
	}

	nowT := s.now().UTC()
	now := nowT.Unix()
	vested := VestedAt(st, now)
	unpaid := vested - st.Withdrawn
	refund := st.Deposit - vested

	net, withheld := s.policy.Split(unpaid)
	legs := []ledger.Leg{
		{AccountCode: recipientWallet.AccountCode, Amount: net},
		{AccountCode: senderWallet.AccountCode, Amount: refund},
	}
	if withheld > 0 {
		legs = append(legs, ledger.Leg{AccountCode: s.policy.AccountCode, Amount: withheld})
	}

	st.Withdrawn = vested
	s.foldPause(&st, now)
	st.Status = StatusCancelled
	st.UpdatedAt = nowT

	// Terminal settlement and the terminal status commit together.
	err = s.txr.RunAtomic(ctx, func(l ledger.Ledger, r Repository) error {
		if _, err := l.Settle(ctx, st.EscrowCode, "stream_cancel", uuid.NewString(), legs); err != nil {
			return err
		}
		return r.Update(ctx, st)
	})
	if err != nil {
		return CancelResult{}, err
	}

	_ = s.recorder.Record(ctx, Event{
		StreamID:          st.ID,
		Kind:              EventCancelled,
		At:                now,
		SenderWalletID:    st.SenderWalletID,
		RecipientWalletID: st.RecipientWalletID,
		Gross:             unpaid,
		Net:               net,
		Tax:               withheld,
		Refund:            refund,
	})
	s.notify(ctx, notification.KindStreamCancelled, recipientWallet.OwnerID,
		fmt.Sprintf("Stream %d was cancelled; %d settled to your wallet", st.ID, net))

	return CancelResult{
		StreamID:  st.ID,
		Vested:    vested,
		Net:       net,
		Tax:       withheld,
		Refund:    refund,
		SettledAt: nowT,
	}, nil
}

// Get returns a stream snapshot.
func (s *Service) Get(ctx context.Context, id uint64) (Stream, error) {
	return s.repo.Get(ctx, id)
}

// VestedResult is a point-in-time vesting query answer.
type VestedResult struct {
	StreamID     uint64
	At           int64
	Vested       int64
	Withdrawn    int64
	Withdrawable int64
}

// VestedAmount answers a read-only vesting query. A zero `at` means now.
// Terminal streams keep returning their frozen final amount.
func (s *Service) VestedAmount(ctx context.Context, id uint64, at int64) (VestedResult, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return VestedResult{}, err
	}
	if at == 0 {
		at = s.now().UTC().Unix()
	}
	vested := VestedAt(st, at)
	return VestedResult{
		StreamID:     st.ID,
		At:           at,
		Vested:       vested,
		Withdrawn:    st.Withdrawn,
		Withdrawable: vested - st.Withdrawn,
	}, nil
}

// ListBySenderWallet returns the streams funded by a wallet (employer view).
func (s *Service) ListBySenderWallet(ctx context.Context, walletID string) ([]Stream, error) {
	return s.repo.ListBySenderWallet(ctx, walletID)
}

// ListByRecipientWallet returns the streams paying a wallet (employee view).
func (s *Service) ListByRecipientWallet(ctx context.Context, walletID string) ([]Stream, error) {
	return s.repo.ListByRecipientWallet(ctx, walletID)
}

// Events returns a stream's audit trail.
func (s *Service) Events(ctx context.Context, id uint64) ([]Event, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.recorder.ListByStream(ctx, id)
}

// authorizeSender verifies the caller owns the stream's funding wallet. An
// empty caller id is a trusted internal call (tests, backoffice jobs).
func (s *Service) authorizeSender(ctx context.Context, st Stream, callerUserID string) error {
	if callerUserID == "" {
		return nil
	}
	senderWallet, err := s.wallets.Get(ctx, st.SenderWalletID)
	if err != nil {
		return err
	}
	if senderWallet.OwnerID != callerUserID {
		return ErrUnauthorized
	}
	return nil
}

// foldPause folds an in-progress pause into the accumulated total before the
// stream goes terminal, keeping "terminal implies not paused" true.
func (s *Service) foldPause(st *Stream, now int64) {
	if st.PausedAt > 0 {
		st.PausedSeconds += pauseOverlap(st.StartTime, st.PausedAt, now)
		st.PausedAt = 0
	}
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body})
}
