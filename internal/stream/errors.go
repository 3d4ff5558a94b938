package stream

import "errors"

// Every operation validates its preconditions and computes derived values
// before issuing any ledger instruction, so each of these errors leaves both
// stream state and ledger state untouched. Ledger-side failures
// (insufficient funds/allowance, transfer failure) are defined in the ledger
// package and passed through unchanged.
var (
	// ErrNotFound is returned for an unknown stream identifier.
	ErrNotFound = errors.New("stream not found")

	// ErrUnauthorized is returned when the caller does not hold the wallet the
	// operation requires (sender for pause/resume, recipient for withdraw,
	// either party for cancel).
	ErrUnauthorized = errors.New("caller not authorized for stream")

	// ErrDuplicateStream indicates the requested stream identifier is already taken.
	ErrDuplicateStream = errors.New("stream id already exists")

	// ErrInvalidRate rejects a zero or negative accrual rate.
	ErrInvalidRate = errors.New("rate per second must be positive")

	// ErrInvalidDeposit rejects a zero or negative deposit, or one whose
	// derived schedule overflows the time range.
	ErrInvalidDeposit = errors.New("deposit must be positive")

	// ErrInvalidRecipient rejects a missing recipient or one equal to the sender.
	ErrInvalidRecipient = errors.New("invalid recipient wallet")

	// ErrNotActive is returned for mutations on completed or cancelled streams.
	ErrNotActive = errors.New("stream is not active")

	// ErrAlreadyPaused is returned when pausing a stream that is already paused.
	ErrAlreadyPaused = errors.New("stream already paused")

	// ErrNotPaused is returned when resuming a stream that is not paused.
	ErrNotPaused = errors.New("stream is not paused")

	// ErrInvalidAmount rejects a negative withdrawal amount.
	ErrInvalidAmount = errors.New("withdrawal amount must not be negative")

	// ErrNothingToWithdraw indicates no vested balance is currently withdrawable.
	ErrNothingToWithdraw = errors.New("nothing to withdraw")

	// ErrExceedsAvailable rejects a withdrawal request above the vested,
	// not-yet-withdrawn balance.
	ErrExceedsAvailable = errors.New("requested amount exceeds withdrawable balance")
)
