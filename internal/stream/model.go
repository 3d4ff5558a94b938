package stream

import (
	"fmt"
	"time"
)

// Stream lifecycle states. Completed and cancelled are terminal: no mutating
// operation is accepted once a stream reaches either.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Stream is the unit of payroll accounting: a fixed-rate, capped commitment
// from a sender wallet to a recipient wallet. Amounts are integers in the
// smallest unit of the ledger's asset; timestamps are unix seconds.
//
// Identity, parties, rate and deposit are immutable after creation. Withdrawn
// only grows. PausedAt is non-zero exactly while the stream is paused;
// PausedSeconds accumulates completed pauses and never includes the
// in-progress one.
type Stream struct {
	ID                uint64
	SenderWalletID    string
	RecipientWalletID string
	EscrowCode        string
	RatePerSecond     int64
	Deposit           int64
	Withdrawn         int64
	StartTime         int64
	StopTime          int64
	PausedAt          int64
	PausedSeconds     int64
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active reports whether the stream still accepts mutating operations.
// A paused stream is active: it can be resumed, cancelled, or have its
// already-vested balance withdrawn.
func (s Stream) Active() bool {
	return s.Status == StatusActive || s.Status == StatusPaused
}

// Paused reports whether the accrual clock is currently frozen.
func (s Stream) Paused() bool {
	return s.Status == StatusPaused
}

// Terminal reports whether the stream reached a final state.
func (s Stream) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// EscrowCodeFor returns the ledger account holding a stream's locked deposit.
func EscrowCodeFor(id uint64) string {
	return fmt.Sprintf("stream:%d", id)
}
