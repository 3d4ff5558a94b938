package stream

// Vesting math. Pure functions over a stream snapshot and a query time; no
// side effects, deterministic for fixed inputs. The store and the read-only
// queries both go through here so there is a single source of truth.
//
// Pause accounting excludes frozen seconds from the active elapsed time
// rather than pushing StopTime forward; the two strategies are algebraically
// equivalent and this one keeps the stored schedule immutable across any
// number of pause/resume cycles.

// VestedAt returns the amount accrued to the recipient as of now. Time before
// StartTime vests nothing; once the active elapsed time covers the full
// deposit the result saturates at Deposit no matter how far now runs past the
// schedule. Terminal streams report their frozen final amount.
func VestedAt(s Stream, now int64) int64 {
	if s.Terminal() {
		return s.Withdrawn
	}
	secs := ActiveSeconds(s, now)
	if secs >= fullVestingSeconds(s) {
		return s.Deposit
	}
	// secs is below the full-vesting bound, so the product stays below
	// Deposit + RatePerSecond and cannot overflow.
	return s.RatePerSecond * secs
}

// WithdrawableAt returns the vested amount not yet paid out as of now.
func WithdrawableAt(s Stream, now int64) int64 {
	available := VestedAt(s, now) - s.Withdrawn
	if available < 0 {
		return 0
	}
	return available
}

// ActiveSeconds returns the accrual clock reading: wall-clock seconds since
// StartTime minus every second spent paused, including the in-progress pause.
func ActiveSeconds(s Stream, now int64) int64 {
	if now <= s.StartTime {
		return 0
	}
	elapsed := now - s.StartTime
	paused := s.PausedSeconds
	if s.PausedAt > 0 {
		paused += pauseOverlap(s.StartTime, s.PausedAt, now)
	}
	active := elapsed - paused
	if active < 0 {
		return 0
	}
	return active
}

// EffectiveStopAt reports when the stream would fully vest given the pause
// time observed so far: the original schedule pushed back by every frozen
// second. Informational only; the vesting math never reads it.
func EffectiveStopAt(s Stream, now int64) int64 {
	stop := s.StopTime + s.PausedSeconds
	if s.PausedAt > 0 {
		stop += pauseOverlap(s.StartTime, s.PausedAt, now)
	}
	return stop
}

// pauseOverlap measures how much of the pause [pausedAt, until] intersects
// the accrual window, i.e. time at or after startTime. A stream paused before
// its scheduled start freezes nothing until accrual would have begun.
func pauseOverlap(startTime, pausedAt, until int64) int64 {
	from := pausedAt
	if from < startTime {
		from = startTime
	}
	if until <= from {
		return 0
	}
	return until - from
}

// fullVestingSeconds is the active time needed to vest the entire deposit:
// ceil(deposit / rate). The final second may vest a partial-rate remainder.
func fullVestingSeconds(s Stream) int64 {
	return ceilDiv(s.Deposit, s.RatePerSecond)
}

// ceilDiv computes ceil(a/b) for positive operands without forming a+b-1,
// which can exceed the int64 range when both operands are large.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
