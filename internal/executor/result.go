package executor

import "time"

// Outcome classifies one execution attempt.
type Outcome string

const (
	// OutcomeSuccess — the process ran to completion and exited 0.
	OutcomeSuccess Outcome = "success"
	// OutcomeNonZeroExit — the process ran to completion and exited non-zero.
	OutcomeNonZeroExit Outcome = "nonzero_exit"
	// OutcomeTimeout — the deadline expired and the process group was killed.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled — the user declined an input prompt; no process was spawned.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeInternalError — spawn or I/O failure unrelated to the executed code.
	OutcomeInternalError Outcome = "internal_error"
)

// Retryable reports whether a repair loop should attempt a fix for this outcome.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeNonZeroExit, OutcomeTimeout, OutcomeInternalError:
		return true
	}
	return false
}

// sentinelExitCode marks results that did not come from a completed process.
const sentinelExitCode = -1

// Result captures the outcome of one execution attempt. Immutable once
// produced; the executor retains the most recent instance as its last result.
type Result struct {
	Outcome  Outcome
	Stdout   string
	Stderr   string
	Elapsed  time.Duration // Wall clock from spawn to exit or kill.
	ExitCode int           // -1 for timeout, cancellation, and internal errors.
}

// Success reports whether the execution completed with exit code 0.
func (r *Result) Success() bool { return r.Outcome == OutcomeSuccess }
