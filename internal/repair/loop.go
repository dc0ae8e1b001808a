// Package repair implements the bounded generate → execute → fix cycle.
// A failed execution's stderr is fed back to the code generator together with
// the failing code; the regenerated code is executed again, up to a
// configured number of repair attempts.
package repair

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/executor"
)

// State tracks the loop's position in its lifecycle. Terminal states are
// StateSucceeded, StateMaxAttemptsExceeded, StateGenerationFailed, and
// StateCancelled.
type State string

const (
	StateGenerated State = "generated"
	StateExecuting State = "executing"
	StateRepairing State = "repairing"

	StateSucceeded           State = "succeeded"
	StateMaxAttemptsExceeded State = "max_attempts_exceeded"
	StateGenerationFailed    State = "generation_failed"
	StateCancelled           State = "cancelled"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateMaxAttemptsExceeded, StateGenerationFailed, StateCancelled:
		return true
	}
	return false
}

// Defaults mirror the loop's configuration knobs.
const (
	DefaultMaxAttempts = 3
	// DefaultStderrBudget bounds the error excerpt embedded in a repair
	// prompt so context does not grow with the size of a traceback.
	DefaultStderrBudget = 500
)

// Generator produces a raw model response for a prompt. The loop never
// inspects how the response is made; it only needs extractable code.
type Generator interface {
	Generate(ctx context.Context, prompt string, conv *codegen.Conversation) (string, error)
}

// Sandbox executes one code text and classifies the result.
type Sandbox interface {
	Execute(ctx context.Context, code string) *executor.Result
}

// ExtractFunc pulls executable code out of a raw response. ok=false means
// the response contained no code.
type ExtractFunc func(raw string) (code string, ok bool)

// Attempt is one (code, result) pair in a session's history.
type Attempt struct {
	Code   string
	Result *executor.Result
}

// Session is the record of one repair run. Created per user request,
// discarded when terminal.
type Session struct {
	State       State
	Attempt     int // 0-based count of repair cycles performed.
	MaxAttempts int
	History     []Attempt // Every executed (code, result) pair, oldest first.
	Code        string    // The most recent code text.
}

// LastResult returns the final execution result, or nil when nothing ran.
// On MaxAttemptsExceeded this carries the last failure's stderr.
func (s *Session) LastResult() *executor.Result {
	if len(s.History) == 0 {
		return nil
	}
	return s.History[len(s.History)-1].Result
}

// Config configures a Loop.
type Config struct {
	MaxAttempts  int // Repair ceiling. Zero = 3.
	StderrBudget int // Max stderr chars per repair prompt. Zero = 500.
}

// Loop drives the repair state machine. Sessions are processed one at a
// time, strictly sequentially.
type Loop struct {
	gen          Generator
	sandbox      Sandbox
	extract      ExtractFunc
	maxAttempts  int
	stderrBudget int
	logger       *slog.Logger
}

// New creates a Loop. A nil extract falls back to codegen.ExtractCode.
func New(cfg Config, gen Generator, sandbox Sandbox, extract ExtractFunc, logger *slog.Logger) *Loop {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	stderrBudget := cfg.StderrBudget
	if stderrBudget <= 0 {
		stderrBudget = DefaultStderrBudget
	}
	if extract == nil {
		extract = codegen.ExtractCode
	}
	return &Loop{
		gen:          gen,
		sandbox:      sandbox,
		extract:      extract,
		maxAttempts:  maxAttempts,
		stderrBudget: stderrBudget,
		logger:       logger,
	}
}

// MaxAttempts returns the configured repair ceiling.
func (l *Loop) MaxAttempts() int { return l.maxAttempts }

// SetMaxAttempts adjusts the repair ceiling for subsequent runs.
// Values below 1 are ignored. Not safe to call while a run is in flight.
func (l *Loop) SetMaxAttempts(n int) {
	if n > 0 {
		l.maxAttempts = n
	}
}

// Run executes code and repairs it until a terminal state is reached.
// The conversation accumulates each repair exchange, bounded by its own cap.
func (l *Loop) Run(ctx context.Context, code string, conv *codegen.Conversation) *Session {
	session := &Session{
		State:       StateGenerated,
		MaxAttempts: l.maxAttempts,
		Code:        code,
	}

	for {
		session.State = StateExecuting
		result := l.sandbox.Execute(ctx, session.Code)
		session.History = append(session.History, Attempt{Code: session.Code, Result: result})

		switch {
		case result.Outcome == executor.OutcomeSuccess:
			session.State = StateSucceeded
			return session

		case !result.Outcome.Retryable():
			// Cancelled: ends the session immediately, independent of
			// the attempt counter.
			session.State = StateCancelled
			return session

		case session.Attempt >= l.maxAttempts:
			session.State = StateMaxAttemptsExceeded
			return session
		}

		session.State = StateRepairing
		l.logger.InfoContext(ctx, "repairing failed execution",
			slog.Int("attempt", session.Attempt+1),
			slog.Int("max_attempts", l.maxAttempts),
			slog.String("outcome", string(result.Outcome)),
		)

		prompt := l.repairPrompt(session.Code, result.Stderr)

		raw, err := l.gen.Generate(ctx, prompt, conv)
		if err != nil {
			l.logger.WarnContext(ctx, "repair generation failed", slog.String("error", err.Error()))
			session.State = StateGenerationFailed
			return session
		}

		fixed, ok := l.extract(raw)
		if !ok {
			l.logger.WarnContext(ctx, "repair response contained no code")
			session.State = StateGenerationFailed
			return session
		}

		conv.Append(prompt, raw)
		session.Attempt++
		session.Code = fixed
		session.State = StateGenerated
	}
}

// repairPrompt builds the fix request: a bounded stderr excerpt plus the
// full failing code.
func (l *Loop) repairPrompt(code, stderr string) string {
	if len(stderr) > l.stderrBudget {
		stderr = stderr[:l.stderrBudget]
	}
	return fmt.Sprintf(
		"The code produced an error:\n```\n%s\n```\n\nOriginal code:\n```python\n%s\n```\n\nFix the error. Output the complete corrected Python code only.",
		stderr, code,
	)
}
