package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/executor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSandbox returns pre-canned results in order, repeating the last.
type scriptedSandbox struct {
	results []*executor.Result
	calls   int
}

func (s *scriptedSandbox) Execute(_ context.Context, _ string) *executor.Result {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

// scriptedGenerator returns pre-canned responses in order.
type scriptedGenerator struct {
	responses []string
	err       error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, _ *codegen.Conversation) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	i := len(g.prompts) - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func failure(stderr string) *executor.Result {
	return &executor.Result{Outcome: executor.OutcomeNonZeroExit, Stderr: stderr, ExitCode: 1}
}

func success(stdout string) *executor.Result {
	return &executor.Result{Outcome: executor.OutcomeSuccess, Stdout: stdout}
}

func TestRunSucceedsFirstTry(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{success("ok")}}
	gen := &scriptedGenerator{}
	loop := New(Config{MaxAttempts: 3}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "print('ok')", codegen.NewConversation())

	if session.State != StateSucceeded {
		t.Fatalf("state = %s, want succeeded", session.State)
	}
	if session.Attempt != 0 {
		t.Errorf("attempt = %d, want 0", session.Attempt)
	}
	if len(session.History) != 1 {
		t.Errorf("history length = %d, want 1", len(session.History))
	}
	if len(gen.prompts) != 0 {
		t.Error("generator should not be consulted on success")
	}
}

func TestRunRepairsThenSucceeds(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{
		failure("NameError: name 'x' is not defined"),
		success("fixed"),
	}}
	gen := &scriptedGenerator{responses: []string{"```python\nx = 1\nprint(x)\n```"}}
	loop := New(Config{MaxAttempts: 3}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "print(x)", codegen.NewConversation())

	if session.State != StateSucceeded {
		t.Fatalf("state = %s, want succeeded", session.State)
	}
	if session.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", session.Attempt)
	}
	if session.Code != "x = 1\nprint(x)" {
		t.Errorf("final code = %q", session.Code)
	}
	if len(session.History) != 2 {
		t.Errorf("history length = %d, want 2", len(session.History))
	}
	// The repair prompt carries the stderr and the failing code.
	if !strings.Contains(gen.prompts[0], "NameError") || !strings.Contains(gen.prompts[0], "print(x)") {
		t.Errorf("repair prompt missing context: %q", gen.prompts[0])
	}
}

func TestRunMaxAttemptsExceeded(t *testing.T) {
	const maxAttempts = 3
	sandbox := &scriptedSandbox{results: []*executor.Result{failure("still broken")}}
	gen := &scriptedGenerator{responses: []string{"print('try again')"}}
	loop := New(Config{MaxAttempts: maxAttempts}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "broken()", codegen.NewConversation())

	if session.State != StateMaxAttemptsExceeded {
		t.Fatalf("state = %s, want max_attempts_exceeded", session.State)
	}
	if session.Attempt != maxAttempts {
		t.Errorf("attempt = %d, want %d", session.Attempt, maxAttempts)
	}
	// Exactly maxAttempts repair cycles: maxAttempts+1 executions total.
	if len(session.History) != maxAttempts+1 {
		t.Errorf("history length = %d, want %d", len(session.History), maxAttempts+1)
	}
	// The final failure's stderr stays available to the caller.
	if session.LastResult() == nil || session.LastResult().Stderr != "still broken" {
		t.Error("last result stderr must survive termination")
	}
}

func TestRunGenerationError(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{failure("boom")}}
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	loop := New(Config{}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "x", codegen.NewConversation())

	if session.State != StateGenerationFailed {
		t.Fatalf("state = %s, want generation_failed", session.State)
	}
	if len(session.History) != 1 {
		t.Errorf("history length = %d, want 1", len(session.History))
	}
}

func TestRunNoExtractableCode(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{failure("boom")}}
	gen := &scriptedGenerator{responses: []string{"Sorry, I cannot help with that."}}
	loop := New(Config{}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "x", codegen.NewConversation())

	if session.State != StateGenerationFailed {
		t.Fatalf("state = %s, want generation_failed", session.State)
	}
}

func TestRunCancelledIsImmediatelyTerminal(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{
		{Outcome: executor.OutcomeCancelled, Stderr: "Cancelled by user", ExitCode: -1},
	}}
	gen := &scriptedGenerator{responses: []string{"print(1)"}}
	loop := New(Config{MaxAttempts: 5}, gen, sandbox, nil, discardLogger())

	session := loop.Run(context.Background(), "input()", codegen.NewConversation())

	if session.State != StateCancelled {
		t.Fatalf("state = %s, want cancelled", session.State)
	}
	if len(gen.prompts) != 0 {
		t.Error("cancellation must not trigger repair")
	}
	if sandbox.calls != 1 {
		t.Errorf("sandbox called %d times, want 1", sandbox.calls)
	}
}

func TestRepairPromptStderrBudget(t *testing.T) {
	loop := New(Config{StderrBudget: 10}, nil, nil, nil, discardLogger())

	long := strings.Repeat("e", 100)
	prompt := loop.repairPrompt("code", long)

	if strings.Contains(prompt, strings.Repeat("e", 11)) {
		t.Error("stderr excerpt exceeds configured budget")
	}
	if !strings.Contains(prompt, strings.Repeat("e", 10)) {
		t.Error("stderr excerpt missing entirely")
	}
}

func TestRunConversationGrowsBounded(t *testing.T) {
	sandbox := &scriptedSandbox{results: []*executor.Result{failure("err")}}
	gen := &scriptedGenerator{responses: []string{"print('again')"}}
	loop := New(Config{MaxAttempts: 50}, gen, sandbox, nil, discardLogger())

	conv := codegen.NewConversation()
	loop.Run(context.Background(), "x", conv)

	if conv.Len() > codegen.DefaultMaxMessages {
		t.Errorf("conversation grew to %d messages, cap is %d", conv.Len(), codegen.DefaultMaxMessages)
	}
}

func TestTerminalStates(t *testing.T) {
	terminals := []State{StateSucceeded, StateMaxAttemptsExceeded, StateGenerationFailed, StateCancelled}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateGenerated, StateExecuting, StateRepairing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRetryableOutcomesLoopBack(t *testing.T) {
	for _, outcome := range []executor.Outcome{
		executor.OutcomeNonZeroExit,
		executor.OutcomeTimeout,
		executor.OutcomeInternalError,
	} {
		t.Run(string(outcome), func(t *testing.T) {
			sandbox := &scriptedSandbox{results: []*executor.Result{
				{Outcome: outcome, Stderr: fmt.Sprintf("%s happened", outcome), ExitCode: -1},
				success("recovered"),
			}}
			gen := &scriptedGenerator{responses: []string{"print('fix')"}}
			loop := New(Config{MaxAttempts: 2}, gen, sandbox, nil, discardLogger())

			session := loop.Run(context.Background(), "x", codegen.NewConversation())
			if session.State != StateSucceeded {
				t.Errorf("state = %s, want succeeded after one repair", session.State)
			}
			if session.Attempt != 1 {
				t.Errorf("attempt = %d, want 1", session.Attempt)
			}
		})
	}
}
