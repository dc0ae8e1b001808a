package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/history"
	"github.com/jkaninda/fundi/internal/repair"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ string, _ *codegen.Conversation) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.calls >= len(g.responses) {
		return g.responses[len(g.responses)-1], nil
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp, nil
}

type scriptedSandbox struct {
	results []*executor.Result
	calls   int
}

func (s *scriptedSandbox) Execute(context.Context, string) *executor.Result {
	if s.calls >= len(s.results) {
		return s.results[len(s.results)-1]
	}
	res := s.results[s.calls]
	s.calls++
	return res
}

type memStore struct {
	saved []*history.Session
}

func (m *memStore) SaveSession(_ context.Context, s *history.Session) error {
	m.saved = append(m.saved, s)
	return nil
}

func (m *memStore) GetSession(context.Context, uuid.UUID) (*history.Session, error) {
	return nil, errors.New("not found")
}

func (m *memStore) ListSessions(context.Context, string, int) ([]*history.Session, error) {
	return nil, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }
func (m *memStore) Driver() string                { return "mem" }

func newTestAgent(gen Generator, sandbox repair.Sandbox, store history.Store) *Agent {
	logger := testLogger()
	loop := repair.New(repair.Config{MaxAttempts: 2}, gen, sandbox, nil, logger)
	return New(gen, loop, sandbox, store, nil, logger)
}

func TestProcess_SuccessFirstTry(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`print("hi")`}}
	sandbox := &scriptedSandbox{results: []*executor.Result{
		{Outcome: executor.OutcomeSuccess, Stdout: "hi\n"},
	}}
	store := &memStore{}
	a := newTestAgent(gen, sandbox, store)

	out, err := a.Process(context.Background(), &Input{ClientID: "cli", Prompt: "say hi"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.State != repair.StateSucceeded {
		t.Fatalf("State = %v, want %v", out.State, repair.StateSucceeded)
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", out.Attempts)
	}
	if out.Result.Stdout != "hi\n" {
		t.Errorf("Stdout = %q, want %q", out.Result.Stdout, "hi\n")
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved sessions = %d, want 1", len(store.saved))
	}
	rec := store.saved[0]
	if rec.State != string(repair.StateSucceeded) {
		t.Errorf("recorded state = %q, want %q", rec.State, repair.StateSucceeded)
	}
	if len(rec.Attempts) != 1 {
		t.Errorf("recorded attempts = %d, want 1", len(rec.Attempts))
	}
}

func TestProcess_RepairsThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`print(greeting)`,
		`greeting = "hi"` + "\n" + `print(greeting)`,
	}}
	sandbox := &scriptedSandbox{results: []*executor.Result{
		{Outcome: executor.OutcomeNonZeroExit, Stderr: "NameError: name 'greeting' is not defined", ExitCode: 1, Elapsed: 10 * time.Millisecond},
		{Outcome: executor.OutcomeSuccess, Stdout: "hi\n", Elapsed: 12 * time.Millisecond},
	}}
	store := &memStore{}
	a := newTestAgent(gen, sandbox, store)

	out, err := a.Process(context.Background(), &Input{ClientID: "cli", Prompt: "print greeting"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.State != repair.StateSucceeded {
		t.Fatalf("State = %v, want %v", out.State, repair.StateSucceeded)
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	if len(store.saved) != 1 || len(store.saved[0].Attempts) != 2 {
		t.Fatalf("expected one recorded session with two attempts")
	}
	if store.saved[0].Attempts[0].Outcome != string(executor.OutcomeNonZeroExit) {
		t.Errorf("first attempt outcome = %q, want nonzero_exit", store.saved[0].Attempts[0].Outcome)
	}
}

func TestProcess_ConversationalReply(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"I can help with Python questions. What do you need?"}}
	sandbox := &scriptedSandbox{results: []*executor.Result{{Outcome: executor.OutcomeSuccess}}}
	a := newTestAgent(gen, sandbox, nil)

	out, err := a.Process(context.Background(), &Input{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.State != repair.StateGenerationFailed {
		t.Fatalf("State = %v, want %v", out.State, repair.StateGenerationFailed)
	}
	if sandbox.calls != 0 {
		t.Errorf("sandbox calls = %d, want 0", sandbox.calls)
	}
	if out.Message == "" {
		t.Error("conversational reply should be carried in Message")
	}
	if out.Result != nil {
		t.Errorf("Result = %+v, want nil when nothing was executed", out.Result)
	}
}

func TestProcess_GenerationError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	a := newTestAgent(gen, &scriptedSandbox{results: []*executor.Result{{}}}, nil)

	if _, err := a.Process(context.Background(), &Input{Prompt: "anything"}); err == nil {
		t.Fatal("expected error when the provider is unreachable")
	}
}

func TestGenerate_KeepsConversation(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`x = 1`, `x = 2`}}
	a := newTestAgent(gen, &scriptedSandbox{results: []*executor.Result{{}}}, nil)

	conv := codegen.NewConversation()
	if _, err := a.Generate(context.Background(), &Input{Prompt: "one", Conv: conv}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := a.Generate(context.Background(), &Input{Prompt: "two", Conv: conv}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if conv.Len() != 4 {
		t.Errorf("conversation length = %d, want 4", conv.Len())
	}
}
