package executor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newShellExecutor builds an executor that interprets the code file with sh,
// keeping most tests independent of a Python installation.
func newShellExecutor(t *testing.T, timeout time.Duration) *Executor {
	t.Helper()
	e, err := New(Config{
		Timeout:     timeout,
		PythonPath:  "sh",
		ScratchRoot: t.TempDir(),
	}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Cleanup)
	return e
}

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}
	return path
}

func TestExecuteSuccess(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	res := e.Execute(context.Background(), "echo hello")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (stderr: %q)", res.Outcome, res.Stderr)
	}
	if !res.Success() {
		t.Error("Success() = false for exit 0")
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("stdout = %q, want hello", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	res := e.Execute(context.Background(), "echo oops >&2\nexit 3")
	if res.Outcome != OutcomeNonZeroExit {
		t.Fatalf("outcome = %s, want nonzero_exit", res.Outcome)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q, want diagnostic", res.Stderr)
	}
	if !res.Outcome.Retryable() {
		t.Error("nonzero_exit should be retryable")
	}
}

func TestExecuteTimeout(t *testing.T) {
	timeout := 300 * time.Millisecond
	e := newShellExecutor(t, timeout)

	start := time.Now()
	res := e.Execute(context.Background(), "sleep 10")
	took := time.Since(start)

	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", res.Outcome)
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 sentinel", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("stderr = %q, want timeout message", res.Stderr)
	}
	// Elapsed reflects time-to-kill, roughly the deadline.
	if res.Elapsed < timeout/2 || res.Elapsed > timeout+2*time.Second {
		t.Errorf("elapsed = %s, want ~%s", res.Elapsed, timeout)
	}
	if took > 5*time.Second {
		t.Errorf("Execute blocked for %s after deadline", took)
	}
}

func TestExecuteInternalError(t *testing.T) {
	e, err := New(Config{
		PythonPath:  "/nonexistent/interpreter",
		ScratchRoot: t.TempDir(),
	}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Cleanup)

	res := e.Execute(context.Background(), "print(1)")
	if res.Outcome != OutcomeInternalError {
		t.Fatalf("outcome = %s, want internal_error", res.Outcome)
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 sentinel", res.ExitCode)
	}
	if res.Stderr == "" {
		t.Error("stderr should carry the spawn failure")
	}
}

func TestExecuteCancelledBeforeSpawn(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)
	e.SetAskFunc(func(string) (string, bool) { return "", false })

	res := e.Execute(context.Background(), `name = input("Name: ")`)
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", res.Outcome)
	}
	if res.Stdout != "" {
		t.Errorf("stdout = %q, want empty", res.Stdout)
	}
	if res.Stderr != "Cancelled by user" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.Elapsed != 0 {
		t.Errorf("elapsed = %s, want 0 (no process spawned)", res.Elapsed)
	}
	// No code file should have been written.
	if _, err := os.Stat(filepath.Join(e.WorkDir(), codeFileName)); !os.IsNotExist(err) {
		t.Error("code file written despite cancellation")
	}
	if res.Outcome.Retryable() {
		t.Error("cancelled must not be retryable")
	}
}

func TestExecuteWithInputBypassesResolution(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)
	e.SetAskFunc(func(string) (string, bool) {
		t.Fatal("callback must not run when stdin data is supplied")
		return "", false
	})

	// The shell script reads stdin itself; "input(" in a comment would
	// otherwise trigger detection.
	res := e.ExecuteWithInput(context.Background(), "# input(\"x\")\nread line\necho got $line", "ping\n")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (stderr: %q)", res.Outcome, res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "got ping" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestExecuteOverwritesCodeSlot(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	e.Execute(context.Background(), "echo one")
	e.Execute(context.Background(), "echo two")

	data, err := os.ReadFile(filepath.Join(e.WorkDir(), codeFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "echo two" {
		t.Errorf("code file = %q, want latest code only", string(data))
	}
}

func TestLastResult(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	if e.LastResult() != nil {
		t.Error("LastResult before any execution should be nil")
	}
	res := e.Execute(context.Background(), "echo x")
	if e.LastResult() != res {
		t.Error("LastResult should return the most recent result")
	}
}

func TestExecuteWithFileStagesArtifact(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	src := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(src, []byte("payload"), 0640); err != nil {
		t.Fatal(err)
	}

	res := e.ExecuteWithFile(context.Background(), "cat data.txt", src)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (stderr: %q)", res.Outcome, res.Stderr)
	}
	if res.Stdout != "payload" {
		t.Errorf("stdout = %q, want staged file contents", res.Stdout)
	}

	info, err := os.Stat(filepath.Join(e.WorkDir(), "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("staged file mode = %o, want 0640", info.Mode().Perm())
	}
}

func TestExecuteWithFileMissingSource(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	res := e.ExecuteWithFile(context.Background(), "echo ran", filepath.Join(t.TempDir(), "missing.txt"))
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("execution should proceed without the staged file, got %s", res.Outcome)
	}
}

func TestSaveCode(t *testing.T) {
	e := newShellExecutor(t, 10*time.Second)

	dest := filepath.Join(t.TempDir(), "nested", "dir", "out.py")
	code := "print('saved')\n"

	msg, err := e.SaveCode(code, dest)
	if err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if !strings.Contains(msg, dest) {
		t.Errorf("message %q should name the destination", msg)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != code {
		t.Errorf("saved bytes = %q, want %q", string(data), code)
	}
}

func TestCleanupRemovesScratchDir(t *testing.T) {
	e, err := New(Config{PythonPath: "sh", ScratchRoot: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	dir := e.WorkDir()
	e.Cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("scratch dir still exists after Cleanup")
	}
}

// --- Python end-to-end coverage (skipped when python3 is absent) ---

func TestPythonExecuteMatchesInterpreter(t *testing.T) {
	py := requirePython(t)
	e, err := New(Config{PythonPath: py, ScratchRoot: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Cleanup)

	res := e.Execute(context.Background(), "print(2 + 2)")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (stderr: %q)", res.Outcome, res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "4" {
		t.Errorf("stdout = %q, want 4", res.Stdout)
	}
}

func TestPythonInputResolution(t *testing.T) {
	py := requirePython(t)
	e, err := New(Config{PythonPath: py, ScratchRoot: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Cleanup)
	e.SetAskFunc(func(prompt string) (string, bool) {
		if prompt != "Name: " {
			t.Errorf("prompt = %q, want Name: ", prompt)
		}
		return "Ada", true
	})

	res := e.Execute(context.Background(), "name = input(\"Name: \")\nprint(f\"Hello {name}\")")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (stderr: %q)", res.Outcome, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "Ada") {
		t.Errorf("stdout = %q, want captured value", res.Stdout)
	}
}

func TestPythonSyntaxErrorSurfacesAsNonZeroExit(t *testing.T) {
	py := requirePython(t)
	e, err := New(Config{PythonPath: py, ScratchRoot: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Cleanup)

	res := e.Execute(context.Background(), "def broken(:\n    pass")
	if res.Outcome != OutcomeNonZeroExit {
		t.Fatalf("outcome = %s, want nonzero_exit", res.Outcome)
	}
	if !strings.Contains(res.Stderr, "SyntaxError") {
		t.Errorf("stderr = %q, want SyntaxError diagnostic", res.Stderr)
	}
}
