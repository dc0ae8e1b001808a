// Package executor runs untrusted Python snippets as isolated child processes
// under a hard wall-clock timeout, with full output capture and outcome
// classification. Interactive input() calls are detected statically and
// satisfied through a prompt callback before any process is spawned.
//
// Every failure mode is converted into a structured Result — nothing escapes
// the executor boundary as an error except construction problems.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty programs.
	maxOutputBytes = 1 << 20 // 1 MB

	// codeFileName is the single-slot code file, overwritten per execution.
	codeFileName = "run_code.py"

	defaultTimeout    = 30 * time.Second
	defaultPythonPath = "python3"

	scratchPrefix = "fundi-exec-"
)

// Config configures the executor.
type Config struct {
	Timeout     time.Duration // Hard wall-clock deadline. Zero = 30s.
	PythonPath  string        // Interpreter binary. Empty = "python3".
	ScratchRoot string        // Parent for the scratch dir. Empty = system temp.
}

// Executor is a single-tenant execution sandbox. It owns a private scratch
// directory and allows at most one execution in flight at a time.
type Executor struct {
	timeout    time.Duration
	pythonPath string
	workDir    string
	logger     *slog.Logger

	ask AskFunc // nil = input() calls are left for the program's own stdin.

	mu   sync.Mutex
	last *Result
}

// New creates an Executor with a fresh private scratch directory.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = defaultPythonPath
	}

	workDir, err := os.MkdirTemp(cfg.ScratchRoot, scratchPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	return &Executor{
		timeout:    timeout,
		pythonPath: pythonPath,
		workDir:    workDir,
		logger:     logger,
	}, nil
}

// SetAskFunc installs the prompt callback used to satisfy detected input()
// calls. A nil callback disables static resolution.
func (e *Executor) SetAskFunc(fn AskFunc) { e.ask = fn }

// WorkDir returns the executor's private scratch directory.
func (e *Executor) WorkDir() string { return e.workDir }

// Timeout returns the configured wall-clock deadline.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// LastResult returns the most recent execution result, or nil before the
// first execution. Only the latest result is retained.
func (e *Executor) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Execute runs code in a fresh child process. Detected input() calls are
// resolved through the prompt callback first; a declined prompt yields
// OutcomeCancelled without spawning anything.
func (e *Executor) Execute(ctx context.Context, code string) *Result {
	return e.run(ctx, code, nil)
}

// ExecuteWithInput runs code with the given data piped to its standard
// input. Static input() resolution is bypassed — the program reads the
// supplied stream at runtime instead.
func (e *Executor) ExecuteWithInput(ctx context.Context, code, input string) *Result {
	return e.run(ctx, code, &input)
}

// ExecuteWithFile stages an external file into the scratch directory
// (preserving metadata) before executing, so the code can operate on a named
// artifact. A missing or unreadable source does not prevent execution.
func (e *Executor) ExecuteWithFile(ctx context.Context, code, path string) *Result {
	if path != "" {
		if err := e.stageFile(path); err != nil {
			e.logger.WarnContext(ctx, "staging file failed, executing without it",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
	return e.run(ctx, code, nil)
}

func (e *Executor) run(ctx context.Context, code string, input *string) *Result {
	// One execution in flight per executor — the scratch dir is a single slot.
	e.mu.Lock()
	defer e.mu.Unlock()

	// Resolve interactive input before touching the filesystem.
	if input == nil && e.ask != nil {
		if requests := DetectInputs(code); len(requests) > 0 {
			resolved, err := ResolveInputs(code, requests, e.ask)
			if err != nil {
				return e.record(&Result{
					Outcome:  OutcomeCancelled,
					Stderr:   "Cancelled by user",
					ExitCode: sentinelExitCode,
				})
			}
			code = resolved
		}
	}

	codeFile := filepath.Join(e.workDir, codeFileName)
	if err := os.WriteFile(codeFile, []byte(code), 0644); err != nil {
		return e.record(&Result{
			Outcome:  OutcomeInternalError,
			Stderr:   fmt.Sprintf("writing code file: %v", err),
			ExitCode: sentinelExitCode,
		})
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.pythonPath, codeFile)
	cmd.Dir = e.workDir
	cmd.Env = e.buildEnv()

	// The child runs in its own process group so that the deadline kills any
	// grandchildren it spawned, not just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID = kill the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if input != nil {
		cmd.Stdin = strings.NewReader(*input)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	e.logger.InfoContext(ctx, "executing code",
		slog.String("interpreter", e.pythonPath),
		slog.Int("code_size", len(code)),
		slog.Duration("timeout", e.timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := e.classify(runErr, execCtx, stdoutBuf.String(), stderrBuf.String(), elapsed)

	e.logger.InfoContext(ctx, "execution completed",
		slog.String("outcome", string(result.Outcome)),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("elapsed", elapsed),
	)

	return e.record(result)
}

// classify converts the raw process outcome into a structured Result.
func (e *Executor) classify(runErr error, execCtx context.Context, stdout, stderr string, elapsed time.Duration) *Result {
	if runErr == nil {
		return &Result{
			Outcome: OutcomeSuccess,
			Stdout:  stdout,
			Stderr:  stderr,
			Elapsed: elapsed,
		}
	}

	// Deadline overrun takes precedence: the kill makes Run return an error
	// that would otherwise look like a crash.
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return &Result{
			Outcome:  OutcomeTimeout,
			Stderr:   fmt.Sprintf("execution timed out after %s", e.timeout),
			Elapsed:  elapsed,
			ExitCode: sentinelExitCode,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &Result{
			Outcome:  OutcomeNonZeroExit,
			Stdout:   stdout,
			Stderr:   stderr,
			Elapsed:  elapsed,
			ExitCode: exitErr.ExitCode(),
		}
	}

	// Spawn or I/O failure unrelated to the executed code.
	return &Result{
		Outcome:  OutcomeInternalError,
		Stderr:   runErr.Error(),
		Elapsed:  elapsed,
		ExitCode: sentinelExitCode,
	}
}

func (e *Executor) record(r *Result) *Result {
	e.last = r
	return r
}

// buildEnv returns the inherited environment with Python overrides that
// disable bytecode caching and force UTF-8 text I/O.
func (e *Executor) buildEnv() []string {
	return append(os.Environ(),
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONIOENCODING=utf-8",
		"PYTHONUTF8=1",
	)
}

// stageFile copies path into the scratch directory, preserving permissions
// and modification time.
func (e *Executor) stageFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dest := filepath.Join(e.workDir, filepath.Base(path))
	if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
		return err
	}
	// Best effort — a failed timestamp copy is not worth aborting over.
	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	return nil
}

// SaveCode writes code verbatim to path, creating parent directories.
// Returns a user-facing message on success; failures are reported, never
// raised past this boundary as a panic.
func (e *Executor) SaveCode(code, path string) (string, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return fmt.Sprintf("Saved to %s", path), nil
}

// Cleanup removes the scratch directory. Best effort — it always runs at
// shutdown, so failures are swallowed.
func (e *Executor) Cleanup() {
	if err := os.RemoveAll(e.workDir); err != nil {
		e.logger.Warn("failed to remove scratch directory",
			slog.String("dir", e.workDir),
			slog.String("error", err.Error()),
		)
	}
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // Silently discard.
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
