package mcp

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/fundi/internal/executor"
)

func TestTargetPath(t *testing.T) {
	tests := []struct {
		name     string
		savedDir string
		path     string
		want     string
	}{
		{"relative anchored in saved dir", "/ws/saved", "out.py", filepath.Join("/ws/saved", "out.py")},
		{"nested relative anchored", "/ws/saved", "scripts/out.py", filepath.Join("/ws/saved", "scripts/out.py")},
		{"absolute passes through", "/ws/saved", "/tmp/out.py", "/tmp/out.py"},
		{"no saved dir leaves path alone", "", "out.py", "out.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := targetPath(tt.savedDir, tt.path); got != tt.want {
				t.Errorf("targetPath(%q, %q) = %q, want %q", tt.savedDir, tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatResult_Success(t *testing.T) {
	res := &executor.Result{
		Outcome: executor.OutcomeSuccess,
		Stdout:  "hello\n",
		Elapsed: 120 * time.Millisecond,
	}
	text := formatResult(res)
	if !strings.Contains(text, "outcome: success") {
		t.Errorf("missing outcome: %q", text)
	}
	if !strings.Contains(text, "hello") {
		t.Errorf("missing stdout: %q", text)
	}
	if strings.Contains(text, "--- stderr ---") {
		t.Errorf("empty stderr should be omitted: %q", text)
	}
}

func TestFormatResult_Failure(t *testing.T) {
	res := &executor.Result{
		Outcome:  executor.OutcomeNonZeroExit,
		Stderr:   "NameError: name 'x' is not defined",
		ExitCode: 1,
	}
	text := formatResult(res)
	if !strings.Contains(text, "outcome: nonzero_exit") {
		t.Errorf("missing outcome: %q", text)
	}
	if !strings.Contains(text, "exit code 1") {
		t.Errorf("missing exit code: %q", text)
	}
	if !strings.Contains(text, "NameError") {
		t.Errorf("missing stderr: %q", text)
	}
}
