// Package workspace manages the Fundi runtime directory structure.
// All runtime state (history database, executor scratch directories, saved
// scripts, logs) is consolidated under a single workspace root.
//
// Default workspace: ~/.fundi/workspace (configurable via config or
// FUNDI_WORKSPACE env var).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Default workspace location relative to the user home directory.
const defaultRelativePath = ".fundi/workspace"

// Workspace manages all Fundi runtime directories and derived paths.
type Workspace struct {
	Root string

	mu      sync.Mutex
	created map[string]bool // tracks which directories have been ensured
}

// New creates a Workspace rooted at the given path. It resolves ~ to the
// user's home directory and creates the root directory if needed.
func New(root string) (*Workspace, error) {
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}

	w := &Workspace{
		Root:    resolved,
		created: make(map[string]bool),
	}

	if err := w.ensureDir(resolved, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	return w, nil
}

// Default creates a Workspace at ~/.fundi/workspace.
func Default() (*Workspace, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return New(filepath.Join(home, defaultRelativePath))
}

// ScratchDir returns <root>/scratch/. Each executor creates its private
// working directory under it.
func (w *Workspace) ScratchDir() string {
	return w.dir("scratch")
}

// SavedDir returns <root>/saved/. Default destination for saved scripts.
func (w *Workspace) SavedDir() string {
	return w.dir("saved")
}

// LogsDir returns <root>/logs/. Application log files.
func (w *Workspace) LogsDir() string {
	return w.dir("logs")
}

// HistoryDBPath returns <root>/history.db, the default SQLite location.
func (w *Workspace) HistoryDBPath() string {
	return filepath.Join(w.Root, "history.db")
}

// ModelConfigPath returns <root>/model, which pins the active model name
// across sessions.
func (w *Workspace) ModelConfigPath() string {
	return filepath.Join(w.Root, "model")
}

// EnsureAll creates all standard workspace directories.
func (w *Workspace) EnsureAll() error {
	for _, d := range []string{w.ScratchDir(), w.SavedDir(), w.LogsDir()} {
		if err := w.ensureDir(d, 0750); err != nil {
			return err
		}
	}
	return nil
}

// dir returns an absolute path under the workspace root and ensures the
// directory exists.
func (w *Workspace) dir(name string) string {
	p := filepath.Join(w.Root, name)
	_ = w.ensureDir(p, 0750)
	return p
}

// ensureDir creates a directory if it doesn't already exist. Uses a cache to
// avoid redundant stat/mkdir calls.
func (w *Workspace) ensureDir(path string, perm os.FileMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created[path] {
		return nil
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	w.created[path] = true
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
