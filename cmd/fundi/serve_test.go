package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/fundi/internal/config"
)

func TestNewServeLogger(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{Workspace: root}

	logger, closeLog, err := newServeLogger(cfg)
	if err != nil {
		t.Fatalf("newServeLogger() error = %v", err)
	}
	defer closeLog()

	logger.Info("serve logger smoke", "addr", ":0")

	path := filepath.Join(root, "logs", "serve.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if !strings.Contains(string(data), "serve logger smoke") {
		t.Errorf("serve.log missing logged line, got %q", string(data))
	}
}
