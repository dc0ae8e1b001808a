package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Scratch directories normally disappear through Executor.Cleanup, but a
// SIGKILLed process leaves them behind. The janitor sweeps those orphans on a
// cron schedule in long-running (serve) mode.

// DefaultSweepSpec runs the sweep at the top of every hour.
const DefaultSweepSpec = "0 * * * *"

// DefaultScratchTTL is how old an untouched scratch directory must be before
// the janitor removes it. Generous, so an in-flight execution is never swept.
const DefaultScratchTTL = 2 * time.Hour

// Janitor periodically removes stale executor scratch directories.
type Janitor struct {
	ws     *Workspace
	ttl    time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor creates a Janitor for the workspace's scratch directory.
// Zero ttl falls back to DefaultScratchTTL.
func NewJanitor(ws *Workspace, ttl time.Duration, logger *slog.Logger) *Janitor {
	if ttl <= 0 {
		ttl = DefaultScratchTTL
	}
	return &Janitor{
		ws:     ws,
		ttl:    ttl,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules sweeps with the given cron spec (empty = hourly) and runs
// until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if _, err := j.cron.AddFunc(spec, func() { j.Sweep() }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Debug("scratch janitor started", slog.String("spec", spec), slog.Duration("ttl", j.ttl))

	go func() {
		<-ctx.Done()
		j.cron.Stop()
	}()
	return nil
}

// Sweep removes scratch directories whose modification time is older than
// the TTL. Returns the number of directories removed.
func (j *Janitor) Sweep() int {
	scratch := j.ws.ScratchDir()
	entries, err := os.ReadDir(scratch)
	if err != nil {
		j.logger.Warn("reading scratch dir failed", slog.String("error", err.Error()))
		return 0
	}

	cutoff := time.Now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "fundi-exec-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(scratch, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("removing stale scratch dir failed",
				slog.String("dir", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("swept stale scratch directories", slog.Int("removed", removed))
	}
	return removed
}
