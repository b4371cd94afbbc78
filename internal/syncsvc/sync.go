// Runs the post-write synchronization of the data directory.

// Package syncsvc propagates dataset changes after each successful write.
//
// A Syncer never fails the request that triggered it: failures are logged and
// reported as false.
package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maruel/familyhub/internal/config"
	"github.com/maruel/familyhub/internal/storage/git"
)

// DefaultTimeout bounds a single sync run when none is configured.
const DefaultTimeout = 30 * time.Second

// Syncer propagates the data directory somewhere else.
type Syncer interface {
	// Run synchronizes and reports whether it ran successfully. msg describes
	// the write that triggered it.
	Run(ctx context.Context, msg string) bool
}

// New returns the Syncer selected by cfg for the data directory dataDir.
func New(cfg *config.Sync, dataDir string) (Syncer, error) {
	switch cfg.Mode {
	case config.SyncScript:
		return &Script{Path: cfg.Script, Timeout: cfg.Timeout}, nil
	case config.SyncGit:
		repo, err := git.Open(dataDir, git.Author{})
		if err != nil {
			return nil, err
		}
		g := &Git{Repo: repo, Branch: cfg.Branch, Timeout: cfg.Timeout}
		if cfg.Remote != "" {
			g.Remote = "origin"
			if err := repo.SetRemote(g.Remote, git.InjectTokenInURL(cfg.Remote, cfg.Token)); err != nil {
				return nil, fmt.Errorf("failed to set remote: %w", err)
			}
		}
		return g, nil
	case config.SyncNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown sync mode: %q", cfg.Mode)
	}
}

// Nop never syncs.
type Nop struct{}

// Run implements Syncer.
func (Nop) Run(context.Context, string) bool {
	return false
}

// Script runs an external shell script with bash.
//
// A missing script is not an error; Run returns false. Runs are serialized.
type Script struct {
	Path    string
	Timeout time.Duration

	mu sync.Mutex
}

// Run implements Syncer.
//
// The script is NOT tied to the HTTP request's cancellation, so a client
// disconnect does not abort it; it is killed after Timeout.
func (s *Script) Run(ctx context.Context, msg string) bool {
	if _, err := os.Stat(s.Path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "Sync script unavailable", "path", s.Path, "err", err)
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	abs, err := filepath.Abs(s.Path)
	if err != nil {
		slog.ErrorContext(ctx, "Sync error", "path", s.Path, "err", err)
		return false
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, "bash", abs) //nolint:gosec // G204: script path comes from configuration
	cmd.Dir = filepath.Dir(abs)
	cmd.Env = append(os.Environ(), "FAMILYHUB_SYNC_REASON="+msg)
	// Grandchildren may keep the output pipe open after bash is killed.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		slog.ErrorContext(ctx, "Sync error", "path", s.Path, "err", err, "output", strings.TrimSpace(string(out)))
		return false
	}
	slog.DebugContext(ctx, "Sync done", "path", s.Path, "duration", time.Since(start).Round(time.Millisecond))
	return true
}

// Git commits the dataset files of a repository and optionally pushes them.
type Git struct {
	Repo *git.Repo
	// Remote is the remote name to push to. Empty means commit only.
	Remote  string
	Branch  string
	Timeout time.Duration
}

// Run implements Syncer.
func (g *Git) Run(ctx context.Context, msg string) bool {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	changed, err := g.Repo.Commit(msg, "*.json")
	if err != nil {
		slog.ErrorContext(ctx, "Sync commit failed", "err", err)
		return false
	}
	if g.Remote == "" {
		return true
	}
	if err := g.Repo.Push(ctx, g.Remote, g.Branch); err != nil {
		slog.ErrorContext(ctx, "Sync push failed", "remote", g.Remote, "changed", changed, "err", err)
		return false
	}
	return true
}
