package syncsvc

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruel/familyhub/internal/config"
	"github.com/maruel/familyhub/internal/storage/git"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not installed")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync_data.sh")
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScript_Missing(t *testing.T) {
	s := &Script{Path: filepath.Join(t.TempDir(), "nope.sh")}
	if s.Run(context.Background(), "x") {
		t.Error("Run() = true for a missing script")
	}
}

func TestScript_Run(t *testing.T) {
	requireBash(t)
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"success", "exit 0", true},
		{"failure", "echo boom >&2; exit 3", false},
		{"syntax error", "if then fi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Script{Path: writeScript(t, tt.body), Timeout: 10 * time.Second}
			if got := s.Run(context.Background(), "test"); got != tt.want {
				t.Errorf("Run() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScript_Environment(t *testing.T) {
	requireBash(t)
	path := writeScript(t, `echo "$FAMILYHUB_SYNC_REASON" > reason.txt`)
	s := &Script{Path: path, Timeout: 10 * time.Second}
	if !s.Run(context.Background(), "POST /save/compras") {
		t.Fatal("Run() = false")
	}
	// The script runs from its own directory.
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "reason.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(raw)); got != "POST /save/compras" {
		t.Errorf("reason = %q", got)
	}
}

func TestScript_Timeout(t *testing.T) {
	requireBash(t)
	s := &Script{Path: writeScript(t, "sleep 30"), Timeout: 200 * time.Millisecond}
	start := time.Now()
	if s.Run(context.Background(), "slow") {
		t.Error("Run() = true for a timed out script")
	}
	if d := time.Since(start); d > 10*time.Second {
		t.Errorf("Run() took %v, timeout not enforced", d)
	}
}

func TestScript_DetachedFromRequest(t *testing.T) {
	requireBash(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Script{Path: writeScript(t, "exit 0"), Timeout: 10 * time.Second}
	if !s.Run(ctx, "x") {
		t.Error("Run() = false, a canceled request must not abort the sync")
	}
}

func TestGit_Run(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.Open(dir, git.Author{})
	if err != nil {
		t.Fatal(err)
	}
	g := &Git{Repo: repo}
	// Nothing to commit is still a successful sync.
	if !g.Run(context.Background(), "nothing") {
		t.Error("Run() = false on an empty directory")
	}
	if err := os.WriteFile(filepath.Join(dir, "compras.json"), []byte("[]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !g.Run(context.Background(), "POST /save/compras") {
		t.Fatal("Run() = false")
	}
	msg, err := repo.LastMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msg != "POST /save/compras" {
		t.Errorf("commit message = %q", msg)
	}
}

func TestGit_PushFailure(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.Open(dir, git.Author{})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "viagem.json"), []byte("[]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The remote name is not configured in the repository.
	g := &Git{Repo: repo, Remote: "origin", Timeout: 5 * time.Second}
	if g.Run(context.Background(), "x") {
		t.Error("Run() = true with an unusable remote")
	}
	// The commit still happened locally.
	if n, _ := repo.CommitCount(); n != 1 {
		t.Errorf("CommitCount() = %d, want 1", n)
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	s, err := New(&config.Sync{Mode: config.SyncScript, Script: "x.sh", Timeout: time.Second}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if sc, ok := s.(*Script); !ok || sc.Path != "x.sh" || sc.Timeout != time.Second {
		t.Errorf("New(script) = %#v", s)
	}

	s, err = New(&config.Sync{Mode: config.SyncNone}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Run(context.Background(), "x") {
		t.Error("Nop.Run() = true")
	}

	s, err = New(&config.Sync{Mode: config.SyncGit, Remote: "https://github.com/a/b.git", Token: "tok"}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if g, ok := s.(*Git); !ok || g.Remote != "origin" {
		t.Errorf("New(git) = %#v", s)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Errorf("repository not initialized: %v", err)
	}

	if _, err := New(&config.Sync{Mode: "rsync"}, dir); err == nil {
		t.Error("New() with an unknown mode should fail")
	}
}
