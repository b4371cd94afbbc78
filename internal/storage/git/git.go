// Implements a data directory repository using go-git (pure Go, no git binary dependency).

// Package git commits dataset files and pushes them to a remote.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// InjectTokenInURL injects an authentication token into a git remote URL.
// Supports GitHub (x-access-token) and GitLab (oauth2) URL patterns.
func InjectTokenInURL(remoteURL, token string) string {
	if token == "" {
		return remoteURL
	}
	switch {
	case strings.HasPrefix(remoteURL, "https://github.com"):
		return strings.Replace(remoteURL, "https://github.com", fmt.Sprintf("https://x-access-token:%s@github.com", token), 1)
	case strings.HasPrefix(remoteURL, "https://gitlab.com"):
		return strings.Replace(remoteURL, "https://gitlab.com", fmt.Sprintf("https://oauth2:%s@gitlab.com", token), 1)
	default:
		return remoteURL
	}
}

// Author identifies who made a change for git commits.
type Author struct {
	Name  string
	Email string
}

// Repo is a git repository rooted at the data directory.
type Repo struct {
	dir    string
	author Author
	repo   *gogit.Repository
	mu     sync.Mutex
}

// Open opens the repository in dir, initializing it when needed.
func Open(dir string, author Author) (*Repo, error) {
	if author.Name == "" {
		author.Name = "familyhub"
	}
	if author.Email == "" {
		author.Email = "familyhub@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet, initialize it.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = author.Name
		cfg.User.Email = author.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Repo{dir: dir, author: author, repo: repo}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Commit stages the files matching pattern and commits them.
//
// It returns false without error when nothing changed.
func (r *Repo) Commit(msg, pattern string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddGlob(pattern); err != nil {
		if errors.Is(err, gogit.ErrGlobNoMatches) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stage files: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	staged := false
	for _, s := range status {
		if s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return false, nil
	}

	now := time.Now()
	sig := &object.Signature{Name: r.author.Name, Email: r.author.Email, When: now}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// CommitCount returns the total number of commits in the repository.
func (r *Repo) CommitCount() (int, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return 0, nil //nolint:nilerr // no commits yet is not an error
	}
	defer iter.Close()

	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n, nil
}

// LastMessage returns the message of the HEAD commit.
func (r *Repo) LastMessage() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", err
	}
	return c.Message, nil
}

// SetRemote adds or updates a remote in the repository.
// If url is empty, the remote is removed.
func (r *Repo) SetRemote(name, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url == "" {
		err := r.repo.DeleteRemote(name)
		if errors.Is(err, gogit.ErrRemoteNotFound) {
			return nil
		}
		return err
	}
	if rem, err := r.repo.Remote(name); err == nil {
		if urls := rem.Config().URLs; len(urls) == 1 && urls[0] == url {
			return nil
		}
		// go-git has no set-url: delete and re-create.
		if err := r.repo.DeleteRemote(name); err != nil {
			return fmt.Errorf("failed to update remote: %w", err)
		}
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	return err
}

// Push pushes branch to a remote repository. An up-to-date remote is not an
// error.
func (r *Repo) Push(ctx context.Context, remoteName, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if branch == "" {
		ref, err := r.repo.Head()
		if err == nil {
			branch = ref.Name().Short()
		} else {
			branch = "master"
		}
	}
	remote, err := r.repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("failed to get remote: %w", err)
	}
	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = remote.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{refSpec},
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}
