package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// GitConfig configures a GitSource.
type GitConfig struct {
	// LocalPath is the working copy. It is cloned from URL when missing.
	LocalPath string

	// URL is the remote repository. Empty means LocalPath is used as is
	// and never pulled.
	URL string

	// Branch is the branch to read. Empty reads HEAD.
	Branch string

	// File is the policy card path relative to the repository root.
	File string

	// Auth is used for clone and pull.
	Auth GitAuth

	// Timeout bounds clone and pull operations. Default: 30s
	Timeout time.Duration

	// PollInterval is how often Watch checks for new commits. Default: 30s
	PollInterval time.Duration
}

// GitSource reads a policy card from a committed file in a git repository
// and records the commit as provenance. Uncommitted edits are ignored.
type GitSource struct {
	config GitConfig
	logger *slog.Logger

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewGitSource creates a git source.
func NewGitSource(config GitConfig) (*GitSource, error) {
	if config.LocalPath == "" {
		return nil, fmt.Errorf("git source requires a local path")
	}
	if config.File == "" {
		return nil, fmt.Errorf("git source requires a policy file path")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &GitSource{
		config: config,
		logger: slog.Default().With("component", "policy.source.git"),
	}, nil
}

// Load implements Source. With a remote configured the working copy is
// pulled first.
func (s *GitSource) Load(ctx context.Context) (*card.Document, *card.Provenance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(ctx); err != nil {
		return nil, nil, err
	}
	if s.config.URL != "" {
		if err := s.pull(ctx); err != nil {
			return nil, nil, err
		}
	}

	commit, err := s.head()
	if err != nil {
		return nil, nil, err
	}

	file, err := commit.File(filepath.ToSlash(s.config.File))
	if err != nil {
		return nil, nil, fmt.Errorf("policy file %q not found at %s: %w", s.config.File, commit.Hash, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %q: %w", s.config.File, err)
	}
	data := []byte(contents)

	doc, err := card.LoadBytes(data, s.String())
	if err != nil {
		return nil, nil, err
	}

	prov := provenance(s.String(), data)
	prov.Revision = commit.Hash.String()
	prov.Author = commit.Author.Name

	s.logger.Info("policy card loaded from git",
		"file", s.config.File,
		"revision", prov.Revision,
		"author", prov.Author,
		"policy", doc.Name,
	)
	return doc, prov, nil
}

// Revision returns the commit SHA currently selected by Branch or HEAD.
func (s *GitSource) Revision(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(ctx); err != nil {
		return "", err
	}
	if s.config.URL != "" {
		if err := s.pull(ctx); err != nil {
			return "", err
		}
	}
	commit, err := s.head()
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

// Watch polls the repository every PollInterval and calls onChange when the
// selected commit moves. It blocks until ctx is cancelled.
func (s *GitSource) Watch(ctx context.Context, onChange func()) error {
	last, err := s.Revision(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rev, err := s.Revision(ctx)
			if err != nil {
				s.logger.Error("git poll failed", "error", err)
				continue
			}
			if rev != last {
				s.logger.Info("policy repository changed", "from", last, "to", rev)
				last = rev
				onChange()
			}
		}
	}
}

func (s *GitSource) String() string {
	if s.config.URL != "" {
		return s.config.URL + "//" + s.config.File
	}
	return filepath.Join(s.config.LocalPath, s.config.File)
}

// open opens the working copy, cloning it first when a remote is set and
// the path holds no repository.
func (s *GitSource) open(ctx context.Context) error {
	if s.repo != nil {
		return nil
	}

	repo, err := gogit.PlainOpen(s.config.LocalPath)
	if err == nil {
		s.repo = repo
		return nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) || s.config.URL == "" {
		return fmt.Errorf("failed to open policy repository: %w", err)
	}

	auth, err := s.config.Auth.Method()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}
	if err := os.MkdirAll(s.config.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	opts := &gogit.CloneOptions{URL: s.config.URL, Auth: auth}
	if s.config.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.config.Branch)
		opts.SingleBranch = true
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	repo, err = gogit.PlainCloneContext(cloneCtx, s.config.LocalPath, false, opts)
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	s.logger.Info("policy repository cloned", "url", s.config.URL, "path", s.config.LocalPath)
	return nil
}

func (s *GitSource) pull(ctx context.Context) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := s.config.Auth.Method()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	opts := &gogit.PullOptions{RemoteName: "origin", Auth: auth}
	if s.config.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.config.Branch)
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := worktree.PullContext(pullCtx, opts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

func (s *GitSource) head() (*object.Commit, error) {
	var hash plumbing.Hash
	if s.config.Branch != "" {
		ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(s.config.Branch), true)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve branch %q: %w", s.config.Branch, err)
		}
		hash = ref.Hash()
	} else {
		ref, err := s.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to get HEAD: %w", err)
		}
		hash = ref.Hash()
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return commit, nil
}
