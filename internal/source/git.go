package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/logfields"
)

// Remote describes a git repository holding source documents.
type Remote struct {
	URL    string
	Branch string
	Token  string // optional HTTPS token
	Depth  int
}

// Fetch clones remote into dir, or pulls when dir already holds a clone,
// and returns the checked-out commit hash.
func Fetch(ctx context.Context, logger *slog.Logger, remote Remote, dir string) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var auth transport.AuthMethod
	if remote.Token != "" {
		auth = &http.BasicAuth{Username: "token", Password: remote.Token}
	}

	var repo *git.Repository
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		repo, err = git.PlainOpen(dir)
		if err != nil {
			return "", fetchError("failed to open source repository", remote, err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return "", fetchError("failed to open worktree", remote, err)
		}
		opts := &git.PullOptions{RemoteName: "origin", Auth: auth}
		if remote.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(remote.Branch)
			opts.SingleBranch = true
		}
		err = wt.PullContext(ctx, opts)
		switch {
		case errors.Is(err, git.NoErrAlreadyUpToDate):
			logger.Debug("Source repository already up to date", logfields.Path(dir))
		case err != nil:
			return "", transientFetchError("failed to pull source repository", remote, err)
		}
	} else {
		opts := &git.CloneOptions{URL: remote.URL, Auth: auth, Depth: remote.Depth}
		if remote.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(remote.Branch)
			opts.SingleBranch = true
		}
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
		if err != nil {
			return "", transientFetchError("failed to clone source repository", remote, err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fetchError("failed to resolve HEAD", remote, err)
	}
	commit := head.Hash().String()
	logger.Info("Source repository ready", logfields.Path(dir), slog.String("commit", commit[:8]))
	return commit, nil
}

func fetchError(msg string, remote Remote, err error) error {
	return fetchErrorBuilder(msg, remote, err).Build()
}

// transientFetchError marks network operations as worth retrying, unless
// the remote rejected our credentials.
func transientFetchError(msg string, remote Remote, err error) error {
	b := fetchErrorBuilder(msg, remote, err)
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrRepositoryNotFound) {
		return b.UserAction().Build()
	}
	return b.Retryable().Build()
}

func fetchErrorBuilder(msg string, remote Remote, err error) *ferrors.ErrorBuilder {
	return ferrors.SourceError(msg).
		WithCause(err).
		WithContext("url", remote.URL).
		WithContext("branch", remote.Branch)
}
