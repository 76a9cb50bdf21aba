package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/utils"
)

// Sync clones url into dir, or fast-forwards an existing clone
func Sync(ctx context.Context, url, dir string) error {
	if url == "" {
		return fmt.Errorf("no catalog url configured")
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return clone(ctx, url, dir)
	}
	if err != nil {
		return fmt.Errorf("failed to open catalog repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get catalog worktree: %w", err)
	}

	logrus.Infof("Updating catalog in %s", dir)
	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName: git.DefaultRemoteName,
		Depth:      1,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull catalog: %w", err)
	}
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		logrus.Info("Catalog is already up to date")
	}
	return nil
}

func clone(ctx context.Context, url, dir string) error {
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}

	logrus.Infof("Cloning catalog %s into %s", url, dir)
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		return fmt.Errorf("failed to clone catalog: %w", err)
	}
	return nil
}
