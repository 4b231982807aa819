package pipeline

import (
	"context"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// SourceFunc acquires a repository at a pinned commit into destDir.
type SourceFunc func(ctx context.Context, repoURL, commit, destDir string) error

// AcquireSource clones repoURL with submodules, checks out the pinned
// commit, syncs submodules recursively, and verifies the resolved
// revision matches the pin exactly. Any mismatch is fatal: no retry, no
// partial continuation.
func AcquireSource(ctx context.Context, repoURL, commit, destDir string) error {
	repo, err := gogit.PlainCloneContext(ctx, destDir, false, &gogit.CloneOptions{
		URL:               repoURL,
		RecurseSubmodules: gogit.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		return stackerr.Wrap(stackerr.KindNetwork, err, "clone %s", repoURL)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "open worktree of %s", destDir)
	}

	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(commit)}); err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "checkout pinned commit %s", commit)
	}

	submodules, err := worktree.Submodules()
	if err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "list submodules of %s", destDir)
	}
	if err := submodules.Update(&gogit.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: gogit.DefaultSubmoduleRecursionDepth,
	}); err != nil {
		return stackerr.Wrap(stackerr.KindNetwork, err, "sync submodules of %s", destDir)
	}

	return VerifyPinned(destDir, commit)
}

// VerifyPinned checks that the repository at dir resolves exactly to the
// pinned commit. Equality is an exact string match on the full hash: a
// single differing character invalidates the build.
func VerifyPinned(dir, commit string) error {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "open repository %s", dir)
	}
	head, err := repo.Head()
	if err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "resolve HEAD of %s", dir)
	}
	if resolved := head.Hash().String(); resolved != commit {
		return stackerr.New(stackerr.KindIntegrity,
			"commit pin mismatch in %s: resolved %s, pinned %s", dir, resolved, commit)
	}
	return nil
}
