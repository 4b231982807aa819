package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// seedRepo creates a repository with two commits and returns their
// hashes, oldest first.
func seedRepo(t *testing.T, dir string) (string, string) {
	t.Helper()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}

	commit := func(name, content, msg string) string {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		hash, err := wt.Commit(msg, &gogit.CommitOptions{
			Author: &object.Signature{Name: "Builder", Email: "builder@example.com", When: time.Now()},
		})
		if err != nil {
			t.Fatalf("commit %s: %v", msg, err)
		}
		return hash.String()
	}

	first := commit("Makefile", "all:\n\ttrue\n", "initial build rules")
	second := commit("Makefile", "all:\n\ttrue\n\nkrml:\n\ttrue\n", "add krml target")
	return first, second
}

func TestAcquireSourceChecksOutPin(t *testing.T) {
	upstream := t.TempDir()
	pinned, _ := seedRepo(t, upstream)

	dest := filepath.Join(t.TempDir(), "karamel")
	if err := AcquireSource(context.Background(), upstream, pinned, dest); err != nil {
		t.Fatalf("AcquireSource failed: %v", err)
	}

	// The pinned revision's content is what landed on disk.
	data, err := os.ReadFile(filepath.Join(dest, "Makefile"))
	if err != nil {
		t.Fatalf("read checkout: %v", err)
	}
	if string(data) != "all:\n\ttrue\n" {
		t.Errorf("checkout content = %q, want the pinned revision", data)
	}

	if err := VerifyPinned(dest, pinned); err != nil {
		t.Errorf("VerifyPinned after acquisition: %v", err)
	}
}

func TestVerifyPinnedOneCommitAhead(t *testing.T) {
	upstream := t.TempDir()
	pinned, head := seedRepo(t, upstream)

	// The repository's HEAD sits one commit ahead of the pin.
	err := VerifyPinned(upstream, pinned)
	if err == nil {
		t.Fatal("expected commit pin mismatch")
	}
	if !stackerr.IsKind(err, stackerr.KindIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
	// And the matching pin passes.
	if err := VerifyPinned(upstream, head); err != nil {
		t.Errorf("matching pin should verify: %v", err)
	}
}

func TestVerifyPinnedSingleCharacterDifference(t *testing.T) {
	upstream := t.TempDir()
	_, head := seedRepo(t, upstream)

	// Flip one hex digit of the pin.
	altered := []byte(head)
	if altered[0] == 'a' {
		altered[0] = 'b'
	} else {
		altered[0] = 'a'
	}

	err := VerifyPinned(upstream, string(altered))
	if !stackerr.IsKind(err, stackerr.KindIntegrity) {
		t.Errorf("a single differing character must fail verification, got %v", err)
	}
}

func TestAcquireSourceBadPin(t *testing.T) {
	upstream := t.TempDir()
	seedRepo(t, upstream)

	dest := filepath.Join(t.TempDir(), "karamel")
	err := AcquireSource(context.Background(), upstream, "0123456789abcdef0123456789abcdef01234567", dest)
	if err == nil {
		t.Fatal("expected failure for unreachable pinned commit")
	}
}

func TestAcquireSourceUnreachableRepo(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "karamel")
	err := AcquireSource(context.Background(), filepath.Join(t.TempDir(), "absent"), "deadbeef", dest)
	if !stackerr.IsKind(err, stackerr.KindNetwork) {
		t.Errorf("unreachable repository should be a network error, got %v", err)
	}
}
