package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/verifiedlabs/fstarup/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	tmpDir := testutil.SetupTestEnv(t)

	home := os.Getenv("HOME")
	if home != tmpDir {
		t.Errorf("HOME = %q, want %q", home, tmpDir)
	}
	if !filepath.IsAbs(home) {
		t.Errorf("HOME %q is not absolute", home)
	}

	for _, key := range []string{
		"FSTARUP_GITHUB_TOKEN",
		"FSTARUP_MIRROR",
		"FSTARUP_SKIP_KARAMEL",
		"FSTARUP_SKIP_UNQUARANTINE",
	} {
		if got := os.Getenv(key); got != "" {
			t.Errorf("%s = %q, want blank", key, got)
		}
	}
}

func TestSetupTestEnvIsolation(t *testing.T) {
	testutil.SetupTestEnv(t)
	dir1 := os.Getenv("HOME")

	t.Run("subtest", func(t *testing.T) {
		testutil.SetupTestEnv(t)
		if dir2 := os.Getenv("HOME"); dir1 == dir2 {
			t.Error("expected different temp directories for different test contexts")
		}
	})
}
