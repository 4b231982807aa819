// Package testutil isolates tests from the host's fstarup state.
package testutil

import (
	"path/filepath"
	"testing"
)

// SetupTestEnv redirects every path and environment knob fstarup reads
// to a per-test temp directory, so tests never observe:
// - the developer's real ~/.fstarup installations
// - a real ~/.config/fstarup/config.lua
// - FSTARUP_* overrides exported in the developer's shell
//
// It returns the temp directory; cleanup is handled by t.TempDir().
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))

	// Blank, not unset: the config layer treats empty as absent.
	t.Setenv("FSTARUP_GITHUB_TOKEN", "")
	t.Setenv("FSTARUP_MIRROR", "")
	t.Setenv("FSTARUP_SKIP_KARAMEL", "")
	t.Setenv("FSTARUP_SKIP_UNQUARANTINE", "")

	return tmpDir
}
