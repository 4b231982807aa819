package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// Normalize moves the contents of actualRoot up into installPath so the
// markers end up at their expected relative locations.
//
// It is a no-op when actualRoot equals installPath, which also makes it
// idempotent: a second call against an already-normalized tree succeeds
// immediately. After moving, the primary marker is re-verified and the
// now-empty source directory chain is removed.
func Normalize(installPath, actualRoot string) error {
	installPath = filepath.Clean(installPath)
	actualRoot = filepath.Clean(actualRoot)

	if actualRoot == installPath {
		return nil
	}
	if !strings.HasPrefix(actualRoot, installPath+string(os.PathSeparator)) {
		return stackerr.New(stackerr.KindStructure,
			"actual root %s is not under install path %s", actualRoot, installPath)
	}

	entries, err := os.ReadDir(actualRoot)
	if err != nil {
		return stackerr.Wrap(stackerr.KindStructure, err, "read actual root %s", actualRoot)
	}
	for _, entry := range entries {
		src := filepath.Join(actualRoot, entry.Name())
		dst := filepath.Join(installPath, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return stackerr.Wrap(stackerr.KindStructure, err, "move %s into install path", entry.Name())
		}
	}

	if !isExecutableFile(filepath.Join(installPath, MarkerExecutable)) {
		return stackerr.New(stackerr.KindStructure,
			"marker %s missing after normalizing %s", MarkerExecutable, installPath)
	}

	if err := removeEmptyChain(installPath, actualRoot); err != nil {
		return fmt.Errorf("remove emptied directories: %w", err)
	}
	return nil
}

// removeEmptyChain removes actualRoot and any intermediate directories up
// to (excluding) installPath, stopping at the first non-empty one.
func removeEmptyChain(installPath, dir string) error {
	for dir != installPath && strings.HasPrefix(dir, installPath) {
		if err := os.Remove(dir); err != nil {
			if isDirNotEmpty(err) {
				return nil
			}
			return err
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// isDirNotEmpty reports whether err is the "directory not empty" rename
// family of errors, which ends the cleanup walk without failing it.
func isDirNotEmpty(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not empty")
}
