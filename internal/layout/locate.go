package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// maxSearchDepth bounds the fallback marker search. Release archives have
// never nested the root more than a few levels down.
const maxSearchDepth = 4

// candidatePrefixes returns the prioritized list of directory prefixes an
// extracted archive may have placed the root under. The empty prefix
// (the install path itself) is always tried first.
func candidatePrefixes(releaseTag string) []string {
	prefixes := []string{"", "fstar"}
	if releaseTag != "" {
		prefixes = append(prefixes,
			"fstar-"+releaseTag,
			"fstar-"+strings.TrimPrefix(releaseTag, "v"),
		)
	}
	return prefixes
}

// FindRoot discovers the actual installation root under installPath.
//
// Fast path: each candidate prefix is checked for the marker paths in
// order; the first hit wins. Slow path: a bounded-depth walk looks for
// the marker executable anywhere under the tree and derives the root by
// trimming the marker's suffix. If both fail, the error includes a
// listing of installPath to help diagnose the unexpected archive shape.
//
// The second return value reports whether the root already is the
// install path (nothing to normalize).
func FindRoot(installPath, releaseTag string) (string, bool, error) {
	for _, prefix := range candidatePrefixes(releaseTag) {
		candidate := filepath.Join(installPath, prefix)
		if hasMarkers(candidate) {
			return candidate, candidate == installPath, nil
		}
	}

	if root, ok := searchForMarker(installPath); ok {
		return root, root == installPath, nil
	}

	return "", false, stackerr.New(stackerr.KindStructure,
		"no F* installation markers found under %s (looked for %s and %s); directory contains: %s",
		installPath, MarkerExecutable, MarkerLibDir, describeDir(installPath))
}

// searchForMarker walks installPath to a bounded depth looking for the
// marker executable and derives the root from its location.
func searchForMarker(installPath string) (string, bool) {
	markerSuffix := filepath.FromSlash(MarkerExecutable)
	var found string

	filepath.WalkDir(installPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(installPath, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if depth(rel) >= maxSearchDepth {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, string(os.PathSeparator)+markerSuffix) && isExecutableFile(path) {
			found = strings.TrimSuffix(path, string(os.PathSeparator)+markerSuffix)
			return fs.SkipAll
		}
		return nil
	})

	return found, found != ""
}

// depth counts path components in a relative path ("." is depth zero).
func depth(rel string) int {
	if rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}

// describeDir renders a short sorted listing for error messages.
func describeDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}
	if len(entries) == 0 {
		return "(empty)"
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
