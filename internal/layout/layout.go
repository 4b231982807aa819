// Package layout knows the on-disk shape of a finished installation: the
// marker paths that certify a directory as an F* root, the fixed relative
// layout built on top of it, and the environment variables downstream
// tools need to use it.
//
// It also normalizes the divergent archive layouts upstream releases have
// shipped over the years, so the rest of the installer can assume one
// canonical tree.
package layout

import (
	"os"
	"path/filepath"
)

// Marker paths, relative to an installation root. Their presence
// certifies the directory is a valid F* installation.
const (
	// MarkerExecutable is the primary marker: the F* binary itself.
	MarkerExecutable = "bin/fstar.exe"
	// MarkerLibDir is the secondary marker: the F* standard library.
	MarkerLibDir = "lib/fstar"
)

// KaramelBinary is the secondary-toolchain executable, relative to the
// KaRaMeL subdirectory.
const KaramelBinary = "krml"

// Layout is the fixed relative layout of a finished installation.
type Layout struct {
	Root       string // installation root
	BinDir     string // fstar.exe, bundled z3
	LibDir     string // F* library tree, relocated solver on source builds
	KaramelDir string // KaRaMeL checkout and build outputs
	OpamRoot   string // isolated opam root, private to this install
}

// New derives the layout for an installation root.
func New(root string) Layout {
	return Layout{
		Root:       root,
		BinDir:     filepath.Join(root, "bin"),
		LibDir:     filepath.Join(root, "lib"),
		KaramelDir: filepath.Join(root, "karamel"),
		OpamRoot:   filepath.Join(root, "opam"),
	}
}

// FStarExe returns the path of the primary binary.
func (l Layout) FStarExe() string {
	return filepath.Join(l.Root, MarkerExecutable)
}

// KrmlExe returns the path of the secondary-toolchain binary.
func (l Layout) KrmlExe() string {
	return filepath.Join(l.KaramelDir, KaramelBinary)
}

// KrmlLib returns the path of the KaRaMeL support library.
func (l Layout) KrmlLib() string {
	return filepath.Join(l.KaramelDir, "krmllib", "dist", "generic", "libkrmllib.a")
}

// KrmlInclude returns the KaRaMeL C include directory.
func (l Layout) KrmlInclude() string {
	return filepath.Join(l.KaramelDir, "include")
}

// hasMarkers reports whether dir carries at least one installation marker.
func hasMarkers(dir string) bool {
	if isExecutableFile(filepath.Join(dir, MarkerExecutable)) {
		return true
	}
	if info, err := os.Stat(filepath.Join(dir, MarkerLibDir)); err == nil && info.IsDir() {
		return true
	}
	return false
}

// isExecutableFile reports whether path is a regular file with any
// execute bit set.
func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
