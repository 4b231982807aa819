// Package artifact resolves, downloads, verifies, and extracts the
// archives the installer needs: prebuilt F* releases, the F* source
// tarball on source-build platforms, and the standalone Z3 solver.
//
// Resolution is deterministic: every descriptor carries a checksum pinned
// in the version manifest, and the package never substitutes a checksum
// obtained from a live query.
package artifact

// Kind distinguishes what a descriptor points at.
type Kind int

const (
	// KindPrebuilt is a precompiled F* release archive.
	KindPrebuilt Kind = iota
	// KindSource is the F* source tarball for source-build platforms.
	KindSource
	// KindSolver is a standalone Z3 release archive.
	KindSolver
)

// String returns the human-readable name of the descriptor kind.
func (k Kind) String() string {
	switch k {
	case KindPrebuilt:
		return "prebuilt"
	case KindSource:
		return "source"
	case KindSolver:
		return "solver"
	default:
		return "unknown"
	}
}

// Descriptor is a fully pinned download: what to fetch and the exact
// sha256 it must hash to.
type Descriptor struct {
	Kind     Kind
	URL      string
	Checksum string
	// SignatureURL, when non-empty, points at a detached armored PGP
	// signature published for the artifact. Signature verification is
	// performed in addition to the checksum, never instead of it.
	SignatureURL string
}
