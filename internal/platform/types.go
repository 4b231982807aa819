// Package platform derives the installer's platform key from the host OS
// and architecture, and detects Linux distribution details used to pick
// remediation commands for missing prerequisites.
//
// Key resolution is a pure function over (os, arch). Host detection uses
// gopsutil and degrades gracefully: when distro detection fails, the OS
// and architecture are still reported and remediation falls back to
// generic guidance.
package platform

import "context"

// Linux distribution family constants.
// These represent canonical family names for grouping related distributions.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux (musl libc)
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains detected host platform information.
type Info struct {
	OS       string // "linux", "darwin"
	Arch     string // "amd64", "arm64" (normalized)
	ArchRaw  string // original GOARCH value
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Family   string // canonical family (e.g. "debian", "rhel")
	Version  string // distro version (Linux only, e.g. "22.04")
}

// Key returns the installer platform key for this host.
func (i *Info) Key() (Key, error) {
	return Resolve(i.OS, i.Arch)
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && i.Arch == "arm64"
}

// IsMuslLibc returns true when the host uses musl instead of glibc.
// Alpine is the only musl distribution the installer recognizes.
func (i *Info) IsMuslLibc() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// Detector is the interface for host platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
