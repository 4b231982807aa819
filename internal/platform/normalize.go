package platform

import (
	"fmt"
	"strings"
)

// familyMap maps distribution identifiers to their canonical family names.
// Both the family string and the platform ID reported by gopsutil are
// consulted, since some distributions report themselves as the family.
var familyMap = map[string]string{
	"debian":    FamilyDebian,
	"ubuntu":    FamilyDebian,
	"rhel":      FamilyRHEL,
	"centos":    FamilyRHEL,
	"rocky":     FamilyRHEL,
	"almalinux": FamilyRHEL,
	"fedora":    FamilyFedora,
	"suse":      FamilySUSE,
	"opensuse":  FamilySUSE,
	"arch":      FamilyArch,
	"manjaro":   FamilyArch,
	"alpine":    FamilyAlpine,
}

// normalizeArch converts GOARCH values to normalized architecture names.
// Only amd64 and arm64 hosts are supported.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (amd64 and arm64 only)", arch)
	}
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps a distribution family (or, failing that, the platform ID)
// to a canonical family name.
func mapFamily(family, platformID string) string {
	if canonical, ok := familyMap[normalizePlatform(family)]; ok {
		return canonical
	}
	if canonical, ok := familyMap[normalizePlatform(platformID)]; ok {
		return canonical
	}
	return FamilyUnknown
}
