package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs host detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for Linux distribution details.
//
// On Linux, if gopsutil fails to identify the distribution, the distro
// fields stay empty and detection still succeeds: remediation text then
// falls back to generic guidance instead of a package-manager command.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if runtime.GOOS == "linux" {
		plat, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			// Graceful fallback: OS/arch alone is enough to install.
			return info, nil
		}

		plat = normalizePlatform(plat)
		family = mapFamily(family, plat)
		version = normalizePlatform(version)

		if plat != "" {
			info.Platform = plat
			info.Family = family
			info.Version = version
		}
	}

	return info, nil
}
