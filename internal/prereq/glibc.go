package prereq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Minimum glibc the prebuilt OCaml toolchain and Z3 binaries link
// against.
const (
	minGlibcMajor = 2
	minGlibcMinor = 28
)

// checkLibc gates source builds on the host C runtime: musl hosts are an
// incompatible runtime family, and glibc hosts below the minimum version
// cannot run the toolchain the build produces.
func (c *Checker) checkLibc(ctx context.Context) error {
	if c.host.IsMuslLibc() {
		return fmt.Errorf("host C runtime is musl (%s); the toolchain requires glibc >= %d.%d",
			c.host.Platform, minGlibcMajor, minGlibcMinor)
	}

	out, err := c.runner.Output(ctx, "getconf", "GNU_LIBC_VERSION")
	if err != nil {
		return fmt.Errorf("host C runtime could not be identified (getconf GNU_LIBC_VERSION failed); glibc >= %d.%d is required",
			minGlibcMajor, minGlibcMinor)
	}

	family, major, minor, err := parseLibcVersion(out)
	if err != nil {
		return err
	}
	if family != "glibc" {
		return fmt.Errorf("host C runtime %q is not glibc; the toolchain requires glibc >= %d.%d",
			family, minGlibcMajor, minGlibcMinor)
	}
	if major < minGlibcMajor || (major == minGlibcMajor && minor < minGlibcMinor) {
		return fmt.Errorf("host glibc %d.%d is older than the required %d.%d",
			major, minor, minGlibcMajor, minGlibcMinor)
	}
	return nil
}

// parseLibcVersion parses getconf output of the form "glibc 2.35".
func parseLibcVersion(out string) (family string, major, minor int, err error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return "", 0, 0, fmt.Errorf("unrecognized C runtime version %q", out)
	}
	family = fields[0]

	parts := strings.SplitN(fields[1], ".", 3)
	if len(parts) < 2 {
		return "", 0, 0, fmt.Errorf("unrecognized C runtime version %q", out)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return "", 0, 0, fmt.Errorf("unrecognized C runtime version %q", out)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("unrecognized C runtime version %q", out)
	}
	return family, major, minor, nil
}
