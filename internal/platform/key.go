package platform

import (
	"fmt"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// Key identifies a supported installation platform as "{os}_{arch}".
type Key string

// The fixed set of platform keys the installer knows how to provision.
const (
	KeyLinuxAMD64  Key = "linux_amd64"
	KeyLinuxARM64  Key = "linux_arm64"
	KeyDarwinAMD64 Key = "darwin_amd64"
	KeyDarwinARM64 Key = "darwin_arm64"
)

// Known lists every supported platform key in a stable order.
var Known = []Key{KeyLinuxAMD64, KeyLinuxARM64, KeyDarwinAMD64, KeyDarwinARM64}

// String returns the string representation of the key.
func (k Key) String() string {
	return string(k)
}

// OS returns the operating-system half of the key.
func (k Key) OS() string {
	switch k {
	case KeyLinuxAMD64, KeyLinuxARM64:
		return "linux"
	case KeyDarwinAMD64, KeyDarwinARM64:
		return "darwin"
	default:
		return ""
	}
}

// Arch returns the architecture half of the key.
func (k Key) Arch() string {
	switch k {
	case KeyLinuxAMD64, KeyDarwinAMD64:
		return "amd64"
	case KeyLinuxARM64, KeyDarwinARM64:
		return "arm64"
	default:
		return ""
	}
}

// Resolve derives a platform key from an OS and architecture pair.
// It is a pure function: no I/O, no host inspection.
func Resolve(osType, archType string) (Key, error) {
	arch, err := normalizeArch(archType)
	if err != nil {
		return "", stackerr.Wrap(stackerr.KindConfiguration, err, "resolve platform")
	}

	switch osType {
	case "linux", "darwin":
		return Key(fmt.Sprintf("%s_%s", osType, arch)), nil
	default:
		return "", stackerr.New(stackerr.KindConfiguration, "unsupported operating system: %s", osType)
	}
}
