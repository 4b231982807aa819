package layout

import (
	"os"
	"path/filepath"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// EnvVar is one environment assignment exposed to downstream tools.
// PATH entries are emitted individually; the consumer prepends them in
// the order given.
type EnvVar struct {
	Key   string
	Value string
}

// z3VersionPreference orders the solver versions the exporter probes
// for, newest preferred. The first version actually present wins.
var z3VersionPreference = []string{"4.13.3", "4.12.6", "4.8.5"}

// DefaultOpamSwitch is the fixed switch identifier created inside the
// isolated opam root.
const DefaultOpamSwitch = "default"

// Export derives the deterministic environment variable set for a
// finished installation.
//
// Both toolchains are mandatory: a missing KaRaMeL binary makes the
// installation invalid rather than degraded, and the export fails with a
// verification error.
func Export(l Layout) ([]EnvVar, error) {
	if !isExecutableFile(l.KrmlExe()) {
		return nil, stackerr.New(stackerr.KindVerification,
			"KaRaMeL binary missing at %s: installation is incomplete", l.KrmlExe())
	}

	vars := []EnvVar{
		{Key: "FSTAR_HOME", Value: l.Root},
		{Key: "PATH", Value: l.BinDir},
	}

	if dir, ok := solverDir(l); ok && dir != l.BinDir {
		vars = append(vars, EnvVar{Key: "PATH", Value: dir})
	}

	vars = append(vars,
		EnvVar{Key: "KRML_HOME", Value: l.KaramelDir},
		EnvVar{Key: "PATH", Value: l.KaramelDir},
		EnvVar{Key: "C_INCLUDE_PATH", Value: l.KrmlInclude()},
	)

	if info, err := os.Stat(l.OpamRoot); err == nil && info.IsDir() {
		vars = append(vars,
			EnvVar{Key: "OPAMROOT", Value: l.OpamRoot},
			EnvVar{Key: "OPAMSWITCH", Value: DefaultOpamSwitch},
		)
	}

	return vars, nil
}

// solverDir probes the preference-ordered list of known solver versions
// against what is actually installed. Relocated standalone solvers live
// under lib/z3-{version}/bin; prebuilt archives bundle z3 in bin/.
func solverDir(l Layout) (string, bool) {
	for _, version := range z3VersionPreference {
		dir := filepath.Join(l.LibDir, "z3-"+version, "bin")
		if isExecutableFile(filepath.Join(dir, "z3")) {
			return dir, true
		}
	}
	if isExecutableFile(filepath.Join(l.BinDir, "z3")) {
		return l.BinDir, true
	}
	return "", false
}
