package pipeline

import (
	"github.com/verifiedlabs/fstarup/internal/layout"
)

// opamInitCommand initializes a bare opam root scoped exclusively to this
// installation. The root is never shared across installs, which keeps
// uninstall a plain directory removal.
func opamInitCommand(opamRoot string) Command {
	return Command{
		Name: "opam",
		Args: []string{"init", "--root", opamRoot, "--bare", "--no-setup", "--disable-sandboxing", "--yes"},
	}
}

// opamSwitchCommand creates the pinned-version compiler switch inside the
// isolated root. extraEnv carries the architecture flags injected on
// hosts whose native C toolchain can silently target the wrong CPU.
func opamSwitchCommand(opamRoot, ocamlVersion string, extraEnv []string) Command {
	return Command{
		Name: "opam",
		Args: []string{
			"switch", "create", layout.DefaultOpamSwitch,
			"ocaml-base-compiler." + ocamlVersion,
			"--root", opamRoot, "--yes",
		},
		Env: extraEnv,
	}
}

// opamInstallCommand installs the pinned package set into the switch, in
// manifest order.
func opamInstallCommand(opamRoot string, packages []string) Command {
	args := []string{"install", "--root", opamRoot, "--switch", layout.DefaultOpamSwitch, "--yes"}
	args = append(args, packages...)
	return Command{Name: "opam", Args: args}
}

// opamMakeCommand invokes make on a target with the switch environment
// activated and extra variables injected.
func opamMakeCommand(opamRoot, dir, target string, extraEnv []string) Command {
	return Command{
		Name: "opam",
		Args: []string{
			"exec", "--root", opamRoot, "--switch", layout.DefaultOpamSwitch, "--",
			"make", "-C", dir, "-j", target,
		},
		Env: extraEnv,
	}
}

// archFlags returns the compiler/linker/assembler environment forcing an
// explicit target architecture. Needed on Apple Silicon, where a
// Rosetta-translated shell makes the default toolchain emit x86_64
// objects that later fail to link against native code.
func archFlags(arch string) []string {
	flag := "-arch " + darwinArchName(arch)
	return []string{
		"CFLAGS=" + flag,
		"LDFLAGS=" + flag,
		"ASFLAGS=" + flag,
	}
}

// darwinArchName maps a platform arch to the toolchain's spelling.
func darwinArchName(arch string) string {
	if arch == "amd64" {
		return "x86_64"
	}
	return arch
}
