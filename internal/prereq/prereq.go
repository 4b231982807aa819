// Package prereq gates the build pipeline on the external tools it is
// about to invoke.
//
// Every probe runs even after the first failure: the aggregated error
// names all missing prerequisites at once, each with the install command
// for the detected OS or distribution family, so the user fixes their
// machine in one pass instead of replaying the installer.
package prereq

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// Runner abstracts probe execution so tests can fake tool presence.
type Runner interface {
	// Probe runs a command and returns nil when it exits zero.
	Probe(ctx context.Context, name string, args ...string) error
	// Output runs a command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner probes with real processes.
type ExecRunner struct{}

// Probe implements Runner.
func (ExecRunner) Probe(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// Probe describes one prerequisite check.
type Probe struct {
	// Name is the prerequisite's user-facing name.
	Name string
	// Command is the default probe invocation.
	Command []string
	// PerOS overrides the probe command on specific GOOS values, for
	// platforms that need a specific variant of a common tool.
	PerOS map[string][]string
	// Remedy maps a distribution family (or GOOS) to an install command.
	Remedy map[string]string
}

// command returns the probe invocation effective on the given OS.
func (p Probe) command(osType string) []string {
	if override, ok := p.PerOS[osType]; ok {
		return override
	}
	return p.Command
}

// remedy returns the install hint for the detected host, preferring the
// distribution family over the plain OS.
func (p Probe) remedy(host *platform.Info) string {
	if host.Family != "" {
		if r, ok := p.Remedy[host.Family]; ok {
			return r
		}
	}
	if r, ok := p.Remedy[host.OS]; ok {
		return r
	}
	return ""
}

// remedies builds a per-family remediation map for one package, with the
// distribution-specific package name spellings.
func remedies(debianPkg, rhelPkg, archPkg, susePkg, brewPkg string) map[string]string {
	return map[string]string{
		platform.FamilyDebian: "sudo apt-get install -y " + debianPkg,
		platform.FamilyRHEL:   "sudo dnf install -y " + rhelPkg,
		platform.FamilyFedora: "sudo dnf install -y " + rhelPkg,
		platform.FamilyArch:   "sudo pacman -S --needed " + archPkg,
		platform.FamilySUSE:   "sudo zypper install -y " + susePkg,
		"darwin":              "brew install " + brewPkg,
	}
}

// baseProbes are required on every platform before any build step runs.
func baseProbes() []Probe {
	return []Probe{
		{
			Name:    "git",
			Command: []string{"git", "--version"},
			Remedy:  remedies("git", "git", "git", "git", "git"),
		},
		{
			Name:    "curl",
			Command: []string{"curl", "--version"},
			Remedy:  remedies("curl", "curl", "curl", "curl", "curl"),
		},
		{
			Name:    "make",
			Command: []string{"make", "--version"},
			// macOS ships an old BSD-flavored make; the build needs GNU make.
			PerOS:  map[string][]string{"darwin": {"gmake", "--version"}},
			Remedy: remedies("make", "make", "make", "make", "make"),
		},
		{
			Name:    "cc",
			Command: []string{"cc", "--version"},
			Remedy: map[string]string{
				platform.FamilyDebian: "sudo apt-get install -y build-essential",
				platform.FamilyRHEL:   "sudo dnf group install -y \"Development Tools\"",
				platform.FamilyFedora: "sudo dnf group install -y \"Development Tools\"",
				platform.FamilyArch:   "sudo pacman -S --needed base-devel",
				platform.FamilySUSE:   "sudo zypper install -y -t pattern devel_basis",
				"darwin":              "xcode-select --install",
			},
		},
	}
}

// sourceProbes are additionally required when the primary component must
// be compiled from source.
func sourceProbes() []Probe {
	return []Probe{
		{
			Name:    "opam",
			Command: []string{"opam", "--version"},
			Remedy:  remedies("opam", "opam", "opam", "opam", "opam"),
		},
		{
			Name:    "m4",
			Command: []string{"m4", "--version"},
			Remedy:  remedies("m4", "m4", "m4", "m4", "m4"),
		},
		{
			Name:    "patch",
			Command: []string{"patch", "--version"},
			Remedy:  remedies("patch", "patch", "patch", "patch", "gpatch"),
		},
		{
			Name:    "gmp",
			Command: []string{"pkg-config", "--exists", "gmp"},
			Remedy:  remedies("libgmp-dev", "gmp-devel", "gmp", "gmp-devel", "gmp"),
		},
	}
}

// Checker probes the host for required external tools and libraries.
type Checker struct {
	runner Runner
	host   *platform.Info
	log    *zap.Logger
}

// NewChecker creates a checker for the detected host.
func NewChecker(host *platform.Info, log *zap.Logger) *Checker {
	return &Checker{runner: ExecRunner{}, host: host, log: log}
}

// NewCheckerWithRunner is the injectable constructor used by tests.
func NewCheckerWithRunner(host *platform.Info, log *zap.Logger, runner Runner) *Checker {
	return &Checker{runner: runner, host: host, log: log}
}

// CheckAll probes every prerequisite and returns nil when all succeed.
// When sourceBuild is set, the larger source-build probe set runs too,
// plus the host C runtime gate. All failures are collected into one
// aggregated, remediable error; the checker never stops at the first.
func (c *Checker) CheckAll(ctx context.Context, sourceBuild bool) error {
	probes := baseProbes()
	if sourceBuild {
		probes = append(probes, sourceProbes()...)
	}

	var failures []string
	for _, probe := range probes {
		cmd := probe.command(c.host.OS)
		if err := c.runner.Probe(ctx, cmd[0], cmd[1:]...); err != nil {
			c.log.Debug("prerequisite probe failed",
				zap.String("name", probe.Name),
				zap.Strings("command", cmd),
				zap.Error(err))
			failures = append(failures, renderFailure(probe, c.host))
		}
	}

	if sourceBuild && c.host.IsLinux() {
		if err := c.checkLibc(ctx); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if len(failures) == 0 {
		return nil
	}
	return stackerr.New(stackerr.KindPrerequisite,
		"missing prerequisites:\n  - %s", strings.Join(failures, "\n  - "))
}

func renderFailure(probe Probe, host *platform.Info) string {
	if remedy := probe.remedy(host); remedy != "" {
		return fmt.Sprintf("%s: not found (install with: %s)", probe.Name, remedy)
	}
	return fmt.Sprintf("%s: not found", probe.Name)
}
