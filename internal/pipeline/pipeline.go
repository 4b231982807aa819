package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verifiedlabs/fstarup/internal/artifact"
	"github.com/verifiedlabs/fstarup/internal/layout"
	"github.com/verifiedlabs/fstarup/internal/manifest"
	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// FetchFunc downloads a descriptor and returns the local archive path.
type FetchFunc func(ctx context.Context, desc artifact.Descriptor) (string, error)

// Options tunes one pipeline run.
type Options struct {
	// SkipKaramel skips the secondary-toolchain build (steps that clone
	// and build KaRaMeL). The resulting installation will not pass the
	// environment export until KaRaMeL is built.
	SkipKaramel bool
}

// Pipeline executes the ordered toolchain build for one installation.
type Pipeline struct {
	layout  layout.Layout
	version manifest.StackVersion
	key     platform.Key
	exec    Exec
	fetch   FetchFunc
	source  SourceFunc
	log     *zap.Logger

	// runID names staging directories so concurrent runs against
	// different install paths cannot collide in /tmp-style shared dirs.
	runID string

	outcomes []StepOutcome
}

// New creates a pipeline for an installation.
func New(l layout.Layout, sv manifest.StackVersion, key platform.Key, log *zap.Logger, execer Exec, fetch FetchFunc) *Pipeline {
	return &Pipeline{
		layout:  l,
		version: sv,
		key:     key,
		exec:    execer,
		fetch:   fetch,
		source:  AcquireSource,
		log:     log,
		runID:   uuid.NewString(),
	}
}

// Outcomes returns the per-step record of the last run.
func (p *Pipeline) Outcomes() []StepOutcome {
	return p.outcomes
}

type step struct {
	name string
	run  func(context.Context) error
}

// Run executes the build sequence: fail-fast, blocking, never retried.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	sourceBuild := p.version.IsSourceBuild(p.key)

	var steps []step
	if sourceBuild {
		steps = append(steps, step{"stage solver", p.stageSolver})
	}
	steps = append(steps,
		step{"initialize opam root", p.opamInit},
		step{"create OCaml switch", p.createSwitch},
		step{"install OCaml packages", p.installPackages},
	)
	if sourceBuild {
		steps = append(steps, step{"build F* from source", p.buildFStar})
	}
	if !opts.SkipKaramel {
		steps = append(steps,
			step{"fetch KaRaMeL source", p.fetchKaramel},
			step{"build krml", p.buildKrml},
			step{"build krmllib", p.buildKrmllib},
		)
	}
	steps = append(steps, step{"verify toolchain", func(ctx context.Context) error {
		return p.verify(ctx, opts.SkipKaramel)
	}})

	p.outcomes = p.outcomes[:0]
	for _, s := range steps {
		p.log.Info("pipeline step starting", zap.String("step", s.name))
		if err := s.run(ctx); err != nil {
			p.outcomes = append(p.outcomes, StepOutcome{Step: s.name, OK: false, Output: err.Error()})
			p.log.Error("pipeline step failed", zap.String("step", s.name), zap.Error(err))
			return err
		}
		p.outcomes = append(p.outcomes, StepOutcome{Step: s.name, OK: true})
	}
	return nil
}

// runCommand executes one external command, converting a non-zero exit
// into a build error carrying bounded output.
func (p *Pipeline) runCommand(ctx context.Context, stepName string, cmd Command) error {
	out, err := p.exec.Run(ctx, cmd)
	if err != nil {
		return stackerr.New(stackerr.KindBuild, "%s failed: %v\ncaptured output:\n%s",
			stepName, err, truncateOutput(out))
	}
	return nil
}

// stageSolver downloads the standalone Z3, verifies it against the
// pinned checksum, extracts it, relocates it into the library tree, and
// marks it executable. Source-build platforms only: prebuilt F* archives
// already bundle the solver.
func (p *Pipeline) stageSolver(ctx context.Context) error {
	dl, ok := p.version.Z3.Downloads[p.key.String()]
	if !ok {
		return stackerr.New(stackerr.KindConfiguration,
			"%s: no pinned solver download for platform %s", p.version.ID, p.key)
	}
	desc := artifact.Descriptor{Kind: artifact.KindSolver, URL: dl.URL, Checksum: dl.Checksum}

	archive, err := p.fetch(ctx, desc)
	if err != nil {
		return err
	}
	if err := artifact.VerifyChecksum(archive, desc.Checksum); err != nil {
		return err
	}

	staging := filepath.Join(p.layout.Root, ".staging-"+p.runID)
	defer os.RemoveAll(staging)

	if err := artifact.NewExtractor().Extract(archive, staging); err != nil {
		return stackerr.Wrap(stackerr.KindBuild, err, "extract solver archive")
	}

	binary, err := findSolverBinary(staging)
	if err != nil {
		return err
	}

	dest := filepath.Join(p.layout.LibDir, "z3-"+p.version.Z3.Version, "bin", "z3")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create solver dir: %w", err)
	}
	if err := os.Rename(binary, dest); err != nil {
		return fmt.Errorf("relocate solver: %w", err)
	}
	return artifact.SetExecutable(dest)
}

// findSolverBinary locates the extracted z3 executable regardless of the
// archive's top-level directory name.
func findSolverBinary(staging string) (string, error) {
	var found string
	filepath.WalkDir(staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == "z3" && filepath.Base(filepath.Dir(path)) == "bin" {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", stackerr.New(stackerr.KindStructure, "no z3 binary found in extracted solver archive")
	}
	return found, nil
}

func (p *Pipeline) opamInit(ctx context.Context) error {
	return p.runCommand(ctx, "opam init", opamInitCommand(p.layout.OpamRoot))
}

func (p *Pipeline) createSwitch(ctx context.Context) error {
	var extraEnv []string
	if p.key == platform.KeyDarwinARM64 {
		// Architecture flags apply to this step only.
		extraEnv = archFlags(p.key.Arch())
	}
	return p.runCommand(ctx, "opam switch create",
		opamSwitchCommand(p.layout.OpamRoot, p.version.OCaml.Version, extraEnv))
}

func (p *Pipeline) installPackages(ctx context.Context) error {
	return p.runCommand(ctx, "opam install",
		opamInstallCommand(p.layout.OpamRoot, p.version.OCaml.Packages))
}

// buildFStar compiles the primary component in the normalized source
// tree. The build drops fstar.exe at the marker location.
func (p *Pipeline) buildFStar(ctx context.Context) error {
	return p.runCommand(ctx, "make build",
		opamMakeCommand(p.layout.OpamRoot, p.layout.Root, "build", nil))
}

func (p *Pipeline) fetchKaramel(ctx context.Context) error {
	return p.source(ctx, p.version.Karamel.Repo, p.version.Karamel.Commit, p.layout.KaramelDir)
}

// karamelEnv injects the primary toolchain's home and executable paths
// into the KaRaMeL build.
func (p *Pipeline) karamelEnv() []string {
	return []string{
		"FSTAR_HOME=" + p.layout.Root,
		"FSTAR_EXE=" + p.layout.FStarExe(),
	}
}

func (p *Pipeline) buildKrml(ctx context.Context) error {
	return p.runCommand(ctx, "make krml",
		opamMakeCommand(p.layout.OpamRoot, p.layout.KaramelDir, layout.KaramelBinary, p.karamelEnv()))
}

func (p *Pipeline) buildKrmllib(ctx context.Context) error {
	return p.runCommand(ctx, "make krmllib",
		opamMakeCommand(p.layout.OpamRoot, p.layout.KaramelDir, "krmllib", p.karamelEnv()))
}

// verify smoke-tests the built binaries and, on architecture-sensitive
// hosts, checks the support library's embedded architecture against the
// host's native one.
func (p *Pipeline) verify(ctx context.Context, skippedKaramel bool) error {
	if err := p.verifyBinary(ctx, p.layout.FStarExe(), "--version"); err != nil {
		return err
	}

	if skippedKaramel {
		return nil
	}

	if err := p.verifyBinary(ctx, p.layout.KrmlExe(), "-version"); err != nil {
		return err
	}

	if p.key.OS() == "darwin" {
		return p.verifyLibraryArch(ctx)
	}
	return nil
}

func (p *Pipeline) verifyBinary(ctx context.Context, path, versionFlag string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return stackerr.New(stackerr.KindVerification, "expected binary missing at %s", path)
	}
	out, err := p.exec.Run(ctx, Command{Name: path, Args: []string{versionFlag}})
	if err != nil {
		return stackerr.New(stackerr.KindVerification,
			"%s failed its version probe: %v\ncaptured output:\n%s", path, err, truncateOutput(out))
	}
	return nil
}

// verifyLibraryArch asks lipo for the architectures embedded in the
// support library and requires an exact match with the host. Catches the
// defect class where a Rosetta-hosted build silently emits x86_64.
func (p *Pipeline) verifyLibraryArch(ctx context.Context) error {
	lib := p.layout.KrmlLib()
	out, err := p.exec.Run(ctx, Command{Name: "lipo", Args: []string{"-archs", lib}})
	if err != nil {
		return stackerr.New(stackerr.KindVerification,
			"could not read architecture of %s: %v", lib, err)
	}
	want := darwinArchName(p.key.Arch())
	if got := strings.TrimSpace(out); got != want {
		return stackerr.New(stackerr.KindVerification,
			"support library %s targets %q, host requires %q", lib, got, want)
	}
	return nil
}
