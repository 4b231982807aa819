package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/verifiedlabs/fstarup/internal/artifact"
	"github.com/verifiedlabs/fstarup/internal/layout"
	"github.com/verifiedlabs/fstarup/internal/manifest"
	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// fakeExec records every invocation and optionally fails one command.
type fakeExec struct {
	commands []Command
	failOn   string // substring of "name args..." that triggers failure
	output   map[string]string
}

func (f *fakeExec) Run(ctx context.Context, cmd Command) (string, error) {
	f.commands = append(f.commands, cmd)
	rendered := cmd.Name + " " + strings.Join(cmd.Args, " ")
	if f.failOn != "" && strings.Contains(rendered, f.failOn) {
		return "simulated failure output", fmt.Errorf("exit status 2")
	}
	for key, out := range f.output {
		if strings.Contains(rendered, key) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeExec) rendered() []string {
	var out []string
	for _, cmd := range f.commands {
		out = append(out, cmd.Name+" "+strings.Join(cmd.Args, " "))
	}
	return out
}

func testVersion() manifest.StackVersion {
	return manifest.StackVersion{
		ID: "2025.10.06-stack.1",
		FStar: manifest.FStarConfig{
			ReleaseTag: "v2025.10.06",
			Checksums: map[string]string{
				"linux_amd64": strings.Repeat("a", 64), "darwin_amd64": strings.Repeat("b", 64),
				"darwin_arm64": strings.Repeat("c", 64),
			},
			SourceURL:      "https://example.invalid/src.tar.gz",
			SourceChecksum: strings.Repeat("d", 64),
		},
		SourcePlatforms: []string{"linux_arm64"},
		Z3:              manifest.SolverConfig{Version: "4.13.3", Downloads: map[string]manifest.SolverDownload{}},
		Karamel: manifest.KaramelConfig{
			Repo:   "https://example.invalid/karamel",
			Commit: strings.Repeat("e", 40),
		},
		OCaml: manifest.OCamlConfig{Version: "4.14.2", Packages: []string{"batteries", "zarith", "menhir"}},
	}
}

// plantToolchain pre-creates the binaries the verify step expects.
func plantToolchain(t *testing.T, l layout.Layout, withKrml bool) {
	t.Helper()
	writeExec(t, l.FStarExe())
	if withKrml {
		writeExec(t, l.KrmlExe())
	}
}

func writeExec(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!fake"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(t *testing.T, key platform.Key, execer Exec, fetch FetchFunc) (*Pipeline, layout.Layout) {
	t.Helper()
	l := layout.New(t.TempDir())
	p := New(l, testVersion(), key, zap.NewNop(), execer, fetch)
	p.source = func(ctx context.Context, repoURL, commit, destDir string) error {
		return nil // acquisition covered by source_test.go
	}
	return p, l
}

func TestRunPrebuiltOrder(t *testing.T) {
	execer := &fakeExec{}
	p, l := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	plantToolchain(t, l, true)

	if err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rendered := execer.rendered()
	wantOrder := []string{
		"opam init",
		"opam switch create default ocaml-base-compiler.4.14.2",
		"opam install",
		"make -C " + l.KaramelDir + " -j krml",
		"make -C " + l.KaramelDir + " -j krmllib",
	}
	idx := 0
	for _, want := range wantOrder {
		found := false
		for ; idx < len(rendered); idx++ {
			if strings.Contains(rendered[idx], want) {
				found = true
				idx++
				break
			}
		}
		if !found {
			t.Fatalf("command containing %q missing or out of order; got:\n%s",
				want, strings.Join(execer.rendered(), "\n"))
		}
	}

	// The opam root is private to this installation.
	for _, cmd := range execer.commands {
		if cmd.Name != "opam" {
			continue
		}
		joined := strings.Join(cmd.Args, " ")
		if !strings.Contains(joined, "--root "+l.OpamRoot) {
			t.Errorf("opam invocation without the isolated root: %s", joined)
		}
	}

	// Every step succeeded.
	for _, o := range p.Outcomes() {
		if !o.OK {
			t.Errorf("step %q recorded as failed", o.Step)
		}
	}
}

func TestRunInjectsToolchainPathsIntoKaramelBuild(t *testing.T) {
	execer := &fakeExec{}
	p, l := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	plantToolchain(t, l, true)

	if err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, cmd := range execer.commands {
		joined := strings.Join(cmd.Args, " ")
		if !strings.Contains(joined, "-j krml") {
			continue
		}
		env := strings.Join(cmd.Env, " ")
		if !strings.Contains(env, "FSTAR_HOME="+l.Root) || !strings.Contains(env, "FSTAR_EXE="+l.FStarExe()) {
			t.Errorf("karamel build missing toolchain paths, env = %v", cmd.Env)
		}
	}
}

func TestRunFailFast(t *testing.T) {
	execer := &fakeExec{failOn: "switch create"}
	p, l := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	plantToolchain(t, l, true)

	err := p.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected failure at switch creation")
	}
	if !stackerr.IsKind(err, stackerr.KindBuild) {
		t.Errorf("expected build error, got %v", err)
	}
	if !strings.Contains(err.Error(), "simulated failure output") {
		t.Errorf("error should carry captured output: %v", err)
	}

	// Nothing after the failing step ran.
	for _, cmd := range execer.commands {
		if strings.Contains(strings.Join(cmd.Args, " "), "install") {
			t.Error("install step ran after a failed switch creation")
		}
	}
	last := p.Outcomes()[len(p.Outcomes())-1]
	if last.OK || last.Step != "create OCaml switch" {
		t.Errorf("last outcome = %+v, want failed switch step", last)
	}
}

func TestArchitectureFlagsOnlyOnAppleSiliconSwitch(t *testing.T) {
	execer := &fakeExec{}
	p, l := newTestPipeline(t, platform.KeyDarwinARM64, execer, nil)
	plantToolchain(t, l, true)
	// krmllib with a matching embedded architecture
	writeExec(t, l.KrmlLib())
	execer.output = map[string]string{"lipo -archs": "arm64\n"}

	if err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, cmd := range execer.commands {
		joined := strings.Join(cmd.Args, " ")
		hasFlags := strings.Contains(strings.Join(cmd.Env, " "), "-arch arm64")
		isSwitch := strings.Contains(joined, "switch create")
		if isSwitch && !hasFlags {
			t.Error("switch creation should inject explicit architecture flags on darwin_arm64")
		}
		if !isSwitch && cmd.Name == "opam" && hasFlags {
			t.Errorf("architecture flags leaked into: opam %s", joined)
		}
	}
}

func TestLinuxSwitchHasNoArchFlags(t *testing.T) {
	execer := &fakeExec{}
	p, l := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	plantToolchain(t, l, true)

	if err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, cmd := range execer.commands {
		if strings.Contains(strings.Join(cmd.Args, " "), "switch create") && len(cmd.Env) != 0 {
			t.Errorf("linux switch creation should not inject env, got %v", cmd.Env)
		}
	}
}

func TestSourceBuildStagesSolverAndBuildsFStar(t *testing.T) {
	// Build a Z3 zip fixture and pin its real checksum.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("z3-4.13.3-arm64-glibc-2.34/bin/z3")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("#!fake-z3"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(t.TempDir(), "z3.zip")
	if err := os.WriteFile(archivePath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(buf.Bytes())

	execer := &fakeExec{}
	fetch := func(ctx context.Context, desc artifact.Descriptor) (string, error) {
		return archivePath, nil
	}
	p, l := newTestPipeline(t, platform.KeyLinuxARM64, execer, fetch)
	p.version.Z3.Downloads["linux_arm64"] = manifest.SolverDownload{
		URL:      "https://example.invalid/z3.zip",
		Checksum: hex.EncodeToString(sum[:]),
	}
	plantToolchain(t, l, true)

	if err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Solver relocated into the library tree and executable.
	solver := filepath.Join(l.LibDir, "z3-4.13.3", "bin", "z3")
	info, err := os.Stat(solver)
	if err != nil {
		t.Fatalf("relocated solver missing: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Error("relocated solver is not executable")
	}

	// The primary toolchain was built from source.
	var builtFStar bool
	for _, cmd := range execer.commands {
		if strings.Contains(strings.Join(cmd.Args, " "), "make -C "+l.Root+" -j build") {
			builtFStar = true
		}
	}
	if !builtFStar {
		t.Errorf("source-build platform should build F* from source; commands:\n%s",
			strings.Join(execer.rendered(), "\n"))
	}

	// No staging directory left behind.
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging directory %s not cleaned up", e.Name())
		}
	}
}

func TestSolverChecksumMismatchAborts(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "z3.zip")
	if err := os.WriteFile(archivePath, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	execer := &fakeExec{}
	fetch := func(ctx context.Context, desc artifact.Descriptor) (string, error) {
		return archivePath, nil
	}
	p, l := newTestPipeline(t, platform.KeyLinuxARM64, execer, fetch)
	p.version.Z3.Downloads["linux_arm64"] = manifest.SolverDownload{
		URL:      "https://example.invalid/z3.zip",
		Checksum: strings.Repeat("0", 64),
	}
	plantToolchain(t, l, true)

	err := p.Run(context.Background(), Options{})
	if !stackerr.IsKind(err, stackerr.KindIntegrity) {
		t.Errorf("expected integrity error for tampered solver, got %v", err)
	}
	if len(execer.commands) != 0 {
		t.Error("no external process should run after an aborted solver staging")
	}
}

func TestSkipKaramel(t *testing.T) {
	execer := &fakeExec{}
	sourceCalled := false
	p, l := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	p.source = func(ctx context.Context, repoURL, commit, destDir string) error {
		sourceCalled = true
		return nil
	}
	plantToolchain(t, l, false) // no krml on disk

	if err := p.Run(context.Background(), Options{SkipKaramel: true}); err != nil {
		t.Fatalf("Run with SkipKaramel failed: %v", err)
	}
	if sourceCalled {
		t.Error("KaRaMeL source should not be fetched when skipped")
	}
	for _, cmd := range execer.commands {
		if strings.Contains(strings.Join(cmd.Args, " "), "krml") {
			t.Errorf("karamel build ran despite skip: %v", cmd.Args)
		}
	}
}

func TestVerifyMissingBinary(t *testing.T) {
	execer := &fakeExec{}
	p, _ := newTestPipeline(t, platform.KeyLinuxAMD64, execer, nil)
	// fstar.exe never planted

	err := p.Run(context.Background(), Options{})
	if !stackerr.IsKind(err, stackerr.KindVerification) {
		t.Errorf("expected verification error for missing binary, got %v", err)
	}
}

func TestVerifyArchitectureMismatch(t *testing.T) {
	execer := &fakeExec{output: map[string]string{"lipo -archs": "x86_64\n"}}
	p, l := newTestPipeline(t, platform.KeyDarwinARM64, execer, nil)
	plantToolchain(t, l, true)
	writeExec(t, l.KrmlLib())

	err := p.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected architecture mismatch")
	}
	if !stackerr.IsKind(err, stackerr.KindVerification) {
		t.Errorf("expected verification error, got %v", err)
	}
	if !strings.Contains(err.Error(), "x86_64") {
		t.Errorf("error should name the mismatched architecture: %v", err)
	}
}
