// Package install ties the stages of a toolchain installation together:
// resolve the pinned artifacts for the host platform, download and
// verify them, lay the archive out canonically, gate on host
// prerequisites, run the build pipeline, and compute the environment
// exports for the finished tree.
package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/verifiedlabs/fstarup/internal/artifact"
	"github.com/verifiedlabs/fstarup/internal/layout"
	"github.com/verifiedlabs/fstarup/internal/manifest"
	"github.com/verifiedlabs/fstarup/internal/pipeline"
	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/prereq"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// Options configures one installation run.
type Options struct {
	// InstallDir is the target directory. It is created if absent.
	InstallDir string
	// CacheDir holds downloaded artifacts across runs.
	CacheDir string
	// Version selects a stack version; empty or "latest" resolves to the
	// registry's latest.
	Version string
	// KeyringPath points at an armored public keyring. When set and the
	// version pins a detached signature, the primary artifact's signature
	// is verified in addition to its checksum.
	KeyringPath string
	// GitHubToken enables authenticated release-metadata lookups, raising
	// the unauthenticated rate limit.
	GitHubToken string
	// MirrorBaseURL, when set, replaces the https://github.com prefix of
	// every download URL.
	MirrorBaseURL string
	// SkipKaramel skips the secondary-toolchain build. The result has no
	// environment export, since the export requires KaRaMeL.
	SkipKaramel bool
	// SkipUnquarantine skips the macOS quarantine-attribute removal.
	SkipUnquarantine bool
}

// Result describes a finished installation.
type Result struct {
	Version string
	Key     platform.Key
	Layout  layout.Layout
	// Env is the ordered environment export. Nil when the secondary
	// toolchain was skipped.
	Env []layout.EnvVar
}

// Installer runs installations against a version registry.
type Installer struct {
	registry *manifest.Registry
	detector platform.Detector
	exec     pipeline.Exec
	probes   prereq.Runner
	log      *zap.Logger
}

// New creates an installer using real host detection and real process
// execution.
func New(registry *manifest.Registry, log *zap.Logger) *Installer {
	return &Installer{
		registry: registry,
		detector: platform.NewDetector(),
		exec:     pipeline.ExecRunner{},
		probes:   prereq.ExecRunner{},
		log:      log,
	}
}

// Install performs a full installation. Stages run strictly in order and
// the first failure aborts the run; partially completed stages are left
// on disk.
func (i *Installer) Install(ctx context.Context, opts Options) (*Result, error) {
	versionID := opts.Version
	if versionID == "" || versionID == "latest" {
		versionID = i.registry.Latest()
	}
	sv, err := i.registry.Lookup(versionID)
	if err != nil {
		return nil, err
	}

	host, err := i.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}
	key, err := host.Key()
	if err != nil {
		return nil, err
	}
	sourceBuild := sv.IsSourceBuild(key)

	i.log.Info("installing toolchain",
		zap.String("version", sv.ID),
		zap.String("platform", key.String()),
		zap.Bool("source_build", sourceBuild))

	resolver := &artifact.Resolver{}
	if opts.GitHubToken != "" {
		resolver.Releases = artifact.NewGitHubClient(opts.GitHubToken)
	}
	desc, err := resolver.Resolve(ctx, sv, key)
	if err != nil {
		return nil, err
	}
	desc = rewriteMirror(desc, opts.MirrorBaseURL)

	downloader := artifact.NewDownloader(opts.CacheDir)
	archive, err := downloader.Fetch(ctx, sv.ID, desc)
	if err != nil {
		return nil, err
	}
	if err := artifact.VerifyChecksum(archive, desc.Checksum); err != nil {
		return nil, err
	}
	if err := i.verifySignature(ctx, downloader, sv.ID, desc, archive, opts.KeyringPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.InstallDir, 0o755); err != nil {
		return nil, stackerr.Wrap(stackerr.KindConfiguration, err, "create install dir %s", opts.InstallDir)
	}
	if err := artifact.NewExtractor().Extract(archive, opts.InstallDir); err != nil {
		return nil, err
	}

	if sourceBuild {
		// Source tarballs have no installation markers yet; hoist the
		// conventional single top-level directory instead.
		if err := hoistSingleDir(opts.InstallDir); err != nil {
			return nil, err
		}
	} else {
		root, normalized, err := layout.FindRoot(opts.InstallDir, sv.FStar.ReleaseTag)
		if err != nil {
			return nil, err
		}
		if !normalized {
			i.log.Info("normalizing archive layout", zap.String("root", root))
			if err := layout.Normalize(opts.InstallDir, root); err != nil {
				return nil, err
			}
		}
	}

	if host.IsMacOS() && !opts.SkipUnquarantine {
		i.unquarantine(ctx, opts.InstallDir)
	}

	checker := prereq.NewCheckerWithRunner(host, i.log, i.probes)
	if err := checker.CheckAll(ctx, sourceBuild); err != nil {
		return nil, err
	}

	lay := layout.New(opts.InstallDir)
	fetch := func(ctx context.Context, d artifact.Descriptor) (string, error) {
		d = rewriteMirror(d, opts.MirrorBaseURL)
		path, err := downloader.Fetch(ctx, sv.ID, d)
		if err != nil {
			return "", err
		}
		return path, nil
	}
	pipe := pipeline.New(lay, sv, key, i.log, i.exec, fetch)
	if err := pipe.Run(ctx, pipeline.Options{SkipKaramel: opts.SkipKaramel}); err != nil {
		return nil, err
	}

	result := &Result{Version: sv.ID, Key: key, Layout: lay}
	if opts.SkipKaramel {
		i.log.Warn("secondary toolchain skipped, no environment export produced")
		return result, nil
	}
	env, err := layout.Export(lay)
	if err != nil {
		return nil, err
	}
	result.Env = env

	i.log.Info("installation complete",
		zap.String("version", sv.ID),
		zap.String("root", lay.Root))
	return result, nil
}

// verifySignature checks the primary artifact's detached signature when
// both a signature URL and a keyring are available. A pinned signature
// with no keyring is skipped, not failed: the checksum pin already
// gates integrity.
func (i *Installer) verifySignature(ctx context.Context, dl *artifact.Downloader, version string, desc artifact.Descriptor, archive, keyringPath string) error {
	if desc.SignatureURL == "" {
		return nil
	}
	if keyringPath == "" {
		i.log.Debug("signature available but no keyring configured, skipping",
			zap.String("signature_url", desc.SignatureURL))
		return nil
	}
	sigPath, err := dl.FetchURL(ctx, version, desc.SignatureURL)
	if err != nil {
		return err
	}
	keyring, err := os.Open(keyringPath)
	if err != nil {
		return stackerr.Wrap(stackerr.KindConfiguration, err, "open keyring %s", keyringPath)
	}
	defer keyring.Close()
	return artifact.VerifySignature(keyring, archive, sigPath)
}

// unquarantine strips the macOS quarantine attribute so Gatekeeper does
// not block the downloaded binaries. Failure is a warning, not an
// error: the attribute may simply be absent.
func (i *Installer) unquarantine(ctx context.Context, dir string) {
	out, err := i.exec.Run(ctx, pipeline.Command{
		Name: "xattr",
		Args: []string{"-dr", "com.apple.quarantine", dir},
	})
	if err != nil {
		i.log.Warn("could not remove quarantine attribute",
			zap.Error(err), zap.String("output", strings.TrimSpace(out)))
	}
}

// rewriteMirror replaces the github.com prefix of a descriptor's URLs
// with the configured mirror base.
func rewriteMirror(desc artifact.Descriptor, mirrorBase string) artifact.Descriptor {
	if mirrorBase == "" {
		return desc
	}
	base := strings.TrimSuffix(mirrorBase, "/")
	desc.URL = replacePrefix(desc.URL, base)
	desc.SignatureURL = replacePrefix(desc.SignatureURL, base)
	return desc
}

func replacePrefix(url, base string) string {
	const githubPrefix = "https://github.com"
	if strings.HasPrefix(url, githubPrefix) {
		return base + strings.TrimPrefix(url, githubPrefix)
	}
	return url
}

// hoistSingleDir moves the contents of a lone top-level directory up to
// dir, the conventional source-tarball shape. A tarball that already
// extracts flat is left alone.
func hoistSingleDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stackerr.Wrap(stackerr.KindStructure, err, "read install dir %s", dir)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}
	nested := filepath.Join(dir, entries[0].Name())
	inner, err := os.ReadDir(nested)
	if err != nil {
		return stackerr.Wrap(stackerr.KindStructure, err, "read source root %s", nested)
	}
	for _, entry := range inner {
		from := filepath.Join(nested, entry.Name())
		to := filepath.Join(dir, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return stackerr.Wrap(stackerr.KindStructure, err, "move %s", entry.Name())
		}
	}
	if err := os.Remove(nested); err != nil {
		return stackerr.Wrap(stackerr.KindStructure, err, "remove emptied dir %s", nested)
	}
	return nil
}
