package artifact

import (
	"context"
	"fmt"

	"github.com/verifiedlabs/fstarup/internal/manifest"
	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// fstarRepo is the upstream repository prebuilt releases are published
// from, as "owner/name".
const fstarRepo = "FStarLang/FStar"

// ReleaseLookup locates a release asset URL from remote metadata. It is
// only consulted when the manifest pins a checksum but the constructed
// URL cannot be derived; checksums never come from it.
type ReleaseLookup interface {
	AssetURL(ctx context.Context, repo, tag, assetName string) (string, error)
}

// Resolver maps (stack version, platform key) pairs to download
// descriptors.
type Resolver struct {
	// Releases is optional. When nil, asset URLs are always constructed
	// from the release naming scheme.
	Releases ReleaseLookup
}

// Resolve returns the descriptor for the primary component on the given
// platform: the source tarball on source-build platforms, the prebuilt
// release asset otherwise. A missing pinned checksum or URL is a
// configuration error — the resolver never falls back to an unverified
// download.
func (r *Resolver) Resolve(ctx context.Context, sv manifest.StackVersion, key platform.Key) (Descriptor, error) {
	if sv.IsSourceBuild(key) {
		if sv.FStar.SourceURL == "" {
			return Descriptor{}, stackerr.New(stackerr.KindConfiguration,
				"%s: no source tarball URL pinned for source-build platform %s", sv.ID, key)
		}
		if sv.FStar.SourceChecksum == "" {
			return Descriptor{}, stackerr.New(stackerr.KindConfiguration,
				"%s: no source tarball checksum pinned for source-build platform %s", sv.ID, key)
		}
		return Descriptor{
			Kind:     KindSource,
			URL:      sv.FStar.SourceURL,
			Checksum: sv.FStar.SourceChecksum,
		}, nil
	}

	checksum, ok := sv.FStar.Checksums[key.String()]
	if !ok || checksum == "" {
		return Descriptor{}, stackerr.New(stackerr.KindConfiguration,
			"%s: no prebuilt checksum pinned for platform %s", sv.ID, key)
	}

	assetName, err := sv.AssetName(key)
	if err != nil {
		return Descriptor{}, err
	}

	url, err := r.assetURL(ctx, sv, assetName)
	if err != nil {
		return Descriptor{}, err
	}

	desc := Descriptor{
		Kind:     KindPrebuilt,
		URL:      url,
		Checksum: checksum,
	}
	if sv.FStar.SignatureSuffix != "" {
		desc.SignatureURL = url + sv.FStar.SignatureSuffix
	}
	return desc, nil
}

// assetURL constructs the release asset URL, consulting the optional
// release-metadata lookup only when one is configured.
func (r *Resolver) assetURL(ctx context.Context, sv manifest.StackVersion, assetName string) (string, error) {
	if r.Releases != nil {
		url, err := r.Releases.AssetURL(ctx, fstarRepo, sv.FStar.ReleaseTag, assetName)
		if err != nil {
			return "", err
		}
		return url, nil
	}
	return fmt.Sprintf("https://github.com/%s/releases/download/%s/%s",
		fstarRepo, sv.FStar.ReleaseTag, assetName), nil
}

// ResolveSolver returns the standalone Z3 descriptor required on
// source-build platforms. Prebuilt F* archives bundle the solver, so
// calling this for a prebuilt platform is a configuration error.
func (r *Resolver) ResolveSolver(sv manifest.StackVersion, key platform.Key) (Descriptor, error) {
	if !sv.IsSourceBuild(key) {
		return Descriptor{}, stackerr.New(stackerr.KindConfiguration,
			"%s: platform %s uses the bundled solver, no standalone download applies", sv.ID, key)
	}
	dl, ok := sv.Z3.Downloads[key.String()]
	if !ok || dl.URL == "" || dl.Checksum == "" {
		return Descriptor{}, stackerr.New(stackerr.KindConfiguration,
			"%s: no pinned solver download for platform %s", sv.ID, key)
	}
	return Descriptor{Kind: KindSolver, URL: dl.URL, Checksum: dl.Checksum}, nil
}
