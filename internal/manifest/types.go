package manifest

// StackVersion pins every component of one released toolchain stack.
// A registered version is immutable: the installer never mutates it and
// never consults live metadata for checksums.
type StackVersion struct {
	// ID has the form YYYY.MM.DD-stack.N.
	ID string `yaml:"id"`

	FStar   FStarConfig   `yaml:"fstar"`
	Z3      SolverConfig  `yaml:"z3"`
	Karamel KaramelConfig `yaml:"karamel"`
	OCaml   OCamlConfig   `yaml:"ocaml"`

	// SourcePlatforms lists platform keys that must build F* from source
	// because no prebuilt asset is published for them.
	SourcePlatforms []string `yaml:"source_platforms"`

	// Notes carries release metadata shown by the list command.
	Notes string `yaml:"notes,omitempty"`
}

// FStarConfig pins the primary component: the F* release and the checksum
// of every artifact the installer may download for it.
type FStarConfig struct {
	// ReleaseTag is the upstream release tag, e.g. "v2025.10.06".
	ReleaseTag string `yaml:"release_tag"`

	// Checksums maps a platform key to the sha256 of its prebuilt asset.
	// A key absent here must appear in SourcePlatforms instead.
	Checksums map[string]string `yaml:"checksums"`

	// SourceURL and SourceChecksum pin the source tarball used on
	// source-build platforms.
	SourceURL      string `yaml:"source_url,omitempty"`
	SourceChecksum string `yaml:"source_checksum,omitempty"`

	// SignatureSuffix, when set, names the detached-signature suffix
	// published next to prebuilt assets (e.g. ".asc"). Signature
	// verification is additional to, never instead of, the checksum.
	SignatureSuffix string `yaml:"signature_suffix,omitempty"`
}

// SolverDownload pins one standalone Z3 artifact.
type SolverDownload struct {
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum"`
}

// SolverConfig pins the standalone Z3 solver. Downloads are only needed
// on source-build platforms; prebuilt F* archives bundle the solver.
type SolverConfig struct {
	Version   string                    `yaml:"version"`
	Downloads map[string]SolverDownload `yaml:"downloads,omitempty"`
}

// KaramelConfig pins the KaRaMeL source acquisition and build targets.
type KaramelConfig struct {
	Repo   string `yaml:"repo"`
	Commit string `yaml:"commit"`
}

// OCamlConfig pins the runtime toolchain provisioned through opam.
type OCamlConfig struct {
	Version string `yaml:"version"`
	// Packages is ordered; opam installs them in this order.
	Packages []string `yaml:"packages"`
}
