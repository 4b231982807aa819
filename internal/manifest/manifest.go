// Package manifest is the immutable registry of stack versions.
//
// The registry table ships embedded in the binary as YAML and is parsed
// once at construction. Nothing mutates it afterwards: lookups and
// listings are read-only, and pinned checksums are the only checksums the
// installer will ever trust.
package manifest

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verifiedlabs/fstarup/internal/platform"
	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

//go:embed versions.yaml
var embeddedVersions []byte

// idPattern matches stack version ids: YYYY.MM.DD-stack.N.
var idPattern = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})-stack\.(\d+)$`)

// Registry holds every registered stack version, keyed by id.
// Construct it once at process start; it is safe for concurrent reads.
type Registry struct {
	latest  string
	byID    map[string]StackVersion
	ordered []string
}

type registryFile struct {
	Latest   string         `yaml:"latest"`
	Versions []StackVersion `yaml:"versions"`
}

// Load parses the embedded version table into a Registry.
func Load() (*Registry, error) {
	return parse(embeddedVersions)
}

func parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, stackerr.Wrap(stackerr.KindConfiguration, err, "parse version table")
	}
	return New(file.Latest, file.Versions)
}

// New builds a Registry from an explicit version list. The latest pointer
// must name a registered id. Every version is validated for unambiguous
// platform coverage before registration.
func New(latest string, versions []StackVersion) (*Registry, error) {
	r := &Registry{
		latest: latest,
		byID:   make(map[string]StackVersion, len(versions)),
	}
	for _, sv := range versions {
		if _, dup := r.byID[sv.ID]; dup {
			return nil, stackerr.New(stackerr.KindConfiguration, "duplicate stack version id %q", sv.ID)
		}
		if err := validate(sv); err != nil {
			return nil, err
		}
		r.byID[sv.ID] = sv
		r.ordered = append(r.ordered, sv.ID)
	}
	if latest != "" {
		if _, ok := r.byID[latest]; !ok {
			return nil, stackerr.New(stackerr.KindConfiguration, "latest pointer %q is not a registered version", latest)
		}
	}
	sortVersionIDs(r.ordered)
	return r, nil
}

// validate enforces that each known platform key resolves to exactly one
// of {prebuilt checksum, source-build configuration} — never neither and
// never both.
func validate(sv StackVersion) error {
	if sv.ID == "" {
		return stackerr.New(stackerr.KindConfiguration, "stack version with empty id")
	}
	source := make(map[string]bool, len(sv.SourcePlatforms))
	for _, key := range sv.SourcePlatforms {
		source[key] = true
	}
	for _, key := range platform.Known {
		_, prebuilt := sv.FStar.Checksums[key.String()]
		switch {
		case prebuilt && source[key.String()]:
			return stackerr.New(stackerr.KindConfiguration,
				"%s: platform %s is both prebuilt and source-build", sv.ID, key)
		case !prebuilt && !source[key.String()]:
			return stackerr.New(stackerr.KindConfiguration,
				"%s: platform %s has neither a prebuilt checksum nor a source-build entry", sv.ID, key)
		}
	}
	if len(sv.SourcePlatforms) > 0 {
		if sv.FStar.SourceURL == "" || sv.FStar.SourceChecksum == "" {
			return stackerr.New(stackerr.KindConfiguration,
				"%s: source-build platforms declared but source tarball is not pinned", sv.ID)
		}
	}
	return nil
}

// Lookup returns the configuration for a stack version id.
func (r *Registry) Lookup(id string) (StackVersion, error) {
	sv, ok := r.byID[id]
	if !ok {
		return StackVersion{}, stackerr.New(stackerr.KindConfiguration, "unknown stack version %q", id)
	}
	return sv, nil
}

// Latest returns the id the registry designates as newest.
func (r *Registry) Latest() string {
	return r.latest
}

// List returns all registered ids sorted strictly descending by
// (year, month, day, sequence). Ids that do not parse sort by plain
// string comparison instead; malformed ids never cause a panic.
func (r *Registry) List() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Describe renders a one-line summary for the list command, annotating
// the latest id.
func (r *Registry) Describe(id string) string {
	sv, ok := r.byID[id]
	if !ok {
		return id
	}
	line := id
	if id == r.latest {
		line += " (latest)"
	}
	if sv.Notes != "" {
		line += " — " + sv.Notes
	}
	return line
}

type parsedID struct {
	year, month, day, seq int
	ok                    bool
}

func parseID(id string) parsedID {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return parsedID{}
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	seq, _ := strconv.Atoi(m[4])
	return parsedID{year: year, month: month, day: day, seq: seq, ok: true}
}

// sortVersionIDs orders ids newest first. Parsed ids compare by their
// date tuple; anything unparsable falls back to lexical comparison.
func sortVersionIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := parseID(ids[i]), parseID(ids[j])
		if a.ok && b.ok {
			if a.year != b.year {
				return a.year > b.year
			}
			if a.month != b.month {
				return a.month > b.month
			}
			if a.day != b.day {
				return a.day > b.day
			}
			return a.seq > b.seq
		}
		if a.ok != b.ok {
			// Well-formed ids sort ahead of malformed ones.
			return a.ok
		}
		return strings.Compare(ids[i], ids[j]) > 0
	})
}

// IsSourceBuild reports whether the given platform key requires building
// the primary component from source for this version.
func (sv StackVersion) IsSourceBuild(key platform.Key) bool {
	for _, k := range sv.SourcePlatforms {
		if k == key.String() {
			return true
		}
	}
	return false
}

// AssetName returns the prebuilt archive filename for a platform key,
// following the upstream release naming scheme.
func (sv StackVersion) AssetName(key platform.Key) (string, error) {
	osName, err := releaseOSName(key.OS())
	if err != nil {
		return "", err
	}
	archName, err := releaseArchName(key.Arch())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fstar-%s-%s-%s.tar.gz", sv.FStar.ReleaseTag, osName, archName), nil
}

// releaseOSName maps a platform key OS to the upstream release spelling.
func releaseOSName(osType string) (string, error) {
	switch osType {
	case "linux":
		return "Linux", nil
	case "darwin":
		return "Darwin", nil
	default:
		return "", stackerr.New(stackerr.KindConfiguration, "no release asset naming for OS %q", osType)
	}
}

// releaseArchName maps a platform key arch to the upstream release spelling.
func releaseArchName(arch string) (string, error) {
	switch arch {
	case "amd64":
		return "x86_64", nil
	case "arm64":
		return "aarch64", nil
	default:
		return "", stackerr.New(stackerr.KindConfiguration, "no release asset naming for arch %q", arch)
	}
}
