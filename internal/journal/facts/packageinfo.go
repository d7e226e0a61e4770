package facts

import (
	"os"
	"strings"

	"github.com/hegerj/beakerlib/internal/journal/xmldoc"
)

// PackageResult is one installed-package record, matching the fields
// spec.md §1 says the external PackageInfo provider returns.
type PackageResult struct {
	Name      string
	Version   string
	Release   string
	Arch      string
	SourceRPM string
	BuildTime string
}

// PackageInfo looks up installed-package records by name. Installed reports
// false when the package is not installed (Results is then empty).
type PackageInfo interface {
	Lookup(name string) (results []PackageResult, installed bool)
}

// NotInstalledPackageInfo is a PackageInfo that reports every package as not
// installed; useful as a safe default and in tests.
type NotInstalledPackageInfo struct{}

func (NotInstalledPackageInfo) Lookup(string) ([]PackageResult, bool) { return nil, false }

// BuildPackageElements renders name's lookup result the way the journal
// wants it recorded: one pkgdetails element per installed record (with a
// sourcerpm attribute and "name-version-release.arch " text), or a single
// pkgnotinstalled element carrying the package name, mirroring
// getRpmVersion in the original daemon. "unknown" is never reported as
// not-installed (there is nothing meaningful to say about it), matching the
// original's special case.
func BuildPackageElements(pi PackageInfo, name string) []*xmldoc.Node {
	results, installed := pi.Lookup(name)
	if !installed {
		if name == "unknown" {
			return nil
		}
		el := xmldoc.NewElement("pkgnotinstalled")
		el.SetText(name)
		return []*xmldoc.Node{el}
	}

	out := make([]*xmldoc.Node, 0, len(results))
	for _, r := range results {
		el := xmldoc.NewElement("pkgdetails")
		el.SetAttr("sourcerpm", r.SourceRPM)
		el.SetText(r.Name + "-" + r.Version + "-" + r.Release + "." + r.Arch + " ")
		out = append(out, el)
	}
	return out
}

// CollectPackageNames merges seed with the env-derived package name lists
// PKGNVR (comma-separated), PACKAGES, and __INTERNAL_RPM_ASSERTED_PACKAGES
// (both whitespace-separated), preserving first-seen order, per spec.md
// §4.3.
func CollectPackageNames(seed []string) []string {
	seen := make(map[string]struct{}, len(seed))
	out := make([]string, 0, len(seed))
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, n := range seed {
		add(n)
	}
	if v, ok := os.LookupEnv("PKGNVR"); ok {
		for _, n := range strings.Split(v, ",") {
			add(n)
		}
	}
	if v, ok := os.LookupEnv("PACKAGES"); ok {
		for _, n := range strings.Fields(v) {
			add(n)
		}
	}
	if v, ok := os.LookupEnv("__INTERNAL_RPM_ASSERTED_PACKAGES"); ok {
		for _, n := range strings.Fields(v) {
			add(n)
		}
	}
	return out
}
