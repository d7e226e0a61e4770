package facts

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ScanPlugins lists the entries of dir whose base name matches pattern (a
// doublestar glob, e.g. "*.sh"), sorted for deterministic replay. A missing
// or unreadable dir yields an empty list rather than an error, since
// BEAKERLIB_JOURNALD plugin loading is always best-effort.
func ScanPlugins(dir string, pattern string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match(pattern, e.Name())
		if err != nil || !ok {
			continue
		}
		names = append(names, filepath.Join(dir, e.Name()))
	}
	sort.Strings(names)
	return names
}
