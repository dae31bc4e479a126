// Package paths expands the paths users type at the prompt. A leading
// "~" becomes the home directory, and named prefixes from the config
// ("notes:" -> "~/Documents/notes") let `look notes:todo.md` address
// files without typing full paths.
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps named prefixes to absolute directory paths. It is
// nil-safe: a nil *Resolver only performs home expansion.
type Resolver struct {
	prefixes map[string]string // "notes:" -> "/home/me/Documents/notes"
	sorted   []string          // prefixes sorted by descending length
}

// New creates a Resolver from a prefix-to-directory map. Keys are
// prefix names without the trailing colon. Tildes in values are
// expanded at construction time. Returns nil if the map is empty.
func New(prefixes map[string]string) *Resolver {
	if len(prefixes) == 0 {
		return nil
	}
	m := make(map[string]string, len(prefixes))
	sorted := make([]string, 0, len(prefixes))
	for name, dir := range prefixes {
		key := name
		if !strings.HasSuffix(key, ":") {
			key += ":"
		}
		m[key] = ExpandHome(dir)
		sorted = append(sorted, key)
	}
	// Longer prefixes first so "doc:" cannot steal "docs:" matches.
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return &Resolver{prefixes: m, sorted: sorted}
}

// Resolve expands a prefixed or tilde path. Paths matching neither are
// returned unchanged. A bare prefix ("notes:") returns the prefix root.
func (r *Resolver) Resolve(path string) string {
	if r != nil {
		for _, prefix := range r.sorted {
			if strings.HasPrefix(path, prefix) {
				rel := strings.TrimPrefix(path, prefix)
				base := r.prefixes[prefix]
				if rel == "" {
					return base
				}
				return filepath.Join(base, rel)
			}
		}
	}
	return ExpandHome(path)
}

// Prefixes returns the registered prefix names sorted alphabetically,
// without trailing colons.
func (r *Resolver) Prefixes() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		names = append(names, strings.TrimSuffix(prefix, ":"))
	}
	sort.Strings(names)
	return names
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
