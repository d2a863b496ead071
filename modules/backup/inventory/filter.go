package inventory

import (
	"fmt"
	"path"

	"github.com/gobwas/glob"
)

// MatchAll reports whether the pattern selects every file
func MatchAll(pattern string) bool {
	return pattern == "" || pattern == "*.*" || pattern == "*"
}

// ValidatePattern checks that pattern can be compiled
func ValidatePattern(pattern string) error {
	if MatchAll(pattern) {
		return nil
	}
	if _, err := glob.Compile(pattern); err != nil {
		return fmt.Errorf("invalid filter pattern `%s`: %w", pattern, err)
	}
	return nil
}

// Filter keeps every directory and the files whose base name matches pattern.
// Order of entries is preserved.
func Filter(inv Inventory, pattern string) (Inventory, error) {

	out := Inventory{Root: inv.Root, Entries: make([]Entry, 0, len(inv.Entries))}

	if MatchAll(pattern) {
		out.Entries = append(out.Entries, inv.Entries...)
		return out, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return out, fmt.Errorf("invalid filter pattern `%s`: %w", pattern, err)
	}

	for _, e := range inv.Entries {
		if e.IsDir || g.Match(path.Base(e.Path)) {
			out.Entries = append(out.Entries, e)
		}
	}

	return out, nil
}
