package grammar

import (
	"fmt"
	"strings"
	"time"
)

// Builtin returns every known grammar, reading local times in loc.
func Builtin(loc *time.Location) []Grammar {
	return []Grammar{
		NewCineworld(loc),
		NewPicturehouse(loc),
	}
}

// Select returns the grammars named in names, in that order. An empty list
// selects all of them.
func Select(names []string, loc *time.Location) ([]Grammar, error) {
	all := Builtin(loc)
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Grammar, len(all))
	for _, g := range all {
		byName[g.Name()] = g
	}

	out := make([]Grammar, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		g, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown vendor %q", n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, g)
	}
	return out, nil
}
