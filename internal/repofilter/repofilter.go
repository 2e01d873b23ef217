// Package repofilter excludes repositories from collection by name,
// using the patterns of a gitignore-style list.
package repofilter

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// Filter holds the compiled ignore patterns. A nil Filter matches nothing,
// so callers never need to special-case an absent ignore list.
type Filter struct {
	patterns []string
}

// Compile builds a Filter from raw pattern lines. Blank lines and lines
// starting with # are dropped; the rest are kept verbatim, so matching
// stays case-sensitive.
func Compile(lines []string) *Filter {
	f := &Filter{}
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.patterns = append(f.patterns, line)
	}
	return f
}

// Load reads an ignore file and compiles its patterns.
func Load(filename string) (*Filter, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return Compile(strings.Split(string(data), "\n")), nil
}

// Matches reports whether a repository name is excluded. Patterns support
// the * and ? wildcards; a pattern that is not valid glob syntax falls back
// to an exact comparison.
func (f *Filter) Matches(name string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
		if p == name {
			return true
		}
	}
	return false
}

// Len reports how many patterns the filter carries.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}
