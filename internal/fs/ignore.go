package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// builtinIgnores apply to every directory. ".tmp-*" hides the leftovers of
// an interrupted WriteFileAtomic.
var builtinIgnores = []string{IgnoreFile, ".tmp-*"}

type ignoreRule struct {
	glob     string
	anchored bool // matched against the slash-separated relative path
	negate   bool
}

func (r ignoreRule) matches(rel, base string) bool {
	subject := base
	if r.anchored {
		subject = rel
	}
	ok, err := path.Match(r.glob, subject)
	return err == nil && ok
}

// IgnoreMatcher decides whether a workspace path is left out of checkpoints.
//
// Rules follow a small subset of gitignore: a rule containing '/' is matched
// against the whole relative path (a leading '/' is dropped), any other rule
// against the basename. A leading '!' re-includes what an earlier rule
// excluded, and the last matching rule wins. Malformed globs never match.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles lines in order. Blank lines and '#' comments are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		var r ignoreRule
		if line[0] == '!' {
			r.negate = true
			line = line[1:]
		}
		if strings.Contains(line, "/") {
			r.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if line == "" {
			continue
		}
		r.glob = line
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether rel, relative to the directory the rules came from, is ignored.
func (m *IgnoreMatcher) Match(rel string) bool {
	if rel == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, base) {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile returns the lines of an ignore file unfiltered. A missing
// file yields no lines and no error.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return lines, nil
}
