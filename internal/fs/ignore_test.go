package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log", "/build/out", "!keep.log", "!"})

	want := []ignoreRule{
		{glob: "*.log"},
		{glob: "build/out", anchored: true},
		{glob: "keep.log", negate: true},
	}
	if len(m.rules) != len(want) {
		t.Fatalf("compiled %d rules, want %d: %+v", len(m.rules), len(want), m.rules)
	}
	for i := range want {
		if m.rules[i] != want[i] {
			t.Errorf("rule %d = %+v, want %+v", i, m.rules[i], want[i])
		}
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name  string
		rules []string
		path  string
		want  bool
	}{
		{"basename glob", []string{"*.log"}, "app.log", true},
		{"other extension", []string{"*.log"}, "app.txt", false},
		{"dotfile", []string{".env"}, ".env", true},
		{"basename rule in subdirectory", []string{"*.log"}, filepath.Join("sub", "app.log"), true},
		{"anchored rule", []string{"build/*.o"}, filepath.Join("build", "main.o"), true},
		{"anchored rule elsewhere", []string{"build/*.o"}, filepath.Join("src", "main.o"), false},
		{"leading slash", []string{"/dist/*"}, filepath.Join("dist", "x.js"), true},
		{"negation re-includes", []string{"*.log", "!keep.log"}, "keep.log", false},
		{"negation leaves others", []string{"*.log", "!keep.log"}, "drop.log", true},
		{"last rule wins", []string{"!keep.log", "*.log"}, "keep.log", true},
		{"malformed glob skipped", []string{"[", "*.tmp"}, "x.tmp", true},
		{"no rules", nil, "anything.txt", false},
		{"empty path", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewIgnoreMatcher(tt.rules).Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, IgnoreFile)

	lines, err := ParseIgnoreFile(name)
	if err != nil || lines != nil {
		t.Fatalf("missing file: lines = %v, err = %v", lines, err)
	}

	if err := os.WriteFile(name, []byte("*.log\n# comment\n\n!keep.log\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err = ParseIgnoreFile(name)
	if err != nil {
		t.Fatalf("ParseIgnoreFile() error = %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 unfiltered", len(lines))
	}
	if m := NewIgnoreMatcher(lines); len(m.rules) != 2 {
		t.Errorf("compiled %d rules, want 2", len(m.rules))
	}
}
