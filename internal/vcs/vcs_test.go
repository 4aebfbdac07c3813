package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"guardian/internal/config"
	"guardian/internal/guardian"
)

// initRepo creates a repository in a temp dir, optionally with one commit,
// and returns the dir and the commit hash.
func initRepo(t *testing.T, commit bool) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	if !commit {
		return dir, ""
	}

	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if _, err := wt.Add("README"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return dir, hash.String()
}

func readers() map[string]func() guardian.RevisionReader {
	return map[string]func() guardian.RevisionReader{
		"git":    func() guardian.RevisionReader { return NewGitReader(5 * time.Second) },
		"go-git": func() guardian.RevisionReader { return NewGoGitReader(5 * time.Second) },
	}
}

func TestReaders_Revision(t *testing.T) {
	for name, newReader := range readers() {
		t.Run(name, func(t *testing.T) {
			if name == "git" {
				if _, err := exec.LookPath("git"); err != nil {
					t.Skip("git binary not available")
				}
			}

			t.Run("reports HEAD of a repository", func(t *testing.T) {
				dir, want := initRepo(t, true)
				got, err := newReader().Revision(context.Background(), dir)
				if err != nil {
					t.Fatalf("Revision() error = %v", err)
				}
				if got != want {
					t.Errorf("Revision() = %q, want %q", got, want)
				}
			})

			t.Run("directory without .git", func(t *testing.T) {
				_, err := newReader().Revision(context.Background(), t.TempDir())
				if !errors.Is(err, ErrNotRepository) {
					t.Errorf("Revision() error = %v, want ErrNotRepository", err)
				}
			})

			t.Run("repository without commits", func(t *testing.T) {
				dir, _ := initRepo(t, false)
				if _, err := newReader().Revision(context.Background(), dir); err == nil {
					t.Error("Revision() expected error for repository without commits")
				}
			})

			t.Run("cancelled context", func(t *testing.T) {
				dir, _ := initRepo(t, true)
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				if _, err := newReader().Revision(ctx, dir); err == nil {
					t.Error("Revision() expected error for cancelled context")
				}
			})
		})
	}
}

func TestGitReader_MissingBinary(t *testing.T) {
	dir, _ := initRepo(t, true)
	p := &GitReader{binary: "definitely-not-a-git-binary", timeout: time.Second}

	if _, err := p.Revision(context.Background(), dir); err == nil {
		t.Error("Revision() expected error for missing binary")
	}
}

func TestNewReaderFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{typ: "git"},
		{typ: ""},
		{typ: "go-git"},
		{typ: "none"},
		{typ: "svn", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			p, err := NewReaderFromConfig(config.VCSConfig{Type: tt.typ, TimeoutMS: 100})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewReaderFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && p == nil {
				t.Error("NewReaderFromConfig() returned nil reader")
			}
		})
	}

	if _, err := (NoneReader{}).Revision(context.Background(), t.TempDir()); !errors.Is(err, ErrNotRepository) {
		t.Errorf("NoneReader.Revision() error = %v, want ErrNotRepository", err)
	}
}
