package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandGlobs_SingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.tsv")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := ExpandGlobs([]string{file})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 1 || result[0] != file {
		t.Errorf("ExpandGlobs() = %v, want [%s]", result, file)
	}
}

func TestExpandGlobs_GlobPattern(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.tsv", "a.tsv", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	result, err := ExpandGlobs([]string{filepath.Join(dir, "*.tsv")})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.tsv"), filepath.Join(dir, "b.tsv")}
	if len(result) != len(want) {
		t.Fatalf("ExpandGlobs() = %v, want %v", result, want)
	}
	for i := range want {
		if result[i] != want[i] {
			t.Errorf("result[%d] = %s, want %s", i, result[i], want[i])
		}
	}
}

func TestExpandGlobs_NoMatchKeptLiteral(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.tsv")

	result, err := ExpandGlobs([]string{missing})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 1 || result[0] != missing {
		t.Errorf("ExpandGlobs() = %v, want [%s]", result, missing)
	}
}

func TestExpandGlobs_DeduplicatesRelativeAndAbsolute(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.tsv")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	result, err := ExpandGlobs([]string{"data.tsv", file})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 1 {
		t.Errorf("ExpandGlobs() returned %d files, want 1 (deduplicated)", len(result))
	}
	if !filepath.IsAbs(result[0]) {
		t.Errorf("ExpandGlobs() = %v, want absolute path", result)
	}
}

func TestExpandGlobs_InvalidPattern(t *testing.T) {
	if _, err := ExpandGlobs([]string{"[invalid"}); err == nil {
		t.Error("ExpandGlobs() expected error for invalid pattern")
	}
}
