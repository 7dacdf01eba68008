package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("id,quote\n1,hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "data", "b.csv"))
	writeFile(t, filepath.Join(root, "data", "a.csv"))
	writeFile(t, filepath.Join(root, "data", "nested", "c.csv"))
	writeFile(t, filepath.Join(root, "data", "notes.txt"))
	writeFile(t, filepath.Join(root, "data", "archive", "old.csv"))

	w := NewWalker([]string{"data/**/*.csv"}, []string{"data/archive/**"})
	files, err := w.Walk(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"data/a.csv", "data/b.csv", "data/nested/c.csv"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestWalker_DefaultIncludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "quotes.csv"))
	writeFile(t, filepath.Join(root, "readme.md"))

	files, err := NewWalker(nil, nil).Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 csv file, got %d", len(files))
	}
	if files[0].Size == 0 {
		t.Error("expected file size to be recorded")
	}
}
