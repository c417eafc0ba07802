package fetch

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "artifact.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractArchive_NestedDirs(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, map[string]string{
		"a.whl":          "wheel",
		"lib/sub/b.so":   "object",
		"lib/sub/c.json": "{}",
	})

	extracted, skipped, err := extractArchive(archive, dir)
	if err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	if extracted != 3 {
		t.Errorf("extracted = %d, want 3", extracted)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}

	content, err := os.ReadFile(filepath.Join(dir, "lib", "sub", "b.so"))
	if err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
	if string(content) != "object" {
		t.Errorf("content = %q, want %q", content, "object")
	}
}

func TestExtractArchive_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, map[string]string{
		"same.txt":    "unchanged",
		"changed.txt": "new-content",
	})

	if err := os.WriteFile(filepath.Join(dir, "same.txt"), []byte("unchanged"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "changed.txt"), []byte("old-content"), 0644); err != nil {
		t.Fatal(err)
	}

	extracted, skipped, err := extractArchive(archive, dir)
	if err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	if extracted != 1 {
		t.Errorf("extracted = %d, want 1", extracted)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}

	content, err := os.ReadFile(filepath.Join(dir, "changed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new-content" {
		t.Errorf("content = %q, want %q", content, "new-content")
	}
}

func TestExtractArchive_ZipSlip(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	archive := writeArchive(t, dir, map[string]string{
		"../evil.txt": "escape",
	})

	if _, _, err := extractArchive(archive, dest); err == nil {
		t.Fatal("expected error for path traversal entry")
	}

	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("traversal entry was written outside dest (err=%v)", err)
	}
}

func TestExtractArchive_DotDest(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(cwd); err != nil {
			t.Fatal(err)
		}
	})
	archive := writeArchive(t, ".", map[string]string{"a.whl": "wheel"})

	extracted, _, err := extractArchive(archive, ".")
	if err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	if extracted != 1 {
		t.Errorf("extracted = %d, want 1", extracted)
	}

	content, err := os.ReadFile("a.whl")
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(content) != "wheel" {
		t.Errorf("content = %q, want %q", content, "wheel")
	}
}

func TestExtractArchive_MissingArchive(t *testing.T) {
	if _, _, err := extractArchive(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir()); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestContentMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	same, err := contentMatches([]byte("hello"), path)
	if err != nil {
		t.Fatal(err)
	}
	if !same {
		t.Error("contentMatches = false for identical content")
	}

	same, err = contentMatches([]byte("other"), path)
	if err != nil {
		t.Fatal(err)
	}
	if same {
		t.Error("contentMatches = true for different content")
	}

	same, err = contentMatches([]byte("x"), filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if same {
		t.Error("contentMatches = true for missing file")
	}
}
