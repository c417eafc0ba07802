package fetch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/twmb/murmur3"
)

// extractArchive unpacks every entry of the zip at archivePath into dest.
// Files whose content already matches what is on disk are left untouched,
// so re-running a fetch is cheap and never rewrites identical output.
func extractArchive(archivePath, dest string) (extracted, skipped int, err error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		wrote, err := extractFile(zf, dest)
		if err != nil {
			return extracted, skipped, fmt.Errorf("failed to extract %s: %w", zf.Name, err)
		}
		if wrote {
			extracted++
		} else {
			skipped++
		}
	}

	return extracted, skipped, nil
}

// extractFile writes one zip entry under dest. Returns false when the
// on-disk file already has the same content.
func extractFile(zf *zip.File, dest string) (bool, error) {
	path := filepath.Join(dest, zf.Name)

	// ZipSlip guard: the entry must stay inside dest
	rel, err := filepath.Rel(dest, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false, fmt.Errorf("illegal file path: %s", zf.Name)
	}

	rc, err := zf.Open()
	if err != nil {
		return false, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		rc.Close()
		return false, err
	}
	if err := rc.Close(); err != nil {
		return false, err
	}

	same, err := contentMatches(buf.Bytes(), path)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}

	// Write through a temp file so a partially extracted entry never
	// replaces the previous output.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ghadist-*")
	if err != nil {
		return false, err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return false, err
	}

	return true, nil
}

// contentMatches compares content against the file at path using murmur3
// 128-bit hashes. A missing file never matches.
func contentMatches(content []byte, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	hashNew := murmur3.New128()
	if _, err := hashNew.Write(content); err != nil {
		return false, err
	}

	hashOld := murmur3.New128()
	if _, err := io.Copy(hashOld, f); err != nil {
		return false, err
	}

	return bytes.Equal(hashNew.Sum(nil), hashOld.Sum(nil)), nil
}
