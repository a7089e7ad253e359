// Package dataset fingerprints training datasets so every trained model
// can be traced back to the exact bytes it was trained on.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// FileHash is one dataset file with its content hash.
type FileHash struct {
	Path string `json:"path"` // relative to the dataset root, slash-separated
	Hash string `json:"hash"` // hex sha256 of the file contents
}

// HashFile computes the sha256 of one file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.New(err).
			Component("dataset").
			Category(errors.CategoryDatasetHash).
			Context("path", path).
			Build()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashTree walks the dataset root and hashes every regular file, skipping
// dotfiles. Results are sorted by path so the listing is deterministic
// regardless of filesystem walk order.
func HashTree(root string) ([]FileHash, error) {
	var files []FileHash
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, FileHash{Path: filepath.ToSlash(rel), Hash: hash})
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryDatasetHash).
			Context("root", root).
			Build()
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Fingerprint derives one hash identifying the whole dataset from the
// sorted per-file listing. Any added, removed or modified file changes it.
func Fingerprint(files []FileHash) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Hash))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
