package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Snapshot is an immutable record of a dataset version. Training runs
// reference snapshots by fingerprint; snapshot files are never rewritten.
type Snapshot struct {
	Fingerprint string     `json:"fingerprint"`
	Root        string     `json:"root"`
	FileCount   int        `json:"file_count"`
	Files       []FileHash `json:"files"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TakeSnapshot hashes the dataset root and writes the snapshot artifact
// into snapshotDir. If a snapshot with the same fingerprint already
// exists it is returned as-is; identical datasets share one version.
func TakeSnapshot(root, snapshotDir string) (*Snapshot, error) {
	files, err := HashTree(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Newf("dataset root %s contains no files", root).
			Component("dataset").
			Category(errors.CategoryValidation).
			Build()
	}

	snap := &Snapshot{
		Fingerprint: Fingerprint(files),
		Root:        root,
		FileCount:   len(files),
		Files:       files,
		CreatedAt:   time.Now().UTC(),
	}

	path := snapshotPath(snapshotDir, snap.Fingerprint)
	if existing, err := LoadSnapshot(path); err == nil {
		return existing, nil
	}

	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("dir", snapshotDir).
			Build()
	}
	if err := writeSnapshotFile(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadSnapshot reads a snapshot artifact from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(err).
				Component("dataset").
				Category(errors.CategoryNotFound).
				Context("path", path).
				Build()
		}
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return &snap, nil
}

// LoadSnapshotByFingerprint resolves a snapshot in snapshotDir.
func LoadSnapshotByFingerprint(snapshotDir, fingerprint string) (*Snapshot, error) {
	return LoadSnapshot(snapshotPath(snapshotDir, fingerprint))
}

// writeSnapshotFile writes via temp file and rename so a crash cannot
// leave a half-written artifact behind.
func writeSnapshotFile(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

func snapshotPath(snapshotDir, fingerprint string) string {
	return filepath.Join(snapshotDir, fmt.Sprintf("dataset-%s.json", fingerprint))
}

// DiffResult lists what changed between two snapshots.
type DiffResult struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether the two snapshots describe identical datasets.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff compares two snapshots by path and hash. Output slices are sorted
// because snapshot listings are.
func Diff(from, to *Snapshot) *DiffResult {
	fromHashes := make(map[string]string, len(from.Files))
	for _, f := range from.Files {
		fromHashes[f.Path] = f.Hash
	}

	result := &DiffResult{}
	seen := make(map[string]bool, len(to.Files))
	for _, f := range to.Files {
		seen[f.Path] = true
		old, ok := fromHashes[f.Path]
		switch {
		case !ok:
			result.Added = append(result.Added, f.Path)
		case old != f.Hash:
			result.Modified = append(result.Modified, f.Path)
		}
	}
	for _, f := range from.Files {
		if !seen[f.Path] {
			result.Removed = append(result.Removed, f.Path)
		}
	}
	return result
}
