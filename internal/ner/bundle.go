package ner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBundleStateNotFound is returned when state.json is missing.
var ErrBundleStateNotFound = errors.New("ner bundle state not found")

// BundleState records which versioned subdirectory of a bundle root is active.
type BundleState struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// ManifestFile describes one file entry in manifest.json.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest mirrors manifest.json.
type Manifest struct {
	Model     string         `json:"model"`
	Version   string         `json:"version"`
	CreatedAt string         `json:"created_at"`
	Files     []ManifestFile `json:"files"`
}

// LoadBundleState reads <baseDir>/state.json.
func LoadBundleState(baseDir string) (BundleState, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return BundleState{}, errors.New("baseDir is empty")
	}
	data, err := os.ReadFile(filepath.Join(baseDir, "state.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BundleState{}, ErrBundleStateNotFound
		}
		return BundleState{}, fmt.Errorf("read bundle state: %w", err)
	}
	var state BundleState
	if err := json.Unmarshal(data, &state); err != nil {
		return BundleState{}, fmt.Errorf("decode bundle state: %w", err)
	}
	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	return state, nil
}

// ResolveBundleDir returns the directory holding the model files. When dir
// carries a state.json, the current version subdirectory is used; otherwise
// dir itself is the bundle.
func ResolveBundleDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("ner bundle dir is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat bundle dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bundle path %s is not a directory", dir)
	}

	state, err := LoadBundleState(dir)
	switch {
	case errors.Is(err, ErrBundleStateNotFound):
		return dir, nil
	case err != nil:
		return "", err
	case state.CurrentVersion == "":
		return "", errors.New("bundle state has no current_version")
	}
	resolved, err := resolveBundlePath(dir, state.CurrentVersion)
	if err != nil {
		return "", fmt.Errorf("resolve bundle version: %w", err)
	}
	return resolved, nil
}

// VerifyManifest checks size and sha256 of every file listed in
// <dir>/manifest.json.
func VerifyManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if len(manifest.Files) == 0 {
		return errors.New("manifest lists no files")
	}

	for _, f := range manifest.Files {
		local, err := resolveBundlePath(dir, filepath.FromSlash(f.Path))
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", f.Path, err)
		}
		info, err := os.Stat(local)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.Path, err)
		}
		if f.Size > 0 && info.Size() != f.Size {
			return fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, info.Size())
		}
		if f.SHA256 == "" {
			continue
		}
		sum, err := fileSHA256(local)
		if err != nil {
			return fmt.Errorf("hash %s: %w", f.Path, err)
		}
		if !strings.EqualFold(sum, f.SHA256) {
			return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
		}
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveBundlePath joins rel onto base and rejects absolute paths and
// anything escaping base.
func resolveBundlePath(base, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path %q not allowed", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes bundle", rel)
	}
	return filepath.Join(base, clean), nil
}
