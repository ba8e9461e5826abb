// Package ingest turns documents into a single normalized text body.
//
// Decoders are selected by lowercased file extension: pdf, docx and txt.
// Every error returned here is fatal to the request that triggered it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupportedFormat is returned for extensions without a decoder.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrFileTooLarge is returned when a document exceeds MaxFileBytes.
	ErrFileTooLarge = errors.New("document too large")
	// ErrPathNotAllowed is returned for paths outside AllowedRoots.
	ErrPathNotAllowed = errors.New("path not allowed")
)

// DefaultMaxFileBytes bounds documents when Options.MaxFileBytes is zero.
const DefaultMaxFileBytes int64 = 32 << 20

type decodeFunc func(ctx context.Context, data []byte) (string, error)

var decoders = map[string]decodeFunc{
	"pdf":  decodePDF,
	"docx": decodeDOCX,
	"txt":  decodeTXT,
}

// Options configures a Decoder.
type Options struct {
	MaxFileBytes int64
	// AllowedRoots restricts DecodeFile to paths under these directories.
	// Empty means any readable path is accepted.
	AllowedRoots []string
}

// Decoder reads documents from disk or memory.
type Decoder struct {
	maxBytes int64
	roots    []string
}

// New builds a Decoder. Allowed roots are made absolute once here.
func New(opts Options) (*Decoder, error) {
	d := &Decoder{maxBytes: opts.MaxFileBytes}
	if d.maxBytes <= 0 {
		d.maxBytes = DefaultMaxFileBytes
	}
	for _, root := range opts.AllowedRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed root %q: %w", root, err)
		}
		d.roots = append(d.roots, filepath.Clean(abs))
	}
	return d, nil
}

// MaxFileBytes reports the configured size limit.
func (d *Decoder) MaxFileBytes() int64 { return d.maxBytes }

// DecodeFile reads the document at path and returns its text.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (string, error) {
	ext := Extension(path)
	if _, ok := decoders[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	abs, err := d.checkPath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", errors.New("document path is a directory")
	}
	if info.Size() > d.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), d.maxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return d.DecodeBytes(ctx, path, data)
}

// DecodeBytes decodes an in-memory document; name supplies the extension.
func (d *Decoder) DecodeBytes(ctx context.Context, name string, data []byte) (string, error) {
	ext := Extension(name)
	decode, ok := decoders[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if int64(len(data)) > d.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), d.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := decode(ctx, data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", ext, err)
	}
	return Normalize(text), nil
}

func (d *Decoder) checkPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve document path: %w", err)
	}
	abs = filepath.Clean(abs)
	if len(d.roots) == 0 {
		return abs, nil
	}
	for _, root := range d.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, filepath.Base(abs))
}

// Extension returns the lowercased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Formats lists the supported extensions.
func Formats() []string {
	out := make([]string, 0, len(decoders))
	for ext := range decoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Normalize strips a leading byte order mark and converts text to NFC so that
// decoded files and inline text compare equal.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	return norm.NFC.String(text)
}
