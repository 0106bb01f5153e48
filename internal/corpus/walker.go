// Package corpus enumerates the files of a source tree.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// Entry is one regular file found under a source root.
type Entry struct {
	// Path is the filesystem path of the file.
	Path string
	// Rel is Path relative to the root, slash separated. For a single-file
	// root it is the file's base name.
	Rel     string
	ModTime int64 // milliseconds since epoch
	Size    int64
}

type walkOptions struct {
	extensions []string
}

// Option configures Walk.
type Option func(*walkOptions)

// WithExtensions restricts the walk to files with one of the given
// extensions (case-insensitive, leading dot optional). Empty means all files.
func WithExtensions(exts ...string) Option {
	return func(o *walkOptions) { o.extensions = exts }
}

// Check verifies that root exists and is a readable file or directory.
func Check(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: source root %s: %w", apperrors.ErrInvalidInput, root, err)
	}
	if info.IsDir() {
		f, err := os.Open(root)
		if err != nil {
			return fmt.Errorf("%w: source root %s: %w", apperrors.ErrInvalidInput, root, err)
		}
		defer f.Close()
		if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: source root %s is not readable: %w", apperrors.ErrInvalidInput, root, err)
		}
		return nil
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: source root %s is not a regular file or directory", apperrors.ErrInvalidInput, root)
	}
	f, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("%w: source root %s is not readable: %w", apperrors.ErrInvalidInput, root, err)
	}
	return f.Close()
}

// Walk yields every regular file under root in lexical order. Symbolic links
// are skipped. Errors for unreadable directories or files are yielded with
// an Entry carrying only Path, and the walk continues.
func Walk(root string, opts ...Option) iter.Seq2[Entry, error] {
	o := &walkOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return func(yield func(Entry, error) bool) {
		// The root itself may be a link; links below it are not followed.
		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			yield(Entry{Path: root}, err)
			return
		}
		info, err := os.Stat(resolved)
		if err != nil {
			yield(Entry{Path: root}, err)
			return
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() && o.allowed(root) {
				yield(entryFor(root, filepath.Base(root), info), nil)
			}
			return
		}

		_ = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if !yield(Entry{Path: path}, walkErr) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
				return nil
			}
			if !o.allowed(path) {
				return nil
			}
			finfo, err := d.Info()
			if err != nil {
				if !yield(Entry{Path: path}, err) {
					return fs.SkipAll
				}
				return nil
			}
			rel, err := filepath.Rel(resolved, path)
			if err != nil {
				rel = filepath.Base(path)
			}
			if !yield(entryFor(path, filepath.ToSlash(rel), finfo), nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

func entryFor(path, rel string, info fs.FileInfo) Entry {
	return Entry{
		Path:    path,
		Rel:     rel,
		ModTime: info.ModTime().UnixMilli(),
		Size:    info.Size(),
	}
}

func (o *walkOptions) allowed(path string) bool {
	if len(o.extensions) == 0 {
		return true
	}
	return ExtensionAllowed(filepath.Ext(path), o.extensions)
}

// ExtensionAllowed reports whether ext matches one of allowed, ignoring case
// and a leading dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
