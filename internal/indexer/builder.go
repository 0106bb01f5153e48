// Package indexer builds an index from a source tree: it plans what to do
// with an existing index, walks the tree, and commits one document per file.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hyperjump/kazoeru/internal/corpus"
	"github.com/hyperjump/kazoeru/internal/extract"
	"github.com/hyperjump/kazoeru/internal/keyword"
	"github.com/hyperjump/kazoeru/internal/metrics"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/storage"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
	"go.uber.org/zap"
)

// Reasons a file is left out of a build.
const (
	SkipWalk   = "walk"
	SkipRead   = "read"
	SkipDecode = "decode"
)

// SkippedFile is a file that could not be indexed. The build carried on
// without it.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// BuildResult summarizes one build.
type BuildResult struct {
	Mode     models.BuildMode `json:"mode"`
	OpenMode storage.OpenMode `json:"open_mode"`
	// Skipped is true when an existing index was left untouched.
	Skipped      bool          `json:"skipped"`
	Added        int           `json:"added"`
	Replaced     int           `json:"replaced"`
	Removed      int           `json:"removed,omitempty"`
	SkippedFiles []SkippedFile `json:"skipped_files,omitempty"`
	Generation   string        `json:"generation"`
	Duration     time.Duration `json:"duration"`
}

// Committed is the number of documents written by the build.
func (r *BuildResult) Committed() int {
	return r.Added + r.Replaced
}

// Builder indexes source trees with one storage engine and one tokenizer.
// A Builder holds no per-build state; concurrent builds must target
// different locations.
type Builder struct {
	engine     storage.Engine
	tokenizer  keyword.Tokenizer
	extractor  TextExtractor
	extensions []string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// TextExtractor reads a file and returns its text. *extract.Extractor is the
// implementation used by the CLI.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger. Per-file events are logged at debug, skipped
// files at warn, build summaries at info.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records builds on m.
func WithMetrics(m *metrics.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// WithExtractor replaces the default plain-text extractor.
func WithExtractor(e TextExtractor) BuilderOption {
	return func(b *Builder) { b.extractor = e }
}

// WithExtensions limits builds to files with the given extensions.
func WithExtensions(exts []string) BuilderOption {
	return func(b *Builder) { b.extensions = exts }
}

// NewBuilder returns a Builder writing through engine.
func NewBuilder(engine storage.Engine, tokenizer keyword.Tokenizer, opts ...BuilderOption) *Builder {
	b := &Builder{
		engine:    engine,
		tokenizer: tokenizer,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build indexes every file under source into the index at location.
//
// Per-file failures are recorded in the result and do not stop the build.
// Failures to open, commit to, or close the index are returned; documents
// committed before such a failure stay in the index.
func (b *Builder) Build(ctx context.Context, mode models.BuildMode, source, location string) (res *BuildResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "failed"
		switch {
		case err != nil:
		case res.Skipped:
			outcome = "skipped"
		case res.OpenMode == storage.OpenAppend:
			outcome = "updated"
		default:
			outcome = "created"
		}
		b.metrics.BuildFinished(outcome, time.Since(start))
	}()

	if err := corpus.Check(source); err != nil {
		return nil, err
	}
	p, err := b.plan(ctx, mode, location)
	if err != nil {
		return nil, err
	}

	res = &BuildResult{Mode: mode}
	if p.skip {
		res.Skipped = true
		res.Generation = p.existing.Generation
		res.Duration = time.Since(start)
		b.logger.Info("index exists, skipping build",
			zap.String("location", location),
			zap.String("generation", res.Generation))
		return res, nil
	}
	res.OpenMode = p.openMode

	w, err := b.engine.Open(ctx, location, p.openMode)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			res, err = nil, fmt.Errorf("close index: %w", cerr)
		}
	}()
	res.Generation = w.Info().Generation

	b.logger.Info("building index",
		zap.Stringer("mode", mode),
		zap.Stringer("open_mode", p.openMode),
		zap.String("source", source),
		zap.String("location", location),
		zap.String("engine", b.engine.Name()))

	own := b.indexFiles(location)
	for entry, walkErr := range corpus.Walk(source, corpus.WithExtensions(b.extensions...)) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build interrupted: %w", err)
		}
		if walkErr != nil {
			b.skip(res, entry.Path, SkipWalk, walkErr)
			continue
		}
		if _, ok := own[absPath(entry.Path)]; ok {
			b.logger.Debug("ignoring index file", zap.String("path", entry.Path))
			continue
		}
		text, err := b.extractor.Extract(entry.Path)
		if err != nil {
			reason := SkipRead
			if errors.Is(err, apperrors.ErrUndecodable) {
				reason = SkipDecode
			}
			b.skip(res, entry.Path, reason, err)
			continue
		}
		doc := b.tokenizer.Document(entry.Rel, entry.ModTime, text)
		if err := b.commit(ctx, w, p.commit, doc, res); err != nil {
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	b.logger.Info("index built",
		zap.String("location", location),
		zap.Int("added", res.Added),
		zap.Int("replaced", res.Replaced),
		zap.Int("skipped_files", len(res.SkippedFiles)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (b *Builder) commit(ctx context.Context, w storage.Writer, strategy commitStrategy, doc *models.Document, res *BuildResult) error {
	switch strategy {
	case commitReplace:
		b.logger.Debug("updating document", zap.String("path", doc.Path), zap.Int("terms", len(doc.Vector)))
		replaced, err := w.ReplaceDocument(ctx, models.FieldPath, doc.Path, doc)
		if err != nil {
			return fmt.Errorf("replace %s: %w", doc.Path, err)
		}
		if replaced {
			res.Replaced++
			b.metrics.DocumentCommitted("replace")
		} else {
			res.Added++
			b.metrics.DocumentCommitted("add")
		}
	default:
		b.logger.Debug("adding document", zap.String("path", doc.Path), zap.Int("terms", len(doc.Vector)))
		if err := w.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add %s: %w", doc.Path, err)
		}
		res.Added++
		b.metrics.DocumentCommitted("add")
	}
	return nil
}

// indexFiles returns the resolved paths of the engine's files at location, so
// that an index kept inside its own source tree is not indexed.
func (b *Builder) indexFiles(location string) map[string]struct{} {
	files := make(map[string]struct{})
	dir, err := filepath.EvalSymlinks(location)
	if err != nil {
		return files
	}
	for _, f := range b.engine.Files(absPath(dir)) {
		files[f] = struct{}{}
	}
	return files
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func (b *Builder) skip(res *BuildResult, path, reason string, err error) {
	b.logger.Warn("skipping file",
		zap.String("path", path),
		zap.String("reason", reason),
		zap.Error(err))
	b.metrics.FileSkipped(reason)
	res.SkippedFiles = append(res.SkippedFiles, SkippedFile{Path: path, Reason: reason, Error: err.Error()})
}
