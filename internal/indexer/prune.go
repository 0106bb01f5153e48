package indexer

import (
	"context"
	"fmt"

	"github.com/hyperjump/kazoeru/internal/corpus"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/storage"
	"go.uber.org/zap"
)

// Prune deletes documents whose files are no longer under source. It returns
// the number of documents removed. A missing index is an error.
func (b *Builder) Prune(ctx context.Context, source, location string) (int, error) {
	if err := corpus.Check(source); err != nil {
		return 0, err
	}
	stored, err := b.storedPaths(ctx, location)
	if err != nil {
		return 0, err
	}

	present := make(map[string]struct{}, len(stored))
	for entry, walkErr := range corpus.Walk(source, corpus.WithExtensions(b.extensions...)) {
		if walkErr != nil {
			// Unreadable is not the same as gone; keep what was indexed.
			return 0, fmt.Errorf("prune: walk %s: %w", entry.Path, walkErr)
		}
		present[entry.Rel] = struct{}{}
	}

	var gone []string
	for _, path := range stored {
		if _, ok := present[path]; !ok {
			gone = append(gone, path)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}

	w, err := b.engine.Open(ctx, location, storage.OpenAppend)
	if err != nil {
		return 0, fmt.Errorf("open index: %w", err)
	}
	removed := 0
	for _, path := range gone {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return removed, err
		}
		deleted, err := w.DeleteDocument(ctx, models.FieldPath, path)
		if err != nil {
			_ = w.Close()
			return removed, fmt.Errorf("delete %s: %w", path, err)
		}
		if deleted {
			removed++
			b.metrics.DocumentCommitted("delete")
			b.logger.Debug("removed document", zap.String("path", path))
		}
	}
	if err := w.Close(); err != nil {
		return removed, fmt.Errorf("close index: %w", err)
	}
	b.logger.Info("pruned index", zap.String("location", location), zap.Int("removed", removed))
	return removed, nil
}

func (b *Builder) storedPaths(ctx context.Context, location string) ([]string, error) {
	r, err := b.engine.OpenReadOnly(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer r.Close()

	paths := make([]string, 0, r.DocumentCount())
	for i := 0; i < r.DocumentCount(); i++ {
		doc, err := r.Document(ctx, i)
		if err != nil {
			return nil, err
		}
		paths = append(paths, doc.Path)
	}
	return paths, nil
}
