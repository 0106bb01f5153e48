// Package stats derives document and term frequencies from a built index.
package stats

import (
	"context"
	"fmt"

	"github.com/hyperjump/kazoeru/internal/metrics"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/storage"
	"go.uber.org/zap"
)

// Collect reads every document's contents vector from r, in document order,
// and accumulates the statistics. Documents without a vector are counted but
// contribute no terms. r is not modified.
func Collect(ctx context.Context, r storage.Reader) (*models.Statistics, error) {
	s := models.NewStatistics()
	for docNum := 0; docNum < r.DocumentCount(); docNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.Documents++
		vector, ok, err := r.TermVector(ctx, docNum, models.FieldContents)
		if err != nil {
			return nil, fmt.Errorf("term vector of document %d: %w", docNum, err)
		}
		if !ok {
			continue
		}
		doc, err := r.Document(ctx, docNum)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", docNum, err)
		}
		s.Add(doc.Path, vector)
	}
	return s, nil
}

// Extractor runs statistics passes over indexes of one engine.
type Extractor struct {
	engine  storage.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithMetrics records passes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// NewExtractor returns an Extractor reading through engine.
func NewExtractor(engine storage.Engine, opts ...Option) *Extractor {
	e := &Extractor{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract opens the index at location read-only and collects its statistics.
func (e *Extractor) Extract(ctx context.Context, location string) (*models.Statistics, error) {
	r, err := e.engine.OpenReadOnly(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer r.Close()

	s, err := Collect(ctx, r)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("collected statistics",
		zap.String("location", location),
		zap.String("generation", r.Info().Generation),
		zap.Int("documents", s.Documents),
		zap.Int("terms", len(s.DocumentFrequency)))
	e.metrics.StatisticsCollected(s.Documents, len(s.DocumentFrequency))
	return s, nil
}

// Term returns the statistics of a single term. ok is false when no document
// contains it.
func (e *Extractor) Term(ctx context.Context, location, term string) (ts models.TermStatistics, ok bool, err error) {
	s, err := e.Extract(ctx, location)
	if err != nil {
		return models.TermStatistics{}, false, err
	}
	ts, ok = s.Term(term)
	return ts, ok, nil
}
