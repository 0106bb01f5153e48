// Package keyword turns document text into term vectors using Bleve analyzers.
package keyword

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/web"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// DefaultAnalyzer is the Bleve analyzer used when none is configured:
// unicode word segmentation, lowercasing, and English stop-word removal.
const DefaultAnalyzer = standard.Name

// BleveAnalyzer implements Tokenizer with a named analyzer from Bleve's registry.
type BleveAnalyzer struct {
	name      string
	analyze   func([]byte) analysis.TokenStream
	positions bool
}

// AnalyzerOption configures a BleveAnalyzer.
type AnalyzerOption func(*BleveAnalyzer)

// WithPositions controls whether term vectors record token positions (default true).
func WithPositions(enabled bool) AnalyzerOption {
	return func(a *BleveAnalyzer) { a.positions = enabled }
}

// NewBleveAnalyzer looks up name in Bleve's analyzer registry ("standard",
// "simple", "keyword", "web", "en", ...). An empty name selects DefaultAnalyzer.
func NewBleveAnalyzer(name string, opts ...AnalyzerOption) (*BleveAnalyzer, error) {
	if name == "" {
		name = DefaultAnalyzer
	}
	im := bleve.NewIndexMapping()
	a := im.AnalyzerNamed(name)
	if a == nil {
		return nil, fmt.Errorf("%w: unknown analyzer %q", apperrors.ErrInvalidInput, name)
	}
	ba := &BleveAnalyzer{name: name, analyze: a.Analyze, positions: true}
	for _, opt := range opts {
		opt(ba)
	}
	return ba, nil
}

// Name returns the registry name of the analyzer.
func (a *BleveAnalyzer) Name() string {
	return a.name
}

// Vector analyzes text and counts each resulting term.
func (a *BleveAnalyzer) Vector(text string) models.TermVector {
	vector := make(models.TermVector)
	for _, tok := range a.analyze([]byte(text)) {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		p := vector[term]
		p.Frequency++
		if a.positions {
			p.Positions = append(p.Positions, tok.Position)
		}
		vector[term] = p
	}
	return vector
}

// Document builds the tokenized model of one file.
func (a *BleveAnalyzer) Document(path string, modified int64, contents string) *models.Document {
	return &models.Document{
		Path:     path,
		Modified: modified,
		Contents: contents,
		Vector:   a.Vector(contents),
	}
}
