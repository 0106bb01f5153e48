// Package extract decodes file contents into the text that gets indexed.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor turns file bytes into text. By default every file must be valid
// UTF-8; with rich formats enabled, known binary formats are converted first.
type Extractor struct {
	rich bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRichFormats enables text extraction from PDF, XLSX, DOCX, PPTX, and
// OpenDocument files. Without it those files are decoded as plain text.
func WithRichFormats(enabled bool) Option {
	return func(e *Extractor) { e.rich = enabled }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RichFormats reports whether binary formats are converted.
func (e *Extractor) RichFormats() bool {
	return e.rich
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes decodes content according to ext (with leading dot, e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if e.rich {
		switch ext {
		case ".pdf":
			return extractPDF(content)
		case ".xlsx":
			return extractExcel(content)
		}
		if format, ok := archiveFormats[ext]; ok {
			return format.extract(content)
		}
	}
	return extractPlain(content)
}
