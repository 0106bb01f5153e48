package keyword

import "github.com/hyperjump/kazoeru/internal/models"

// Tokenizer builds the tokenized document model from raw text.
type Tokenizer interface {
	// Vector returns the term vector of text.
	Vector(text string) models.TermVector
	// Document returns a document whose Vector is derived from contents.
	Document(path string, modified int64, contents string) *models.Document
}

var _ Tokenizer = (*BleveAnalyzer)(nil)
