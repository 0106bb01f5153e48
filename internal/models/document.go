// Package models defines core data structures for documents, term vectors, and statistics.
package models

import "sort"

// Field names stored for every document. Only FieldContents carries a term vector.
const (
	FieldPath     = "path"
	FieldModified = "modified"
	FieldContents = "contents"
)

// Document is one corpus unit together with the term vector derived from its contents.
type Document struct {
	// Path is the natural key: the file path relative to the source root, slash separated.
	Path string `json:"path"`
	// Modified is the file modification time in milliseconds since the epoch.
	Modified int64  `json:"modified"`
	Contents string `json:"contents"`
	// Vector is the analyzed form of Contents. It is nil for documents read
	// back through Reader.Document; use Reader.TermVector for stored vectors.
	Vector TermVector `json:"-"`
}

// TermPosting records how often a term occurs in one field of one document.
type TermPosting struct {
	Frequency int   `json:"freq"`
	Positions []int `json:"pos,omitempty"`
}

// TermVector maps each distinct term of a field to its posting.
type TermVector map[string]TermPosting

// Terms returns the vector's terms in lexical order.
func (v TermVector) Terms() []string {
	terms := make([]string, 0, len(v))
	for t := range v {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Frequency returns the occurrence count of term, or 0 when absent.
func (v TermVector) Frequency(term string) int {
	return v[term].Frequency
}
