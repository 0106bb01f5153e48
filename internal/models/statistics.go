package models

import (
	"fmt"
	"sort"
)

// Statistics holds the frequency tables derived from an index. It is recomputed
// from the index on every extraction and never persisted.
type Statistics struct {
	// Documents is the number of stored documents visited, with or without a vector.
	Documents int `json:"documents"`
	// DocumentFrequency maps a term to the number of documents containing it.
	DocumentFrequency map[string]int `json:"document_frequency"`
	// TermFrequency maps a term to document path to occurrences in that document.
	TermFrequency map[string]map[string]int `json:"term_frequency"`
}

// NewStatistics returns empty statistics ready for accumulation.
func NewStatistics() *Statistics {
	return &Statistics{
		DocumentFrequency: make(map[string]int),
		TermFrequency:     make(map[string]map[string]int),
	}
}

// Add records one document's term vector. Each distinct term counts once toward
// its document frequency regardless of how often it occurs.
func (s *Statistics) Add(path string, vector TermVector) {
	for term, posting := range vector {
		s.DocumentFrequency[term]++
		docs, ok := s.TermFrequency[term]
		if !ok {
			docs = make(map[string]int)
			s.TermFrequency[term] = docs
		}
		docs[path] = posting.Frequency
	}
}

// Terms returns every term in lexical order.
func (s *Statistics) Terms() []string {
	terms := make([]string, 0, len(s.DocumentFrequency))
	for t := range s.DocumentFrequency {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Check verifies that every term's document frequency equals the number of
// documents listed for it in TermFrequency.
func (s *Statistics) Check() error {
	if len(s.DocumentFrequency) != len(s.TermFrequency) {
		return fmt.Errorf("statistics: %d document-frequency terms but %d term-frequency terms",
			len(s.DocumentFrequency), len(s.TermFrequency))
	}
	for term, df := range s.DocumentFrequency {
		if n := len(s.TermFrequency[term]); n != df {
			return fmt.Errorf("statistics: term %q has document frequency %d but %d documents", term, df, n)
		}
	}
	return nil
}

// TermStatistics is the slice of Statistics concerning a single term.
type TermStatistics struct {
	Term              string         `json:"term"`
	DocumentFrequency int            `json:"document_frequency"`
	TermFrequency     map[string]int `json:"term_frequency"`
}

// Term returns the statistics for term. ok is false when no document contains it.
func (s *Statistics) Term(term string) (ts TermStatistics, ok bool) {
	df, ok := s.DocumentFrequency[term]
	if !ok {
		return TermStatistics{Term: term, TermFrequency: map[string]int{}}, false
	}
	return TermStatistics{Term: term, DocumentFrequency: df, TermFrequency: s.TermFrequency[term]}, true
}
