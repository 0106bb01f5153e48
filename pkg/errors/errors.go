// Package errors defines the error taxonomy shared by the indexing and
// statistics passes and maps it onto HTTP status codes for the read API.
package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput marks caller mistakes: a missing or unreadable source
	// root, an unknown build mode, analyzer, or storage engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIndexIO marks failures to open, create, commit to, or flush an index.
	ErrIndexIO = errors.New("index i/o failure")
	// ErrIndexNotFound is returned when no index exists at a location.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexCorrupt is returned when something exists at a location but
	// cannot be opened as an index.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrDocumentNotFound is returned for a document number or term that is
	// not in the index.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUndecodable is returned when file contents cannot be decoded to text.
	ErrUndecodable = errors.New("undecodable content")
)

// HTTPStatusCode maps err onto the status code the read API responds with.
func HTTPStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotFound), errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexCorrupt):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
