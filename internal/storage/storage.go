// Package storage defines the index store: engines that persist documents with
// their term vectors and hand out write and read handles.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// FormatVersion is written into every new index and checked on open.
const FormatVersion = 1

// DefaultEngine is used when no engine name is configured.
const DefaultEngine = "sqlite"

// OpenMode selects how a write handle treats an existing index.
type OpenMode int

const (
	// OpenCreate discards any index at the location and starts empty.
	OpenCreate OpenMode = iota
	// OpenAppend keeps existing documents. The index must exist.
	OpenAppend
)

func (m OpenMode) String() string {
	switch m {
	case OpenCreate:
		return "create"
	case OpenAppend:
		return "append"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m OpenMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Info is the metadata stored with an index.
type Info struct {
	Format     int       `json:"format"`
	Engine     string    `json:"engine"`
	Generation string    `json:"generation"`
	Created    time.Time `json:"created"`
}

// Engine opens indexes at a location (a directory).
type Engine interface {
	Name() string
	// Files lists the data files the engine keeps under location.
	Files(location string) []string
	Open(ctx context.Context, location string, mode OpenMode) (Writer, error)
	// OpenReadOnly returns ErrIndexNotFound when there is no index at location
	// and ErrIndexCorrupt when one exists but cannot be read.
	OpenReadOnly(ctx context.Context, location string) (Reader, error)
}

// Writer adds and replaces documents. Every call is committed when it returns.
type Writer interface {
	AddDocument(ctx context.Context, doc *models.Document) error
	// ReplaceDocument atomically deletes every document whose keyField equals
	// keyValue and adds doc. It reports whether anything was deleted.
	ReplaceDocument(ctx context.Context, keyField, keyValue string, doc *models.Document) (bool, error)
	DeleteDocument(ctx context.Context, keyField, keyValue string) (bool, error)
	Info() Info
	Close() error
}

// Reader is a point-in-time view of an index. Documents are numbered
// 0..DocumentCount()-1 in insertion order.
type Reader interface {
	DocumentCount() int
	// TermVector returns the vector stored for field of document docNum, or
	// false when the document has none.
	TermVector(ctx context.Context, docNum int, field string) (models.TermVector, bool, error)
	// Document returns the stored fields of docNum without its vector.
	Document(ctx context.Context, docNum int) (*models.Document, error)
	Info() Info
	Close() error
}

var engines = map[string]func() Engine{
	"sqlite": func() Engine { return NewSQLiteEngine() },
	"bolt":   func() Engine { return NewBoltEngine() },
}

// NewEngine returns the engine registered under name. An empty name selects
// DefaultEngine.
func NewEngine(name string) (Engine, error) {
	if name == "" {
		name = DefaultEngine
	}
	factory, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown storage engine %q (available: %v)", apperrors.ErrInvalidInput, name, EngineNames())
	}
	return factory(), nil
}

// EngineNames returns the registered engine names, sorted.
func EngineNames() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newInfo(engine string) Info {
	return Info{
		Format:     FormatVersion,
		Engine:     engine,
		Generation: uuid.NewString(),
		Created:    time.Now().UTC(),
	}
}

func (i Info) validate(engine string) error {
	if i.Format != FormatVersion {
		return fmt.Errorf("%w: unsupported index format %d", apperrors.ErrIndexCorrupt, i.Format)
	}
	if i.Engine != engine {
		return fmt.Errorf("%w: index written by engine %q", apperrors.ErrIndexCorrupt, i.Engine)
	}
	if _, err := uuid.Parse(i.Generation); err != nil {
		return fmt.Errorf("%w: invalid generation: %w", apperrors.ErrIndexCorrupt, err)
	}
	return nil
}

func checkKeyField(keyField string) error {
	if keyField != models.FieldPath {
		return fmt.Errorf("%w: %q is not a key field", apperrors.ErrInvalidInput, keyField)
	}
	return nil
}

func checkDocument(doc *models.Document) error {
	if doc == nil || doc.Path == "" {
		return fmt.Errorf("%w: document has no path", apperrors.ErrInvalidInput)
	}
	return nil
}

// requireFile maps a missing data file to ErrIndexNotFound.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", apperrors.ErrIndexIO, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", apperrors.ErrIndexCorrupt, path)
	}
	return nil
}

// prepareLocation creates location and, for OpenCreate, removes files.
func prepareLocation(location string, mode OpenMode, files []string) error {
	if err := os.MkdirAll(location, 0755); err != nil {
		return fmt.Errorf("%w: create index directory: %w", apperrors.ErrIndexIO, err)
	}
	if mode != OpenCreate {
		return nil
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", apperrors.ErrIndexIO, f, err)
		}
	}
	return nil
}

func outOfRange(docNum, count int) error {
	return fmt.Errorf("%w: document %d (index holds %d)", apperrors.ErrDocumentNotFound, docNum, count)
}
