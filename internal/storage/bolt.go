package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

const boltFile = "index.bolt"

var (
	metaBucket      = []byte("meta")
	documentsBucket = []byte("documents")
	pathsBucket     = []byte("paths")
	vectorsBucket   = []byte("vectors")
	infoKey         = []byte("info")
)

// lockTimeout bounds how long an open waits for another handle's file lock.
const lockTimeout = 2 * time.Second

// BoltEngine stores an index in a single bbolt file. Documents are keyed by a
// monotonically increasing sequence, so key order is insertion order.
type BoltEngine struct{}

// NewBoltEngine returns the bbolt engine.
func NewBoltEngine() *BoltEngine {
	return &BoltEngine{}
}

func (e *BoltEngine) Name() string { return "bolt" }

func (e *BoltEngine) Files(location string) []string {
	return []string{filepath.Join(location, boltFile)}
}

type boltDocument struct {
	Path     string `json:"path"`
	Modified int64  `json:"modified"`
	Contents string `json:"contents"`
}

func (e *BoltEngine) Open(ctx context.Context, location string, mode OpenMode) (Writer, error) {
	path := filepath.Join(location, boltFile)
	if mode == OpenAppend {
		if err := requireFile(path); err != nil {
			return nil, err
		}
	}
	if err := prepareLocation(location, mode, e.Files(location)); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, openError(err, mode == OpenAppend)
	}

	var info Info
	if mode == OpenCreate {
		info = newInfo(e.Name())
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{metaBucket, documentsBucket, pathsBucket, vectorsBucket} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
			raw, err := json.Marshal(info)
			if err != nil {
				return err
			}
			return tx.Bucket(metaBucket).Put(infoKey, raw)
		})
		if err != nil {
			err = fmt.Errorf("%w: initialize buckets: %w", apperrors.ErrIndexIO, err)
		}
	} else {
		err = db.View(func(tx *bolt.Tx) error {
			var verr error
			info, verr = readBoltInfo(tx, e.Name())
			return verr
		})
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltWriter{db: db, info: info}, nil
}

func (e *BoltEngine) OpenReadOnly(ctx context.Context, location string) (Reader, error) {
	path := filepath.Join(location, boltFile)
	if err := requireFile(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: lockTimeout, ReadOnly: true})
	if err != nil {
		return nil, openError(err, true)
	}

	r := &boltReader{db: db}
	err = db.View(func(tx *bolt.Tx) error {
		info, err := readBoltInfo(tx, e.Name())
		if err != nil {
			return err
		}
		r.info = info
		docs := tx.Bucket(documentsBucket)
		if docs == nil || tx.Bucket(vectorsBucket) == nil {
			return fmt.Errorf("%w: missing buckets", apperrors.ErrIndexCorrupt)
		}
		return docs.ForEach(func(k, _ []byte) error {
			r.keys = append(r.keys, append([]byte(nil), k...))
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// openError classifies a bolt.Open failure. A held lock is an I/O problem;
// anything else on an existing file means it is not a usable index.
func openError(err error, existing bool) error {
	if errors.Is(err, bolt.ErrTimeout) {
		return fmt.Errorf("%w: index is locked by another writer: %w", apperrors.ErrIndexIO, err)
	}
	if existing {
		return fmt.Errorf("%w: open bolt file: %w", apperrors.ErrIndexCorrupt, err)
	}
	return fmt.Errorf("%w: open bolt file: %w", apperrors.ErrIndexIO, err)
}

func readBoltInfo(tx *bolt.Tx, engine string) (Info, error) {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return Info{}, fmt.Errorf("%w: missing meta bucket", apperrors.ErrIndexCorrupt)
	}
	raw := meta.Get(infoKey)
	if raw == nil {
		return Info{}, fmt.Errorf("%w: missing index info", apperrors.ErrIndexCorrupt)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("%w: decode index info: %w", apperrors.ErrIndexCorrupt, err)
	}
	return info, info.validate(engine)
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

type boltWriter struct {
	db   *bolt.DB
	info Info
}

func (w *boltWriter) Info() Info { return w.info }

func (w *boltWriter) AddDocument(ctx context.Context, doc *models.Document) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	return w.update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(pathsBucket).Get([]byte(doc.Path)) != nil {
			return fmt.Errorf("%w: document %q already indexed", apperrors.ErrInvalidInput, doc.Path)
		}
		return putDocument(tx, doc)
	})
}

func (w *boltWriter) ReplaceDocument(ctx context.Context, keyField, keyValue string, doc *models.Document) (bool, error) {
	if err := checkKeyField(keyField); err != nil {
		return false, err
	}
	if err := checkDocument(doc); err != nil {
		return false, err
	}
	if doc.Path != keyValue {
		return false, fmt.Errorf("%w: document path %q does not match key %q", apperrors.ErrInvalidInput, doc.Path, keyValue)
	}
	var deleted bool
	err := w.update(ctx, func(tx *bolt.Tx) error {
		var err error
		if deleted, err = deletePath(tx, keyValue); err != nil {
			return err
		}
		return putDocument(tx, doc)
	})
	return deleted, err
}

func (w *boltWriter) DeleteDocument(ctx context.Context, keyField, keyValue string) (bool, error) {
	if err := checkKeyField(keyField); err != nil {
		return false, err
	}
	var deleted bool
	err := w.update(ctx, func(tx *bolt.Tx) error {
		var err error
		deleted, err = deletePath(tx, keyValue)
		return err
	})
	return deleted, err
}

func (w *boltWriter) Close() error {
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("%w: close bolt file: %w", apperrors.ErrIndexIO, err)
	}
	return nil
}

// update runs fn in a write transaction. Errors that already carry a
// classification pass through; the rest are I/O failures.
func (w *boltWriter) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := w.db.Update(fn)
	if err == nil || errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrIndexIO) {
		return err
	}
	return fmt.Errorf("%w: commit: %w", apperrors.ErrIndexIO, err)
}

func putDocument(tx *bolt.Tx, doc *models.Document) error {
	docs := tx.Bucket(documentsBucket)
	seq, err := docs.NextSequence()
	if err != nil {
		return err
	}
	key := sequenceKey(seq)
	raw, err := json.Marshal(boltDocument{Path: doc.Path, Modified: doc.Modified, Contents: doc.Contents})
	if err != nil {
		return err
	}
	if err := docs.Put(key, raw); err != nil {
		return err
	}
	if err := tx.Bucket(pathsBucket).Put([]byte(doc.Path), key); err != nil {
		return err
	}
	if len(doc.Vector) == 0 {
		return nil
	}
	fields, err := tx.Bucket(vectorsBucket).CreateBucketIfNotExists([]byte(models.FieldContents))
	if err != nil {
		return err
	}
	vec, err := json.Marshal(doc.Vector)
	if err != nil {
		return err
	}
	return fields.Put(key, vec)
}

func deletePath(tx *bolt.Tx, path string) (bool, error) {
	paths := tx.Bucket(pathsBucket)
	key := paths.Get([]byte(path))
	if key == nil {
		return false, nil
	}
	key = append([]byte(nil), key...)
	if err := tx.Bucket(documentsBucket).Delete(key); err != nil {
		return false, err
	}
	if fields := tx.Bucket(vectorsBucket).Bucket([]byte(models.FieldContents)); fields != nil {
		if err := fields.Delete(key); err != nil {
			return false, err
		}
	}
	return true, paths.Delete([]byte(path))
}

type boltReader struct {
	db   *bolt.DB
	info Info
	keys [][]byte
}

func (r *boltReader) DocumentCount() int { return len(r.keys) }

func (r *boltReader) Info() Info { return r.info }

func (r *boltReader) TermVector(ctx context.Context, docNum int, field string) (models.TermVector, bool, error) {
	if docNum < 0 || docNum >= len(r.keys) {
		return nil, false, outOfRange(docNum, len(r.keys))
	}
	var vector models.TermVector
	err := r.db.View(func(tx *bolt.Tx) error {
		fields := tx.Bucket(vectorsBucket).Bucket([]byte(field))
		if fields == nil {
			return nil
		}
		raw := fields.Get(r.keys[docNum])
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &vector); err != nil {
			return fmt.Errorf("%w: decode term vector: %w", apperrors.ErrIndexCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(vector) == 0 {
		return nil, false, nil
	}
	return vector, true, nil
}

func (r *boltReader) Document(ctx context.Context, docNum int) (*models.Document, error) {
	if docNum < 0 || docNum >= len(r.keys) {
		return nil, outOfRange(docNum, len(r.keys))
	}
	var doc *models.Document
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(documentsBucket).Get(r.keys[docNum])
		if raw == nil {
			return fmt.Errorf("%w: document %d was removed", apperrors.ErrDocumentNotFound, docNum)
		}
		var stored boltDocument
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("%w: decode document: %w", apperrors.ErrIndexCorrupt, err)
		}
		doc = &models.Document{Path: stored.Path, Modified: stored.Modified, Contents: stored.Contents}
		return nil
	})
	return doc, err
}

func (r *boltReader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("%w: close bolt file: %w", apperrors.ErrIndexIO, err)
	}
	return nil
}
