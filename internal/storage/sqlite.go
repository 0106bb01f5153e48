package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

const sqliteFile = "index.db"

// SQLiteEngine stores an index in a single SQLite database. The default
// rollback journal is kept so read-only handles never create side files.
type SQLiteEngine struct{}

// NewSQLiteEngine returns the SQLite engine.
func NewSQLiteEngine() *SQLiteEngine {
	return &SQLiteEngine{}
}

// Name implements Engine.
func (e *SQLiteEngine) Name() string { return "sqlite" }

// Files implements Engine.
func (e *SQLiteEngine) Files(location string) []string {
	path := filepath.Join(location, sqliteFile)
	return []string{path, path + "-journal"}
}

// Open implements Engine.
func (e *SQLiteEngine) Open(ctx context.Context, location string, mode OpenMode) (Writer, error) {
	path := filepath.Join(location, sqliteFile)
	if mode == OpenAppend {
		if err := requireFile(path); err != nil {
			return nil, err
		}
	}
	if err := prepareLocation(location, mode, e.Files(location)); err != nil {
		return nil, err
	}

	db, err := openSQLite(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", apperrors.ErrIndexIO, err)
	}
	db.SetMaxOpenConns(1)

	var info Info
	if mode == OpenCreate {
		info = newInfo(e.Name())
		err = initSchema(ctx, db, info)
	} else {
		info, err = readSQLiteInfo(ctx, db, e.Name())
	}
	if err != nil {
		_ = db.Close()
		if mode == OpenCreate {
			return nil, fmt.Errorf("%w: initialize schema: %w", apperrors.ErrIndexIO, err)
		}
		return nil, err
	}
	return &sqliteWriter{db: db, info: info}, nil
}

// OpenReadOnly implements Engine.
func (e *SQLiteEngine) OpenReadOnly(ctx context.Context, location string) (Reader, error) {
	path := filepath.Join(location, sqliteFile)
	if err := requireFile(path); err != nil {
		return nil, err
	}
	db, err := openSQLite(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", apperrors.ErrIndexIO, err)
	}
	db.SetMaxOpenConns(1)

	info, err := readSQLiteInfo(ctx, db, e.Name())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ids, err := documentIDs(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: list documents: %w", apperrors.ErrIndexCorrupt, err)
	}
	return &sqliteReader{db: db, info: info, ids: ids}, nil
}

func openSQLite(path string, readOnly bool) (*sql.DB, error) {
	dsn, err := sqliteDSN(path, readOnly)
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite3", dsn)
}

// sqliteDSN returns a file: URI for path. The path is escaped so that '#',
// '?' and '%' in a location are part of the file name.
func sqliteDSN(path string, readOnly bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	query := url.Values{"_busy_timeout": {"5000"}}
	if readOnly {
		query.Set("mode", "ro")
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: query.Encode()}
	return u.String(), nil
}

func initSchema(ctx context.Context, db *sql.DB, info Info) error {
	schema := `
	CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		modified INTEGER NOT NULL,
		contents TEXT NOT NULL
	);

	CREATE TABLE term_vectors (
		doc_id INTEGER NOT NULL,
		field TEXT NOT NULL,
		term TEXT NOT NULL,
		freq INTEGER NOT NULL,
		positions TEXT,
		PRIMARY KEY (doc_id, field, term)
	);
	`
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	meta := map[string]string{
		"format":     fmt.Sprint(info.Format),
		"engine":     info.Engine,
		"generation": info.Generation,
		"created":    info.Created.Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func readSQLiteInfo(ctx context.Context, db *sql.DB, engine string) (Info, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Info{}, fmt.Errorf("%w: read metadata: %w", apperrors.ErrIndexCorrupt, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Info{}, fmt.Errorf("%w: read metadata: %w", apperrors.ErrIndexCorrupt, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return Info{}, fmt.Errorf("%w: read metadata: %w", apperrors.ErrIndexCorrupt, err)
	}

	info := Info{Engine: meta["engine"], Generation: meta["generation"]}
	if _, err := fmt.Sscan(meta["format"], &info.Format); err != nil {
		return Info{}, fmt.Errorf("%w: invalid format version %q", apperrors.ErrIndexCorrupt, meta["format"])
	}
	if info.Created, err = time.Parse(time.RFC3339Nano, meta["created"]); err != nil {
		return Info{}, fmt.Errorf("%w: invalid creation time: %w", apperrors.ErrIndexCorrupt, err)
	}
	return info, info.validate(engine)
}

func documentIDs(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type sqliteWriter struct {
	db   *sql.DB
	info Info
}

func (w *sqliteWriter) Info() Info { return w.info }

// AddDocument inserts doc and its term vector in one transaction.
func (w *sqliteWriter) AddDocument(ctx context.Context, doc *models.Document) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", apperrors.ErrIndexIO, err)
	}
	defer tx.Rollback()

	if err := insertDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", apperrors.ErrIndexIO, err)
	}
	return nil
}

// ReplaceDocument deletes the documents matching the key and inserts doc in
// one transaction.
func (w *sqliteWriter) ReplaceDocument(ctx context.Context, keyField, keyValue string, doc *models.Document) (bool, error) {
	if err := checkKeyField(keyField); err != nil {
		return false, err
	}
	if err := checkDocument(doc); err != nil {
		return false, err
	}
	if doc.Path != keyValue {
		return false, fmt.Errorf("%w: document path %q does not match key %q", apperrors.ErrInvalidInput, doc.Path, keyValue)
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", apperrors.ErrIndexIO, err)
	}
	defer tx.Rollback()

	deleted, err := deleteByPath(ctx, tx, keyValue)
	if err != nil {
		return false, err
	}
	if err := insertDocument(ctx, tx, doc); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", apperrors.ErrIndexIO, err)
	}
	return deleted, nil
}

func (w *sqliteWriter) DeleteDocument(ctx context.Context, keyField, keyValue string) (bool, error) {
	if err := checkKeyField(keyField); err != nil {
		return false, err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", apperrors.ErrIndexIO, err)
	}
	defer tx.Rollback()

	deleted, err := deleteByPath(ctx, tx, keyValue)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", apperrors.ErrIndexIO, err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (w *sqliteWriter) Close() error {
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("%w: close database: %w", apperrors.ErrIndexIO, err)
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *models.Document) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (path, modified, contents) VALUES (?, ?, ?)`,
		doc.Path, doc.Modified, doc.Contents,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: document %q already indexed", apperrors.ErrInvalidInput, doc.Path)
		}
		return fmt.Errorf("%w: insert document: %w", apperrors.ErrIndexIO, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: document id: %w", apperrors.ErrIndexIO, err)
	}
	if len(doc.Vector) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO term_vectors (doc_id, field, term, freq, positions) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("%w: prepare term vector: %w", apperrors.ErrIndexIO, err)
	}
	defer stmt.Close()

	for term, posting := range doc.Vector {
		var positions any
		if posting.Positions != nil {
			b, err := json.Marshal(posting.Positions)
			if err != nil {
				return fmt.Errorf("%w: encode positions: %w", apperrors.ErrIndexIO, err)
			}
			positions = string(b)
		}
		if _, err := stmt.ExecContext(ctx, id, models.FieldContents, term, posting.Frequency, positions); err != nil {
			return fmt.Errorf("%w: insert term vector: %w", apperrors.ErrIndexIO, err)
		}
	}
	return nil
}

func deleteByPath(ctx context.Context, tx *sql.Tx, path string) (bool, error) {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM term_vectors WHERE doc_id IN (SELECT id FROM documents WHERE path = ?)`, path,
	); err != nil {
		return false, fmt.Errorf("%w: delete term vectors: %w", apperrors.ErrIndexIO, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("%w: delete document: %w", apperrors.ErrIndexIO, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type sqliteReader struct {
	db   *sql.DB
	info Info
	ids  []int64
}

func (r *sqliteReader) DocumentCount() int { return len(r.ids) }

func (r *sqliteReader) Info() Info { return r.info }

func (r *sqliteReader) TermVector(ctx context.Context, docNum int, field string) (models.TermVector, bool, error) {
	if docNum < 0 || docNum >= len(r.ids) {
		return nil, false, outOfRange(docNum, len(r.ids))
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT term, freq, positions FROM term_vectors WHERE doc_id = ? AND field = ?`,
		r.ids[docNum], field,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read term vector: %w", apperrors.ErrIndexIO, err)
	}
	defer rows.Close()

	vector := make(models.TermVector)
	for rows.Next() {
		var (
			term      string
			posting   models.TermPosting
			positions sql.NullString
		)
		if err := rows.Scan(&term, &posting.Frequency, &positions); err != nil {
			return nil, false, fmt.Errorf("%w: read term vector: %w", apperrors.ErrIndexIO, err)
		}
		if positions.Valid {
			if err := json.Unmarshal([]byte(positions.String), &posting.Positions); err != nil {
				return nil, false, fmt.Errorf("%w: decode positions of %q: %w", apperrors.ErrIndexCorrupt, term, err)
			}
		}
		vector[term] = posting
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: read term vector: %w", apperrors.ErrIndexIO, err)
	}
	if len(vector) == 0 {
		return nil, false, nil
	}
	return vector, true, nil
}

func (r *sqliteReader) Document(ctx context.Context, docNum int) (*models.Document, error) {
	if docNum < 0 || docNum >= len(r.ids) {
		return nil, outOfRange(docNum, len(r.ids))
	}
	var doc models.Document
	err := r.db.QueryRowContext(ctx,
		`SELECT path, modified, contents FROM documents WHERE id = ?`, r.ids[docNum],
	).Scan(&doc.Path, &doc.Modified, &doc.Contents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %d was removed", apperrors.ErrDocumentNotFound, docNum)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", apperrors.ErrIndexIO, err)
	}
	return &doc, nil
}

// Close closes the database connection.
func (r *sqliteReader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("%w: close database: %w", apperrors.ErrIndexIO, err)
	}
	return nil
}
