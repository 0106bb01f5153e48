package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

func forEachEngine(t *testing.T, fn func(t *testing.T, e Engine)) {
	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			e, err := NewEngine(name)
			require.NoError(t, err)
			fn(t, e)
		})
	}
}

func testDoc(path string, terms map[string]int) *models.Document {
	vector := make(models.TermVector, len(terms))
	pos := 1
	for term, freq := range terms {
		posting := models.TermPosting{Frequency: freq}
		for i := 0; i < freq; i++ {
			posting.Positions = append(posting.Positions, pos)
			pos++
		}
		vector[term] = posting
	}
	return &models.Document{Path: path, Modified: 1700000000000, Contents: "contents of " + path, Vector: vector}
}

func openWriter(t *testing.T, e Engine, loc string, mode OpenMode) Writer {
	t.Helper()
	w, err := e.Open(context.Background(), loc, mode)
	require.NoError(t, err)
	return w
}

func openReader(t *testing.T, e Engine, loc string) Reader {
	t.Helper()
	r, err := e.OpenReadOnly(context.Background(), loc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func storedPaths(t *testing.T, r Reader) []string {
	t.Helper()
	var paths []string
	for i := 0; i < r.DocumentCount(); i++ {
		doc, err := r.Document(context.Background(), i)
		require.NoError(t, err)
		paths = append(paths, doc.Path)
	}
	return paths
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEngine, e.Name())

	_, err = NewEngine("lucene")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, []string{"bolt", "sqlite"}, EngineNames())
}

func TestEngine_OpenReadOnlyMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.OpenReadOnly(context.Background(), filepath.Join(t.TempDir(), "none"))
		assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)
	})
}

func TestEngine_AppendMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.Open(context.Background(), t.TempDir(), OpenAppend)
		assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)
	})
}

func TestEngine_AddAndRead(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		loc := filepath.Join(t.TempDir(), "nested", "index")
		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("a.txt", map[string]int{"cat": 2, "dog": 1})))
		require.NoError(t, w.AddDocument(ctx, testDoc("b.txt", map[string]int{"dog": 1, "bird": 1})))
		empty := &models.Document{Path: "empty.txt", Modified: 1}
		require.NoError(t, w.AddDocument(ctx, empty))
		written := w.Info()
		require.NoError(t, w.Close())

		r := openReader(t, e, loc)
		assert.Equal(t, 3, r.DocumentCount())
		assert.Equal(t, []string{"a.txt", "b.txt", "empty.txt"}, storedPaths(t, r))

		info := r.Info()
		assert.Equal(t, FormatVersion, info.Format)
		assert.Equal(t, e.Name(), info.Engine)
		assert.Equal(t, written.Generation, info.Generation)
		assert.True(t, written.Created.Equal(info.Created))

		vec, ok, err := r.TermVector(ctx, 0, models.FieldContents)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2, vec.Frequency("cat"))
		assert.Len(t, vec["cat"].Positions, 2)
		assert.Equal(t, 1, vec.Frequency("dog"))

		_, ok, err = r.TermVector(ctx, 2, models.FieldContents)
		require.NoError(t, err)
		assert.False(t, ok, "document without terms has no vector")

		_, ok, err = r.TermVector(ctx, 0, models.FieldPath)
		require.NoError(t, err)
		assert.False(t, ok, "only contents carries a vector")

		doc, err := r.Document(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "b.txt", doc.Path)
		assert.Equal(t, int64(1700000000000), doc.Modified)
		assert.Equal(t, "contents of b.txt", doc.Contents)

		_, err = r.Document(ctx, 3)
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
		_, _, err = r.TermVector(ctx, -1, models.FieldContents)
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	})
}

func TestEngine_AddDuplicatePath(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		w := openWriter(t, e, t.TempDir(), OpenCreate)
		defer w.Close()
		require.NoError(t, w.AddDocument(ctx, testDoc("a.txt", map[string]int{"x": 1})))
		err := w.AddDocument(ctx, testDoc("a.txt", map[string]int{"y": 1}))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.ErrorIs(t, w.AddDocument(ctx, &models.Document{}), apperrors.ErrInvalidInput)
	})
}

func TestEngine_ReplaceDocument(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		loc := t.TempDir()
		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("a.txt", map[string]int{"old": 1})))
		require.NoError(t, w.AddDocument(ctx, testDoc("b.txt", map[string]int{"keep": 1})))
		require.NoError(t, w.Close())

		w = openWriter(t, e, loc, OpenAppend)
		replaced, err := w.ReplaceDocument(ctx, models.FieldPath, "a.txt", testDoc("a.txt", map[string]int{"new": 3}))
		require.NoError(t, err)
		assert.True(t, replaced)

		replaced, err = w.ReplaceDocument(ctx, models.FieldPath, "c.txt", testDoc("c.txt", map[string]int{"fresh": 1}))
		require.NoError(t, err)
		assert.False(t, replaced)

		_, err = w.ReplaceDocument(ctx, models.FieldContents, "a.txt", testDoc("a.txt", nil))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = w.ReplaceDocument(ctx, models.FieldPath, "a.txt", testDoc("other.txt", nil))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		require.NoError(t, w.Close())

		r := openReader(t, e, loc)
		assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, storedPaths(t, r))
		for i := 0; i < r.DocumentCount(); i++ {
			doc, err := r.Document(ctx, i)
			require.NoError(t, err)
			if doc.Path != "a.txt" {
				continue
			}
			vec, ok, err := r.TermVector(ctx, i, models.FieldContents)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 3, vec.Frequency("new"))
			assert.Equal(t, 0, vec.Frequency("old"))
		}
	})
}

func TestEngine_DeleteDocument(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		loc := t.TempDir()
		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("a.txt", map[string]int{"x": 1})))
		require.NoError(t, w.AddDocument(ctx, testDoc("b.txt", map[string]int{"y": 1})))

		deleted, err := w.DeleteDocument(ctx, models.FieldPath, "a.txt")
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = w.DeleteDocument(ctx, models.FieldPath, "a.txt")
		require.NoError(t, err)
		assert.False(t, deleted)
		require.NoError(t, w.Close())

		r := openReader(t, e, loc)
		assert.Equal(t, []string{"b.txt"}, storedPaths(t, r))
	})
}

func TestEngine_CreateDiscardsExisting(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		loc := t.TempDir()
		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("old.txt", map[string]int{"x": 1})))
		first := w.Info().Generation
		require.NoError(t, w.Close())

		w = openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("new.txt", map[string]int{"y": 1})))
		second := w.Info().Generation
		require.NoError(t, w.Close())

		assert.NotEqual(t, first, second)
		r := openReader(t, e, loc)
		assert.Equal(t, []string{"new.txt"}, storedPaths(t, r))
		assert.Equal(t, second, r.Info().Generation)
	})
}

func TestEngine_AppendKeepsGeneration(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		loc := t.TempDir()
		w := openWriter(t, e, loc, OpenCreate)
		gen := w.Info().Generation
		require.NoError(t, w.Close())

		w = openWriter(t, e, loc, OpenAppend)
		assert.Equal(t, gen, w.Info().Generation)
		require.NoError(t, w.Close())
	})
}

func TestEngine_Corrupt(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		loc := t.TempDir()
		garbage := make([]byte, 64*1024)
		for i := range garbage {
			garbage[i] = byte(i*7 + 3)
		}
		require.NoError(t, os.WriteFile(e.Files(loc)[0], garbage, 0644))

		_, err := e.OpenReadOnly(context.Background(), loc)
		assert.ErrorIs(t, err, apperrors.ErrIndexCorrupt)
		_, err = e.Open(context.Background(), loc, OpenAppend)
		assert.ErrorIs(t, err, apperrors.ErrIndexCorrupt)

		// Create starts over regardless of what was there.
		w, err := e.Open(context.Background(), loc, OpenCreate)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	})
}

func TestEngine_FilesUnderLocation(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		loc := t.TempDir()
		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.Close())
		files := e.Files(loc)
		require.NotEmpty(t, files)
		_, err := os.Stat(files[0])
		assert.NoError(t, err)

		n, err := IndexSize(e, loc)
		require.NoError(t, err)
		assert.Positive(t, n)
	})
}

func TestEngine_LocationWithURIMetacharacters(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		parent := t.TempDir()
		loc := filepath.Join(parent, "idx#1?mode=memory%41")

		w := openWriter(t, e, loc, OpenCreate)
		require.NoError(t, w.AddDocument(ctx, testDoc("a.txt", map[string]int{"cat": 2})))
		require.NoError(t, w.Close())

		_, err := os.Stat(e.Files(loc)[0])
		require.NoError(t, err, "index file is written under the location")
		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		require.Len(t, entries, 1, "nothing is written next to the location")
		assert.Equal(t, filepath.Base(loc), entries[0].Name())

		w = openWriter(t, e, loc, OpenAppend)
		require.NoError(t, w.Close())
		r := openReader(t, e, loc)
		assert.Equal(t, []string{"a.txt"}, storedPaths(t, r))
	})
}

func TestSQLiteDSN(t *testing.T) {
	dsn, err := sqliteDSN("/data/idx#1?x/100%/index.db", true)
	require.NoError(t, err)
	assert.Equal(t, "file:///data/idx%231%3Fx/100%25/index.db?_busy_timeout=5000&mode=ro", dsn)

	dsn, err = sqliteDSN("/data/index.db", false)
	require.NoError(t, err)
	assert.Equal(t, "file:///data/index.db?_busy_timeout=5000", dsn)
}

func TestOpenMode_String(t *testing.T) {
	assert.Equal(t, "create", OpenCreate.String())
	assert.Equal(t, "append", OpenAppend.String())
	assert.Equal(t, "OpenMode(7)", OpenMode(7).String())
}
