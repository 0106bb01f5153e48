package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kazoeru/internal/config"
	"github.com/hyperjump/kazoeru/internal/indexer"
	"github.com/hyperjump/kazoeru/internal/keyword"
	"github.com/hyperjump/kazoeru/internal/metrics"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/stats"
	"github.com/hyperjump/kazoeru/internal/storage"
)

func newTestServer(t *testing.T, files map[string]string) (*Server, *metrics.Metrics) {
	t.Helper()
	engine, err := storage.NewEngine(storage.DefaultEngine)
	require.NoError(t, err)
	loc := filepath.Join(t.TempDir(), "index")
	if files != nil {
		src := t.TempDir()
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(content), 0644))
		}
		a, err := keyword.NewBleveAnalyzer("")
		require.NoError(t, err)
		_, err = indexer.NewBuilder(engine, a).Build(context.Background(), models.Create, src, loc)
		require.NoError(t, err)
	}
	m := metrics.New()
	return NewServer(engine, loc, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop(), m), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var corpus = map[string]string{"a.txt": "cat dog cat", "b.txt": "dog bird"}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleStats(t *testing.T) {
	srv, _ := newTestServer(t, corpus)
	w := get(t, srv.Handler(), "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var s models.Statistics
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	assert.Equal(t, 2, s.Documents)
	assert.Equal(t, map[string]int{"cat": 1, "dog": 2, "bird": 1}, s.DocumentFrequency)
	assert.Equal(t, map[string]int{"a.txt": 1, "b.txt": 1}, s.TermFrequency["dog"])
}

func TestHandleStats_MissingIndex(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := get(t, srv.Handler(), "/api/v1/stats")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "index not found")
}

func TestHandleStats_CorruptIndex(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	require.NoError(t, os.MkdirAll(srv.location, 0755))
	garbage := []byte(strings.Repeat("not an index ", 1000))
	require.NoError(t, os.WriteFile(filepath.Join(srv.location, "index.db"), garbage, 0644))
	w := get(t, srv.Handler(), "/api/v1/stats")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleTerm(t *testing.T) {
	srv, _ := newTestServer(t, corpus)
	h := srv.Handler()

	w := get(t, h, "/api/v1/stats/terms/cat")
	require.Equal(t, http.StatusOK, w.Code)
	var ts models.TermStatistics
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ts))
	assert.Equal(t, "cat", ts.Term)
	assert.Equal(t, 1, ts.DocumentFrequency)
	assert.Equal(t, map[string]int{"a.txt": 2}, ts.TermFrequency)

	w = get(t, h, "/api/v1/stats/terms/fish")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetDocument(t *testing.T) {
	srv, _ := newTestServer(t, corpus)
	h := srv.Handler()

	w := get(t, h, "/api/v1/documents/0")
	require.Equal(t, http.StatusOK, w.Code)
	var doc documentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Equal(t, 0, doc.Num)
	assert.Equal(t, "a.txt", doc.Path)
	assert.Equal(t, "cat dog cat", doc.Contents)
	assert.Equal(t, 2, doc.Terms["cat"].Frequency)
	assert.Positive(t, doc.Modified)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/documents/7").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/documents/first").Code)
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, corpus)
	w := get(t, srv.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	var st stats.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, storage.DefaultEngine, st.Engine)
	assert.NotEmpty(t, st.Info.Generation)
}

func TestMetricsRoute(t *testing.T) {
	srv, m := newTestServer(t, corpus)
	h := srv.Handler()

	get(t, h, "/api/v1/documents/0")
	get(t, h, "/api/v1/documents/1")
	get(t, h, "/nowhere")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/documents/{num}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kazoeru_http_requests_total")
}

func TestStop_NotStarted(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}
