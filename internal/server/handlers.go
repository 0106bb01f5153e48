package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/stats"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

type documentResponse struct {
	Num      int               `json:"num"`
	Path     string            `json:"path"`
	Modified int64             `json:"modified"`
	Contents string            `json:"contents"`
	Terms    models.TermVector `json:"terms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := stats.ReadStatus(r.Context(), s.engine, s.location)
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Extract(r.Context(), s.location)
	if err != nil {
		s.fail(w, "stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleTerm(w http.ResponseWriter, r *http.Request) {
	term := chi.URLParam(r, "term")
	ts, ok, err := s.stats.Term(r.Context(), s.location, term)
	if err != nil {
		s.fail(w, "term stats", err)
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("term %q not found", term))
		return
	}
	s.respondJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil {
		s.fail(w, "get document", fmt.Errorf("%w: document number must be an integer", apperrors.ErrInvalidInput))
		return
	}
	resp, err := s.readDocument(r.Context(), num)
	if err != nil {
		s.fail(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) readDocument(ctx context.Context, num int) (*documentResponse, error) {
	rd, err := s.engine.OpenReadOnly(ctx, s.location)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer rd.Close()

	doc, err := rd.Document(ctx, num)
	if err != nil {
		return nil, err
	}
	vector, _, err := rd.TermVector(ctx, num, models.FieldContents)
	if err != nil {
		return nil, err
	}
	if vector == nil {
		vector = models.TermVector{}
	}
	return &documentResponse{
		Num:      num,
		Path:     doc.Path,
		Modified: doc.Modified,
		Contents: doc.Contents,
		Terms:    vector,
	}, nil
}

// fail maps err onto a status code and writes it. Server-side failures are
// logged; caller mistakes are not.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
