package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/tasks"
	"github.com/samber/lo"
)

const maxBodyBytes = 8 << 20

// batchRequest is the body of POST /api/batches and /api/batches/resume.
type batchRequest struct {
	Entries []models.SourceEntry `json:"entries"`
	tasks.SearchOptions
}

type batchResponse struct {
	Total   int  `json:"total"`
	Resumed bool `json:"resumed"`
}

type resultsResponse struct {
	Results []models.MatchResult `json:"results"`
	Pending models.PendingSet    `json:"pending"`
	Stats   tasks.Stats          `json:"stats"`
}

type reviewRequest struct {
	Index *int `json:"index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrBatchRunning),
		errors.Is(err, shared.ErrInvalidTransition),
		errors.Is(err, shared.ErrNoCandidates):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.svc.Running()})
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries must not be empty")
		return
	}

	events, err := s.svc.StartBatch(s.base, req.Entries, req.SearchOptions)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	go s.pump(events)

	writeJSON(w, http.StatusAccepted, batchResponse{Total: len(req.Entries)})
}

func (s *Server) resumeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.svc.Resume(s.base, req.Entries, req.SearchOptions)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	go s.pump(events)

	writeJSON(w, http.StatusAccepted, batchResponse{Total: len(req.Entries), Resumed: true})
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Running() {
		writeError(w, http.StatusNotFound, "no batch is running")
		return
	}
	s.svc.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	results := s.svc.Results()
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := models.ParseStatus(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		results = lo.Filter(results, func(res models.MatchResult, _ int) bool { return res.Status == st })
	}
	if results == nil {
		results = []models.MatchResult{}
	}

	pending := s.svc.Pending()
	if pending == nil {
		pending = models.PendingSet{}
	}

	writeJSON(w, http.StatusOK, resultsResponse{Results: results, Pending: pending, Stats: s.svc.Stats()})
}

func (s *Server) reviewResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		res models.MatchResult
		err error
	)
	switch action := r.PathValue("action"); action {
	case "accept":
		res, err = s.svc.Accept(id)
	case "reject":
		res, err = s.svc.Reject(id)
	case "reset":
		res, err = s.svc.ResetToPending(id)
	case "select":
		var req reviewRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Index == nil {
			if q := r.URL.Query().Get("index"); q != "" {
				i, err := strconv.Atoi(q)
				if err != nil {
					writeError(w, http.StatusBadRequest, "index must be an integer")
					return
				}
				req.Index = &i
			}
		}
		if req.Index == nil {
			writeError(w, http.StatusBadRequest, "index is required")
			return
		}
		res, err = s.svc.SelectAlternative(id, *req.Index)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}

	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	titles := r.URL.Query()["title"]
	if len(titles) == 0 {
		s.svc.ClearCache()
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": false, "removed": s.svc.ClearCacheFor(titles...)})
}
