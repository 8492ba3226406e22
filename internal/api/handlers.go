package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/FocuswithJustin/soramimi/core/cache"
	"github.com/FocuswithJustin/soramimi/core/cas"
	"github.com/FocuswithJustin/soramimi/core/document"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/sqlite"
	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/session"
	"github.com/FocuswithJustin/soramimi/internal/validation"
)

// Version is reported by the health endpoint.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status   string      `json:"status"`
	Version  string      `json:"version"`
	Uptime   string      `json:"uptime"`
	Store    string      `json:"store"`
	Sessions int         `json:"sessions"`
	Clients  int         `json:"clients"`
	Cache    cache.Stats `json:"summary_cache"`
	SQLite   sqlite.Info `json:"sqlite"`
}

// OpenRequest is the request body for POST /sessions.
type OpenRequest struct {
	Document string `json:"document"`
}

// DocumentInfo describes a stored document.
type DocumentInfo struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
	Format   string `json:"format"`
	Editable bool   `json:"editable"`
	Lines    int    `json:"lines"`
}

// AtResult is the response of GET /sessions/{id}/at.
type AtResult struct {
	Found    bool   `json:"found"`
	Active   bool   `json:"active"`
	Line     int    `json:"line"`
	Syllable int    `json:"syllable"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:   "ok",
		Version:  Version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Store:    s.store.Backend(),
		Sessions: len(s.sessions.List()),
		Clients:  s.hub.ClientCount(),
		Cache:    s.summaries.Stats(),
		SQLite:   sqlite.GetInfo(),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondList(w, names, len(names))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := s.store.Read(r.Context(), name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if r.URL.Query().Get("info") != "" {
		info, err := s.summarize(data)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		info.Name = name
		respond(w, http.StatusOK, info)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// summarize parses data once per content revision.
func (s *Server) summarize(data []byte) (DocumentInfo, error) {
	rev := cas.Revision(data)
	return s.summaries.GetOrCompute(rev, func() (DocumentInfo, error) {
		doc, err := document.Load(data, document.Options{})
		if err != nil {
			return DocumentInfo{}, err
		}
		return DocumentInfo{
			Revision: rev,
			Format:   doc.Kind.String(),
			Editable: doc.Song.Editable(),
			Lines:    doc.Song.LineCount(),
		}, nil
	})
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := validation.ReadDocument(r.Body)
	if err != nil {
		respondError(w, statusForUpload(err), "INVALID_INPUT", err.Error())
		return
	}
	if err := s.store.Save(r.Context(), name, data); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]any{"name": name, "bytes": len(data)})
}

func statusForUpload(err error) int {
	if errors.Is(err, validation.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusUnsupportedMediaType
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	respondList(w, list, len(list))
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sessions.Open(r.Context(), req.Document)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, sess.Snapshot(true))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, sess.Snapshot(true))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var edit session.Edit
	if !decodeBody(w, r, &edit) {
		return
	}
	ev, err := sess.Apply(edit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ev, err := s.sessions.Save(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ev, err := sess.Convert()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

func (s *Server) handleAt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, err := session.ParseTime(r.URL.Query().Get("t"))
	if err == nil && t.IsPlaceholder() {
		err = errors.NewValidation("t", "a playback time is required")
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	win, active, found := sess.At(t)
	res := AtResult{Found: found}
	if found {
		res.Active = active
		res.Line = win.Line
		res.Syllable = win.Syllable
		res.Start = win.Start.String()
		res.End = win.End.String()
	}
	respond(w, http.StatusOK, res)
}

// session resolves the {id} path value or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return nil, false
	}
	return sess, true
}

// decodeBody reads a JSON request body into v or writes a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, validation.MaxDocumentSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return false
	}
	return true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, errors.ErrNotEditable):
		return http.StatusConflict, "NOT_EDITABLE"
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusBadRequest, "UNSUPPORTED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	apiErr := &APIError{Code: code, Message: err.Error()}
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		apiErr.Field = ve.Field
	}
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   apiErr,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
