package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/ui/service"
)

// maxTurnBodyBytes caps the request body of a turn.
const maxTurnBodyBytes = 1 << 20

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	TotalCount int  `json:"total_count,omitempty"`
	HasMore    bool `json:"has_more,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	Query string `json:"query"`
}

func send(w http.ResponseWriter, status int, body Response) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	send(w, status, Response{Data: data})
}

func writeJSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	send(w, status, Response{Data: data, Meta: meta})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	send(w, status, Response{Error: &APIError{Code: code, Message: message}})
}

// errorMapping pairs a sentinel with the status and code it is served as.
// The first match wins; unmatched errors are 500s.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
	{convmem.ErrEmptyQuery, http.StatusBadRequest, "bad_request"},
	{convmem.ErrInvalidConfig, http.StatusBadRequest, "bad_request"},
	{storage.ErrRangeConflict, http.StatusConflict, "range_conflict"},
	{convmem.ErrGeneration, http.StatusBadGateway, "generation_failed"},
}

func (rt *router) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			status, code = m.status, m.code
			break
		}
	}

	message := err.Error()
	if status == http.StatusNotFound {
		message = "session not found"
	}
	if status >= http.StatusInternalServerError {
		rt.logError(r, err)
	}
	writeError(w, status, code, message)
}

func (rt *router) logError(r *http.Request, err error) {
	if rt.config.Logger != nil {
		rt.config.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

// queryInt reads an integer query parameter, falling back to def when it is
// absent or malformed, and passes the result through clamp.
func queryInt(r *http.Request, key string, def int, clamp func(int) int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		v = def
	}
	return clamp(v)
}

// Dashboard handlers

func (rt *router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.GetDashboardStats(r.Context())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Session handlers

func (rt *router) handleListSessions(w http.ResponseWriter, r *http.Request) {
	params := service.SessionListParams{
		Limit:  queryInt(r, "limit", rt.config.PageSize, service.ValidateLimit),
		Offset: queryInt(r, "offset", 0, service.ValidateOffset),
	}

	list, err := rt.svc.ListSessions(r.Context(), params)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Sessions, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

func (rt *router) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"id": rt.svc.CreateSession()})
}

func (rt *router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.svc.GetSessionDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *router) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleGetSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.Pipeline().SessionStats(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *router) handleGetContextStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.svc.GetContextStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Turn handlers

func (rt *router) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object with a query")
		return
	}

	result, err := rt.svc.Turn(r.Context(), r.PathValue("id"), req.Query)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Message handlers

func (rt *router) handleListMessages(w http.ResponseWriter, r *http.Request) {
	filter := storage.ParseFilter(r.URL.Query().Get("filter"))

	messages, err := rt.svc.ListMessages(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, messages, &Meta{TotalCount: len(messages)})
}

func (rt *router) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := rt.svc.ListSummaries(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, summaries, &Meta{TotalCount: len(summaries)})
}

func (rt *router) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	contentType, err := service.ContentType(format)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	t, err := rt.svc.LoadTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if err := service.WriteTranscript(w, t, format); err != nil {
		rt.logError(r, err)
	}
}
