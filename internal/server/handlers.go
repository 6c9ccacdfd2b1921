package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	sqlkit "github.com/tylerbarker/sql-kit"
	"github.com/tylerbarker/sql-kit/internal/history"
)

type queryRequest struct {
	SQL   string `json:"sql"`
	Args  []any  `json:"args,omitempty"`
	Cache *bool  `json:"cache,omitempty"`
	Label string `json:"label,omitempty"`
	// One asks for exactly-one-row semantics: 404 on zero rows, 409 on
	// more than one.
	One bool `json:"one,omitempty"`
}

type queryResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	DurationMS int64    `json:"duration_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: "bad_request"})
		return
	}
	if req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sql is required", Kind: "bad_request"})
		return
	}

	var opts []sqlkit.QueryOption
	if req.Cache != nil && !*req.Cache {
		opts = append(opts, sqlkit.WithoutCache())
	}
	if req.Label != "" {
		opts = append(opts, sqlkit.WithLabel(req.Label))
	}

	start := time.Now()
	res, err := s.pool.Query(r.Context(), req.SQL, req.Args, opts...)
	if err == nil && req.One {
		_, err = res.OneRecord(append(opts, sqlkit.WithDynamicColumns())...)
	}
	duration := time.Since(start)

	s.record(r, req, res, duration, err)

	if err != nil {
		status, kind := statusForError(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:    res.Columns,
		Rows:       res.Rows,
		RowCount:   res.RowCount,
		DurationMS: duration.Milliseconds(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Kind: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"size":      stats.Size,
		"idle":      stats.Idle,
		"in_use":    stats.InUse,
		"created":   stats.Created,
		"checkouts": stats.Checkouts,
		"timeouts":  stats.Timeouts,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// record logs the run into the history store. Recording failures are logged
// and never fail the query.
func (s *Server) record(r *http.Request, req queryRequest, res *sqlkit.QueryResult, duration time.Duration, queryErr error) {
	if s.store == nil {
		return
	}

	run := history.Run{
		Source:     "server",
		Label:      req.Label,
		SQL:        req.SQL,
		Backend:    s.pool.Name(),
		DurationMS: duration.Milliseconds(),
		Status:     "ok",
	}
	if res != nil {
		run.Rows = res.RowCount
	}
	if queryErr != nil {
		run.Status = "error"
		run.Error = queryErr.Error()
	}
	if err := s.store.Record(r.Context(), run); err != nil {
		s.logger.Warn("record query run", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
