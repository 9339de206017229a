package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskrelay/taskrelay/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthCheck reports liveness and the number of held leases.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      version.Info(),
		"active_tasks": s.leases.Count(),
		"time":         time.Now().Format(time.RFC3339),
	})
}

// ListLeases returns all currently held leases.
func (s *Server) ListLeases(w http.ResponseWriter, r *http.Request) {
	leases := s.leases.Snapshot()
	out := make([]map[string]any, 0, len(leases))
	for _, l := range leases {
		out = append(out, map[string]any{
			"task_id":     l.TaskID,
			"worker_id":   l.WorkerID,
			"acquired_at": l.AcquiredAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListRuns returns recent runs, newest first. ?limit= caps the count
// (default 50).
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.journal.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run by id.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.journal.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetTaskRuns returns recent runs for one task.
func (s *Server) GetTaskRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.journal.GetTaskRuns(chi.URLParam(r, "taskId"), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// StreamRun streams a run's progress over SSE until the run completes or
// the client disconnects.
func (s *Server) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID := uuid.NewString()
	sub := s.streams.Subscribe(runID, subID)
	defer s.streams.Unsubscribe(runID, subID)

	sendEvent := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.Events:
			sendEvent("progress", ev)
		case completion := <-sub.Complete:
			sendEvent("complete", completion)
			return
		}
	}
}
