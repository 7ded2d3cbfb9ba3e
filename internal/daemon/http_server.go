package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/version"
)

const maxRequestBody = 10 << 20 // attachments arrive inline as data URIs

// newHTTPServer builds the daemon's HTTP surface: build submission,
// health, per-task history and Prometheus metrics.
func newHTTPServer(cfg *config.Config, d *Daemon) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build", d.handleBuild)
	mux.HandleFunc("GET /", d.handleHealth)
	mux.HandleFunc("GET /builds/{task}", d.handleBuildHistory)
	mux.Handle("GET /metrics", d.recorder.Handler())

	return &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// handleBuild validates and enqueues a build request. The response goes
// out on acceptance; the pipeline reports its outcome to the callback
// URL, never on this connection.
func (d *Daemon) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req build.BuildRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Shape first, then credentials: a malformed request is 400 even with
	// a bad secret, a well-formed one with the wrong secret is 401.
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(d.cfg.Auth.Secret)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid secret")
		return
	}

	if _, err := d.Submit(req.Job()); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateTask):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrQueueFull):
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "build started",
		"task":    req.Task,
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"service":       "appforge",
		"version":       version.Version,
		"active_builds": d.ActiveBuilds(),
		"queue_length":  d.QueueLength(),
	})
}

// handleBuildHistory returns the recorded lifecycle events for one task.
func (d *Daemon) handleBuildHistory(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")
	events, err := d.hist.ByTask(r.Context(), task)
	if err != nil {
		slog.Error("history lookup failed", logfields.Task(task), logfields.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if len(events) == 0 {
		writeJSONError(w, http.StatusNotFound, "no builds recorded for task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "events": events})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", logfields.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
