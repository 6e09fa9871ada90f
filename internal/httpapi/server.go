// Package httpapi exposes the pipeline control plane and the websocket
// event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/observability"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/supervisor"
)

// Options configures the API server.
type Options struct {
	Addr string

	Supervisor *supervisor.Supervisor
	Posts      *store.PostStore
	Bus        *eventbus.Bus

	Logger *log.Logger
}

// Server is the HTTP surface: REST endpoints for supervising the
// pipeline, /ws for the event stream, /metrics for Prometheus.
type Server struct {
	opts    Options
	logger  *log.Logger
	http    *http.Server
	started time.Time
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if opts.Posts == nil {
		return nil, fmt.Errorf("post store is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{opts: opts, logger: opts.Logger, started: time.Now()}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleServerStatus)
	mux.HandleFunc("POST /api/scraper/start", s.handleStart)
	mux.HandleFunc("POST /api/scraper/stop", s.handleStop)
	mux.HandleFunc("GET /api/scraper/status", s.handleStatus)
	mux.HandleFunc("GET /api/scraper/data", s.handleData)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", observability.Handler())
	return mux
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("[httpapi] listening on %s", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "memecoin-radar pipeline server")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	State       string `json:"state"`
	ScraperPID  int    `json:"scraper_pid,omitempty"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	_, pid := s.opts.Supervisor.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		State:       string(s.opts.Supervisor.State()),
		ScraperPID:  pid,
		Subscribers: s.opts.Bus.Subscribers(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	pid, err := s.opts.Supervisor.Start()
	switch {
	case errors.Is(err, supervisor.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "scraper already running",
		})
	case err != nil:
		s.logger.Printf("[httpapi] start scraper: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": err.Error(),
		})
	default:
		resp := map[string]any{"success": true}
		if pid > 0 {
			resp["pid"] = pid
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.opts.Supervisor.Stop()
	switch {
	case errors.Is(err, supervisor.ErrNotScraping):
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "scraper is not running",
		})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "scraper stopping",
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, pid := s.opts.Supervisor.Status()
	resp := map[string]any{"running": running}
	if pid > 0 {
		resp["pid"] = pid
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	posts, err := s.opts.Posts.Load()
	if err != nil {
		s.logger.Printf("[httpapi] load posts: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "failed to read post data",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(posts),
		"data":    posts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encode response: %v", err)
	}
}
