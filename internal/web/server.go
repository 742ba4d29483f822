package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/tazhate/icsync/config"
	"github.com/tazhate/icsync/internal/domain"
	"github.com/tazhate/icsync/internal/service"
	"github.com/tazhate/icsync/pkg/logger"
)

// History gives read access to the run journal.
type History interface {
	RecentRuns(limit int) ([]*domain.SyncRun, error)
}

// NextRunner exposes when the next scheduled cycle is due.
type NextRunner interface {
	NextRun() time.Time
}

// APIResponse is the envelope for every JSON reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RunResponse is a journal entry as served by the API.
type RunResponse struct {
	CycleID    string `json:"cycle_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Status     string `json:"status"`
	Events     int    `json:"events"`
	Uploaded   int    `json:"uploaded"`
	Deleted    int    `json:"deleted"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// StatusResponse describes the current state of the sync loop.
type StatusResponse struct {
	Running bool         `json:"running"`
	LastRun *RunResponse `json:"last_run,omitempty"`
	NextRun *string      `json:"next_run,omitempty"`
}

// Server is the status HTTP API. /health is open, everything under
// /api requires basic auth when credentials are configured.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	sync    *service.SyncService
	journal History
	nextRun NextRunner
	server  *http.Server
}

// NewServer creates the status server. Journal and scheduler are
// optional and attached with the setters before Start.
func NewServer(cfg *config.Config, log *logger.Logger, syncSvc *service.SyncService) *Server {
	s := &Server{
		cfg:  cfg,
		log:  log,
		sync: syncSvc,
	}
	s.server = &http.Server{
		Addr:    cfg.Status.Listen,
		Handler: s.routes(),
	}
	return s
}

// SetJournal enables the /api/history endpoint.
func (s *Server) SetJournal(h History) {
	s.journal = h
}

// SetScheduler enables the next_run field in /api/status.
func (s *Server) SetScheduler(n NextRunner) {
	s.nextRun = n
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info("status server listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Post("/sync", s.handleSync)
	})

	return r
}

// basicAuth guards /api the same way for every handler. With no
// credentials configured the API is open.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Status.Username == "" {
			next.ServeHTTP(w, r)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok || username != s.cfg.Status.Username || password != s.cfg.Status.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="icsync API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Running: s.sync.Running()}

	if run := s.sync.LastRun(); run != nil {
		resp.LastRun = toRunResponse(run)
	}
	if s.nextRun != nil {
		if next := s.nextRun.NextRun(); !next.IsZero() {
			v := next.Format(time.RFC3339)
			resp.NextRun = &v
		}
	}

	s.jsonResponse(w, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.jsonError(w, "Journal not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.journal.RecentRuns(limit)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]*RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	run, err := s.sync.TryRunCycle(r.Context())
	if errors.Is(err, service.ErrCycleRunning) {
		s.jsonError(w, "Sync already running", http.StatusConflict)
		return
	}
	if err != nil {
		// The run record still carries the failed status and the
		// partial counts.
		s.jsonFailure(w, err.Error(), toRunResponse(run), http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, toRunResponse(run))
}

func toRunResponse(run *domain.SyncRun) *RunResponse {
	return &RunResponse{
		CycleID:    run.CycleID,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		FinishedAt: run.FinishedAt.Format(time.RFC3339),
		Status:     string(run.Status),
		Events:     run.Events,
		Uploaded:   run.Uploaded,
		Deleted:    run.Deleted,
		Skipped:    run.Skipped,
		DurationMS: run.Duration().Milliseconds(),
		Error:      run.Error,
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

func (s *Server) jsonFailure(w http.ResponseWriter, err string, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Data: data, Error: err})
}
