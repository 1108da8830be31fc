package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"postflow/internal/api"
	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/selector"
	"postflow/internal/services"
)

type apiServer struct {
	cfg         *config.Config
	bind        string
	logger      *slog.Logger
	daemon      *Daemon
	workflowSvc *api.WorkflowService

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:         cfg,
		bind:        strings.TrimSpace(cfg.Paths.APIBind),
		logger:      logger,
		daemon:      d,
		workflowSvc: api.NewWorkflowService(d.store),
	}

	cron := func(h http.HandlerFunc) http.HandlerFunc {
		return cronAuth(cfg.Cron.Secret, cfg.Cron.TrustedHeader, cfg.Cron.TrustedValue, h)
	}
	token := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(cfg.Paths.APIToken, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/api/cron/sweep", cron(srv.handleSweep))
	mux.HandleFunc("/api/cron/start", cron(srv.handleStart))
	mux.HandleFunc("/webhooks/synthesis", srv.handleSynthesisWebhook)
	mux.HandleFunc("/webhooks/captions", srv.handleCaptionWebhook)
	mux.HandleFunc("/api/status", token(srv.handleStatus))
	mux.HandleFunc("/api/workflows", token(srv.handleWorkflows))
	mux.HandleFunc("/api/workflows/{id}", token(srv.handleWorkflow))
	mux.HandleFunc("/api/webhooks/failures", token(srv.handleWebhookFailures))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Sweeps and callbacks call providers inline.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	summary, err := s.daemon.Sweep(ctx)
	if err != nil {
		s.log().Error("sweep failed", logging.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, api.SweepResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSweepSummary(summary))
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	brand := strings.TrimSpace(r.URL.Query().Get("brand"))
	if brand == "" {
		s.writeError(w, http.StatusBadRequest, "brand is required")
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	item, err := s.daemon.StartBrand(ctx, brand)
	switch {
	case err == nil:
		dto := api.FromItem(item)
		s.writeJSON(w, http.StatusOK, api.StartResponse{Success: true, Started: true, Workflow: &dto})
	case errors.Is(err, selector.ErrNoContent):
		s.writeJSON(w, http.StatusOK, api.StartResponse{Success: true, Message: "no eligible content for " + brand})
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log().Error("start failed", logging.Brand(brand), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		Address:      status.Address,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query()
	filter := queue.ListFilter{Brand: query.Get("brand")}
	for _, value := range query["status"] {
		for part := range strings.SplitSeq(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			status, ok := queue.ParseStatus(trimmed)
			if !ok {
				s.writeError(w, http.StatusBadRequest, "unknown status "+trimmed)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	items, err := s.workflowSvc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []api.Workflow{}
	}
	s.writeJSON(w, http.StatusOK, api.WorkflowListResponse{Items: items})
}

func (s *apiServer) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	item, err := s.workflowSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.WorkflowResponse{Item: *item})
}

func (s *apiServer) handleWebhookFailures(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query()
	filter := queue.WebhookFailureFilter{Provider: query.Get("provider")}
	if all, err := strconv.ParseBool(query.Get("all")); err == nil {
		filter.IncludeResolved = all
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	failures, err := api.ListWebhookFailures(r.Context(), s.daemon.store, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.WebhookFailureListResponse{Items: failures})
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	return false
}

func requestID(r *http.Request) string {
	for _, header := range []string{"X-Request-Id", "X-Vercel-Id"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}
	return newRequestID()
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
