// Package server exposes the redaction engine and its collaborators over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/export"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/security"
	"github.com/raaihank/cv-anonymizer/internal/stats"
	"github.com/raaihank/cv-anonymizer/internal/web"
	"github.com/raaihank/cv-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info.
var Version = "0.1.0"

const statusInterval = 30 * time.Second

// Auditor persists one audit entry per redaction run.
type Auditor interface {
	Insert(ctx context.Context, e *audit.Entry) error
	Close() error
}

// Server is the HTTP API server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	base     *logger.Logger
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiter  *security.RateLimiter
	validate *validator.Validate
	recorder stats.Recorder
	auditor  Auditor

	// swapped as a whole on configuration reload
	engine   atomic.Pointer[redact.Engine]
	exporter atomic.Pointer[export.Exporter]

	startedAt      time.Time
	totalRequests  atomic.Int64
	totalDocuments atomic.Int64
	reloadedAt     atomic.Value // string
	reloadFailure  atomic.Value // string
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	engine, err := redact.New(cfg.Redaction, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create redaction engine: %w", err)
	}

	recorder, err := stats.New(cfg.Stats, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats recorder: %w", err)
	}

	var auditor Auditor
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			recorder.Close()
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			recorder.Close()
			return nil, err
		}
		auditor = store
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		base:      log,
		router:    mux.NewRouter(),
		wsHub:     websocket.NewHub(cfg.WebSocket, log),
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		validate:  validator.New(),
		recorder:  recorder,
		auditor:   auditor,
		startedAt: time.Now(),
	}
	s.engine.Store(engine)
	s.exporter.Store(export.New(cfg.Export))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	dashboard := web.DashboardData{Version: Version}
	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		dashboard.WebSocketPath = path
	}

	s.router.HandleFunc("/", web.Dashboard(dashboard)).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.Dashboard(dashboard)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/export/{format}", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/sections", s.handleSections).Methods(http.MethodPost)
	api.HandleFunc("/normalize", s.handleNormalize).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background routines and serves HTTP until Stop is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting CV anonymizer server",
		zap.Int("port", s.config.Server.Port),
		zap.Strings("detectors", s.config.Redaction.Detectors),
		zap.String("stats_backend", s.config.Stats.Backend),
		zap.Bool("audit_enabled", s.auditor != nil),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx)
	go s.statusRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server and releases backends
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping CV anonymizer server")

	err := s.server.Shutdown(ctx)
	if cerr := s.recorder.Close(); cerr != nil {
		s.logger.Warn("Failed to close stats recorder", zap.Error(cerr))
	}
	if s.auditor != nil {
		if cerr := s.auditor.Close(); cerr != nil {
			s.logger.Warn("Failed to close audit store", zap.Error(cerr))
		}
	}
	return err
}

// Reload swaps in an engine and exporter built from cfg. The previous ones
// stay active if cfg is rejected.
func (s *Server) Reload(cfg *config.Config) error {
	engine, err := redact.New(cfg.Redaction, s.base)
	if err != nil {
		s.ReloadFailed(err)
		return fmt.Errorf("failed to rebuild redaction engine: %w", err)
	}

	s.engine.Store(engine)
	s.exporter.Store(export.New(cfg.Export))
	s.reloadedAt.Store(time.Now().UTC().Format(time.RFC3339))
	s.reloadFailure.Store("")

	s.logger.Info("Configuration reloaded", zap.Strings("enabled_rules", engine.GetEnabledRules()))
	s.wsHub.BroadcastStatus(s.status())
	return nil
}

// ReloadFailed records a rejected configuration update.
func (s *Server) ReloadFailed(err error) {
	s.reloadFailure.Store(err.Error())
	s.logger.Error("Configuration reload rejected", zap.Error(err))
	s.wsHub.BroadcastStatus(s.status())
}

func (s *Server) statusRoutine(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.BroadcastStatus(s.status())
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	ev := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		TotalRequests:    s.totalRequests.Load(),
		TotalDocuments:   s.totalDocuments.Load(),
		ActiveRules:      len(s.engine.Load().GetEnabledRules()),
		ConnectedClients: s.wsHub.ClientCount(),
		MemoryUsage:      fmt.Sprintf("%.1f MiB", float64(mem.Alloc)/(1<<20)),
	}
	if v, ok := s.reloadedAt.Load().(string); ok {
		ev.ConfigReloadedAt = v
	}
	if v, ok := s.reloadFailure.Load().(string); ok {
		ev.ConfigReloadFailed = v
	}
	return ev
}
