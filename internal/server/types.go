package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/idscan/internal/scan"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// scanner is the part of scan.Service the server depends on.
type scanner interface {
	ScanBytes(ctx context.Context, data []byte, req scan.Request) (*scan.Result, error)
	Parse(raw string) *scan.ParseResult
	Stats(ctx context.Context) (stats.Summary, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	scanner        scanner
	corsOrigin     string
	maxUploadMB    int64
	timeout        time.Duration
	overlayEnabled bool
	rateLimiter    *RateLimiter
	version        string
	logger         *slog.Logger
	cfg            Config
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	OverlayEnabled  bool
	RateLimit       RateLimitConfig
	Version         string
}

// RateLimitConfig holds per-client limits; see RateLimiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewServer creates a server around a scan service.
func NewServer(config Config, svc scanner, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("scan service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 16
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}

	s := &Server{
		scanner:        svc,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		timeout:        time.Duration(config.TimeoutSec) * time.Second,
		overlayEnabled: config.OverlayEnabled,
		version:        config.Version,
		logger:         logger,
		cfg:            config,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.requestIDMiddleware(s.indexHandler)))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/scan", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.scanHandler))))
	mux.HandleFunc("/parse", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.parseHandler))))
	mux.HandleFunc("/scan-stats", s.corsMiddleware(s.statsHandler))
	mux.HandleFunc("/ws/scan", s.rateLimitMiddleware(s.scanWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting scan server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.rateLimiter != nil {
		go s.pruneLoop(ctx)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdown := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	s.logger.Info("Starting graceful shutdown", "timeout", shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("Graceful shutdown completed")
	return nil
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(); n > 0 {
				s.logger.Debug("pruned idle rate limit entries", "count", n)
			}
		}
	}
}
