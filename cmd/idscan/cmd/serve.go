package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/idscan/internal/config"
	"github.com/MeKo-Tech/idscan/internal/server"
	"github.com/MeKo-Tech/idscan/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the scan API",
	Long: `Start an HTTP server that scans uploaded driver's license images.

The server provides the following endpoints:
  POST /scan       - Scan an uploaded image or PDF
  POST /parse      - Parse raw AAMVA text
  GET  /scan-stats - Usage counters
  GET  /ws/scan    - Streaming scans over WebSocket
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  idscan serve
  idscan serve --port 8080
  idscan serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		flags := cmd.Flags()

		if flags.Changed("host") {
			cfg.Server.Host, _ = flags.GetString("host")
		}
		if flags.Changed("port") {
			cfg.Server.Port, _ = flags.GetInt("port")
		}
		if flags.Changed("cors-origin") {
			cfg.Server.CORSOrigin, _ = flags.GetString("cors-origin")
		}
		if flags.Changed("max-upload-size") {
			cfg.Server.MaxUploadMB, _ = flags.GetInt("max-upload-size")
		}
		if flags.Changed("timeout") {
			cfg.Server.TimeoutSec, _ = flags.GetInt("timeout")
		}
		if flags.Changed("shutdown-timeout") {
			cfg.Server.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
		}
		if flags.Changed("overlay-enable") {
			cfg.Server.OverlayEnabled, _ = flags.GetBool("overlay-enable")
		}
		if flags.Changed("rate-limit-enabled") {
			cfg.Server.RateLimit.Enabled, _ = flags.GetBool("rate-limit-enabled")
		}
		if flags.Changed("requests-per-minute") {
			cfg.Server.RateLimit.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
		}
		if flags.Changed("requests-per-hour") {
			cfg.Server.RateLimit.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
		}
		if flags.Changed("max-requests-per-day") {
			cfg.Server.RateLimit.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
		}
		if flags.Changed("max-data-per-day") {
			cfg.Server.RateLimit.MaxDataPerDayMB, _ = flags.GetInt("max-data-per-day")
		}
		if flags.Changed("stats-backend") {
			cfg.Stats.Backend, _ = flags.GetString("stats-backend")
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := slog.Default()
		logger.Info("starting", "version", version.String())
		svc, store, err := newScanService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore(store)

		srv, err := server.NewServer(serverConfig(cfg.Server), svc, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		return srv.ListenAndServe(ctx)
	},
}

func serverConfig(sc config.ServerConfig) server.Config {
	v, _, _ := version.Info()
	return server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		CORSOrigin:      sc.CORSOrigin,
		MaxUploadMB:     int64(sc.MaxUploadMB),
		TimeoutSec:      sc.TimeoutSec,
		ShutdownTimeout: sc.ShutdownTimeout,
		OverlayEnabled:  sc.OverlayEnabled,
		RateLimit: server.RateLimitConfig{
			Enabled:           sc.RateLimit.Enabled,
			RequestsPerMinute: sc.RateLimit.RequestsPerMinute,
			RequestsPerHour:   sc.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: sc.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     int64(sc.RateLimit.MaxDataPerDayMB) * 1024 * 1024,
		},
		Version: v,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 16, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")
	serveCmd.Flags().String("stats-backend", "file", "usage counter backend (memory, file, sqlite, postgres)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	serveCmd.Flags().Int("max-data-per-day", 0, "maximum upload volume per day per client in MB (0 = unlimited)")
}
