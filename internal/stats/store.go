// Package stats records successful scans behind a Store with an atomic
// increment contract. Backends range from in-process memory to SQL databases.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultKeep is the number of recent timestamps retained by the memory and
// file backends.
const DefaultKeep = 3

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown stats backend")

// Store counts successful scans. Implementations are safe for concurrent use.
type Store interface {
	// Increment records one successful scan at the given time.
	Increment(ctx context.Context, at time.Time) error
	// RecentTimestamps returns up to n of the most recent scan times, oldest first.
	RecentTimestamps(ctx context.Context, n int) ([]time.Time, error)
	// Total returns the number of scans recorded.
	Total(ctx context.Context) (int64, error)
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Backend          string
	Path             string
	DSN              string
	Keep             int
	MaxConns         int32
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open constructs the Store named by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	logger.Debug("opening stats store", "backend", backend)

	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(keep), nil
	case BackendFile:
		return OpenFileStore(cfg.Path, keep)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, keep)
	case BackendPostgres:
		cfg.Keep = keep
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Summary is the usage snapshot served by /scan-stats.
type Summary struct {
	TotalScans int64    `json:"total_scans" yaml:"total_scans"`
	LastScans  []string `json:"last_scans" yaml:"last_scans"`
}

// Snapshot reads the total and the n most recent timestamps from s.
func Snapshot(ctx context.Context, s Store, n int) (Summary, error) {
	total, err := s.Total(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read total: %w", err)
	}
	recent, err := s.RecentTimestamps(ctx, n)
	if err != nil {
		return Summary{}, fmt.Errorf("read recent scans: %w", err)
	}
	out := Summary{TotalScans: total, LastScans: make([]string, 0, len(recent))}
	for _, ts := range recent {
		out.LastScans = append(out.LastScans, formatTimestamp(ts))
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// tail returns the last n entries of ts, or all of them when n <= 0.
func tail(ts []time.Time, n int) []time.Time {
	if n <= 0 || n >= len(ts) {
		n = len(ts)
	}
	out := make([]time.Time, n)
	copy(out, ts[len(ts)-n:])
	return out
}
