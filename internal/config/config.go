package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/aamva"
	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/cascade"
	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/preprocess"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/scan"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	variants := make([]string, 0, len(preprocess.Variants()))
	for _, v := range preprocess.Variants() {
		variants = append(variants, v.String())
	}
	return Config{
		LogLevel: "info",
		Verbose:  false,
		ROI: ROIConfig{
			WidthPct:  roi.DefaultWidthPct,
			HeightPct: roi.DefaultHeightPct,
		},
		Decoder: DecoderConfig{
			HighAccuracy:    true,
			StrategyTimeout: cascade.DefaultStrategyTimeout,
			Variants:        variants,
			Formats:         []string{},
		},
		Parser: ParserConfig{
			ExtraFields: map[string]string{},
		},
		Output: OutputConfig{
			Format:       "json",
			OverlayColor: "#00FF00",
			JPEGQuality:  imageio.DefaultJPEGQuality,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     16,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Stats: StatsConfig{
			Backend:          stats.BackendFile,
			Path:             stats.DefaultFileName,
			Keep:             stats.DefaultKeep,
			MaxConns:         4,
			DialTimeout:      5 * time.Second,
			StatementTimeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := validatePercent(c.ROI.WidthPct, "roi.width_pct"); err != nil {
		return err
	}
	if err := validatePercent(c.ROI.HeightPct, "roi.height_pct"); err != nil {
		return err
	}

	if c.Decoder.StrategyTimeout < 0 {
		return fmt.Errorf("invalid decoder.strategy_timeout: %s (must not be negative)", c.Decoder.StrategyTimeout)
	}
	if _, err := c.variants(); err != nil {
		return err
	}
	if _, err := c.formats(); err != nil {
		return err
	}

	for code := range c.Parser.ExtraFields {
		if !validElementID(code) {
			return fmt.Errorf("invalid parser.extra_fields code: %q (must be D followed by two letters)", code)
		}
	}

	if c.Output.OverlayColor != "" && imageio.ParseHexColor(c.Output.OverlayColor) == nil {
		return fmt.Errorf("invalid output.overlay_color: %s (must be #RRGGBB)", c.Output.OverlayColor)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid output.jpeg_quality: %d (must be between 1 and 100)", c.Output.JPEGQuality)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	validBackends := []string{stats.BackendMemory, stats.BackendFile, stats.BackendSQLite, stats.BackendPostgres}
	if !slices.Contains(validBackends, c.Stats.Backend) {
		return fmt.Errorf("invalid stats backend: %s (must be one of: %s)", c.Stats.Backend, strings.Join(validBackends, ", "))
	}
	if c.Stats.Backend == stats.BackendPostgres && c.Stats.DSN == "" {
		return fmt.Errorf("stats.dsn is required for the %s backend", stats.BackendPostgres)
	}
	if c.Stats.Keep < 0 {
		return fmt.Errorf("invalid stats.keep: %d (must not be negative)", c.Stats.Keep)
	}
	if c.Stats.StatementTimeout < 0 {
		return fmt.Errorf("invalid stats.statement_timeout: %s (must not be negative)", c.Stats.StatementTimeout)
	}

	return nil
}

// NewCascade builds the decoder cascade described by the decoder section.
func (c *Config) NewCascade(backend barcode.Backend, logger *slog.Logger) (*cascade.Cascade, error) {
	opts, err := c.ToCascadeOptions(logger)
	if err != nil {
		return nil, err
	}
	return cascade.Default(backend, c.ToCapabilities(), opts), nil
}

// ToCapabilities reports which optional strategies are enabled.
func (c *Config) ToCapabilities() cascade.Capabilities {
	return cascade.Capabilities{HighAccuracy: c.Decoder.HighAccuracy}
}

// ToCascadeOptions converts to cascade.Options.
func (c *Config) ToCascadeOptions(logger *slog.Logger) (cascade.Options, error) {
	variants, err := c.variants()
	if err != nil {
		return cascade.Options{}, err
	}
	formats, err := c.formats()
	if err != nil {
		return cascade.Options{}, err
	}
	return cascade.Options{
		StrategyTimeout: c.Decoder.StrategyTimeout,
		Availability:    c.ToCapabilities().Availability(),
		Variants:        variants,
		Formats:         formats,
		PureBarcode:     c.Decoder.PureBarcode,
		Logger:          logger,
	}, nil
}

// NewParser returns an AAMVA parser with the configured extra fields.
func (c *Config) NewParser() *aamva.Parser {
	return aamva.NewParser(c.Parser.ExtraFields)
}

// ToScanConfig converts to scan.Config.
func (c *Config) ToScanConfig() scan.Config {
	return scan.Config{
		BoxWidthPct:  c.ROI.WidthPct,
		BoxHeightPct: c.ROI.HeightPct,
		OverlayColor: imageio.ParseHexColor(c.Output.OverlayColor),
		JPEGQuality:  c.Output.JPEGQuality,
		RecentScans:  c.Stats.Keep,
	}
}

// ToStatsConfig converts to stats.Config.
func (c *Config) ToStatsConfig() stats.Config {
	return stats.Config{
		Backend:     c.Stats.Backend,
		Path:        c.Stats.Path,
		DSN:         c.Stats.DSN,
		Keep:        c.Stats.Keep,
		MaxConns:    c.Stats.MaxConns,
		DialTimeout: c.Stats.DialTimeout,

		StatementTimeout: c.Stats.StatementTimeout,
	}
}

// variants resolves the configured variant names in order.
func (c *Config) variants() ([]preprocess.Variant, error) {
	out := make([]preprocess.Variant, 0, len(c.Decoder.Variants))
	for _, name := range c.Decoder.Variants {
		v, ok := preprocess.ParseVariant(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("invalid decoder variant: %s", name)
		}
		out = append(out, v)
	}
	return out, nil
}

// formats resolves the configured symbologies. A non-empty list must
// include pdf417, the only symbology a scan accepts.
func (c *Config) formats() ([]barcode.Format, error) {
	if len(c.Decoder.Formats) == 0 {
		return nil, nil
	}
	out := make([]barcode.Format, 0, len(c.Decoder.Formats))
	for _, name := range c.Decoder.Formats {
		f, ok := barcode.ParseFormat(name)
		if !ok {
			return nil, fmt.Errorf("invalid decoder format: %s", name)
		}
		out = append(out, f)
	}
	if !slices.Contains(out, barcode.FormatPDF417) {
		return nil, fmt.Errorf("invalid decoder.formats: %s (must include pdf417)", strings.Join(c.Decoder.Formats, ", "))
	}
	return out, nil
}

// validatePercent validates that a value is between 1 and 100.
func validatePercent(value int, name string) error {
	if value < 1 || value > 100 {
		return fmt.Errorf("invalid %s: %d (must be between 1 and 100)", name, value)
	}
	return nil
}

func validElementID(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 || code[0] != 'D' {
		return false
	}
	for i := 1; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
