//nolint:lll
package config

import "time"

// Config represents the complete configuration for the idscan application.
// It covers every command (scan, parse, serve, stats) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Scan area
	ROI ROIConfig `mapstructure:"roi" yaml:"roi" json:"roi"`

	// Decoder cascade
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder" json:"decoder"`

	// AAMVA parser
	Parser ParserConfig `mapstructure:"parser" yaml:"parser" json:"parser"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Usage counter store
	Stats StatsConfig `mapstructure:"stats" yaml:"stats" json:"stats"`
}

// ROIConfig sizes the centred scan area as a percentage of the image.
type ROIConfig struct {
	WidthPct  int `mapstructure:"width_pct" yaml:"width_pct" json:"width_pct"`
	HeightPct int `mapstructure:"height_pct" yaml:"height_pct" json:"height_pct"`
}

// DecoderConfig contains decoder cascade settings.
type DecoderConfig struct {
	HighAccuracy    bool          `mapstructure:"high_accuracy" yaml:"high_accuracy" json:"high_accuracy"`
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout" yaml:"strategy_timeout" json:"strategy_timeout"`
	Variants        []string      `mapstructure:"variants" yaml:"variants" json:"variants"`
	// Formats narrows the symbologies read by the generic detector and the
	// variant sweep. Empty reads every supported symbology.
	Formats     []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	PureBarcode bool     `mapstructure:"pure_barcode" yaml:"pure_barcode" json:"pure_barcode"`
}

// ParserConfig extends the field table. Keys are element IDs, values labels.
type ParserConfig struct {
	ExtraFields map[string]string `mapstructure:"extra_fields" yaml:"extra_fields" json:"extra_fields"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format       string `mapstructure:"format" yaml:"format" json:"format"`
	File         string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir   string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayColor string `mapstructure:"overlay_color" yaml:"overlay_color" json:"overlay_color"`
	JPEGQuality  int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool            `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// StatsConfig selects the usage counter backend.
type StatsConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	Path        string        `mapstructure:"path" yaml:"path" json:"path"`
	DSN         string        `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Keep        int           `mapstructure:"keep" yaml:"keep" json:"keep"`
	MaxConns    int32         `mapstructure:"max_conns" yaml:"max_conns" json:"max_conns"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`

	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout" json:"statement_timeout"`
}
