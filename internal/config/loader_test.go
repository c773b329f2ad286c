package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestNewLoader(t *testing.T) {
	if l := NewLoader(); l == nil || l.v == nil {
		t.Fatal("NewLoader() returned an unusable loader")
	}
	if l := NewLoaderWithViper(nil); l == nil || l.v == nil {
		t.Fatal("NewLoaderWithViper(nil) returned an unusable loader")
	}
}

func TestLoadWithNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("expected default log level %q, got %q", infoLevel, cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Decoder.StrategyTimeout != 3*time.Second {
		t.Errorf("expected default strategy timeout, got %s", cfg.Decoder.StrategyTimeout)
	}
}

func TestLoadFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	content := "log_level: debug\nroi:\n  width_pct: 90\n"
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "idscan.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoaderWithViper(viper.New())
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.ROI.WidthPct != 90 {
		t.Errorf("config file not applied: %+v", cfg)
	}
	if cfg.ROI.HeightPct != 15 {
		t.Errorf("expected default height to survive, got %d", cfg.ROI.HeightPct)
	}
	if !strings.HasSuffix(l.GetConfigFileUsed(), filepath.Join("config", "idscan.yaml")) {
		t.Errorf("unexpected config file used: %s", l.GetConfigFileUsed())
	}
}

func TestLoadWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
log_level: warn
decoder:
  high_accuracy: false
  strategy_timeout: 500ms
  variants: [Gray, Binary]
  formats: [pdf417]
  pure_barcode: true
parser:
  extra_fields:
    DCL: Race
server:
  port: 9090
  rate_limit:
    enabled: true
    requests_per_minute: 5
stats:
  backend: sqlite
  path: /var/lib/idscan/stats.db
  statement_timeout: 750ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn, got %s", cfg.LogLevel)
	}
	if cfg.Decoder.HighAccuracy {
		t.Error("expected high accuracy disabled")
	}
	if cfg.Decoder.StrategyTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.Decoder.StrategyTimeout)
	}
	if strings.Join(cfg.Decoder.Variants, ",") != "Gray,Binary" {
		t.Errorf("unexpected variants %v", cfg.Decoder.Variants)
	}
	if strings.Join(cfg.Decoder.Formats, ",") != "pdf417" || !cfg.Decoder.PureBarcode {
		t.Errorf("unexpected decoder formats %v pure=%v", cfg.Decoder.Formats, cfg.Decoder.PureBarcode)
	}
	if cfg.Stats.StatementTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms statement timeout, got %s", cfg.Stats.StatementTimeout)
	}
	if cfg.NewParser().Parse("DCLW")["Race"] != "W" {
		t.Errorf("extra field not applied: %v", cfg.Parser.ExtraFields)
	}
	if cfg.Server.Port != 9090 || !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.RequestsPerMinute != 5 {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.RateLimit.RequestsPerHour != 1000 {
		t.Errorf("expected default hourly limit, got %d", cfg.Server.RateLimit.RequestsPerHour)
	}
	if cfg.Stats.Backend != "sqlite" || cfg.Stats.Path != "/var/lib/idscan/stats.db" {
		t.Errorf("unexpected stats config %+v", cfg.Stats)
	}
}

func TestLoadWithFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewLoaderWithViper(viper.New()).LoadWithFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("log_level: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoaderWithViper(viper.New()).LoadWithFile(invalid); err == nil {
		t.Error("expected error for invalid yaml")
	}

	badValue := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badValue, []byte("roi:\n  width_pct: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoaderWithViper(viper.New()).LoadWithFile(badValue)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("expected validation error, got %v", err)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(badValue)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation: %v", err)
	}
	if cfg.ROI.WidthPct != 0 {
		t.Errorf("expected raw value 0, got %d", cfg.ROI.WidthPct)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("IDSCAN_LOG_LEVEL", "error")
	t.Setenv("IDSCAN_SERVER_PORT", "7070")
	t.Setenv("IDSCAN_STATS_BACKEND", "memory")
	t.Setenv("IDSCAN_DECODER_STRATEGY_TIMEOUT", "2s")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("expected env log level, got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port, got %d", cfg.Server.Port)
	}
	if cfg.Stats.Backend != "memory" {
		t.Errorf("expected env backend, got %s", cfg.Stats.Backend)
	}
	if cfg.Decoder.StrategyTimeout != 2*time.Second {
		t.Errorf("expected env timeout, got %s", cfg.Decoder.StrategyTimeout)
	}
}

func TestGenerateDefaultConfigFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "idscan.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"log_level:", "roi:", "decoder:", "strategy_timeout: 3s", "stats:"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("generated config missing %q", key)
		}
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	def := DefaultConfig()
	if cfg.ROI != def.ROI || cfg.Decoder.StrategyTimeout != def.Decoder.StrategyTimeout || cfg.Stats != def.Stats {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", cfg, def)
	}
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()

	want := []string{".", "./config", filepath.Join("/xdg", "idscan"), "/etc/idscan"}
	if strings.Join(paths, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, paths)
	}
}
