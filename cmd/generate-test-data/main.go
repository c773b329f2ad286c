package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/idscan/internal/aamva"
	"github.com/MeKo-Tech/idscan/internal/testutil"
	"github.com/disintegration/imaging"
)

const payloadHeader = "@\n\x1e\rANSI 636014040002DL00410278ZC03190024DL"

type sample struct {
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
}

type fixture struct {
	Name     string       `json:"name"`
	Image    string       `json:"image"`
	Variants []string     `json:"variants"`
	Payload  string       `json:"payload"`
	Expected aamva.Record `json:"expected"`
}

var samples = []sample{
	{
		Name: "standard",
		Fields: map[string]string{
			"DAQ": "D1234562", "DCS": "SMITH", "DAC": "JANE", "DBB": "01151985",
			"DBA": "01152030", "DBC": "2", "DAJ": "CA", "DAK": "940430000",
		},
	},
	{
		Name: "minimal",
		Fields: map[string]string{
			"DAQ": "X9876543", "DCS": "ROE", "DAC": "RICHARD",
		},
	},
	{
		Name: "new_york",
		Fields: map[string]string{
			"DAQ": "L5550001", "DCS": "QUINN", "DAC": "ALEX", "DBB": "19900704", "DAJ": "NY",
		},
	},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "testdata/licenses", "Output directory, relative to the project root")
		scale   = flag.Int("scale", 3, "Module scale of the rendered PDF417 symbol")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic driver's license images for idscan testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o750); err != nil {
		slog.Error("Failed to create output directory", "dir", *outDir, "error", err)
		os.Exit(1)
	}

	fixtures := make([]fixture, 0, len(samples))
	for _, s := range samples {
		f, err := generateSample(*outDir, s, *scale)
		if err != nil {
			slog.Error("Failed to generate sample", "name", s.Name, "error", err)
			os.Exit(1)
		}
		if *verbose {
			slog.Info("Generated sample", "name", s.Name, "image", f.Image, "variants", len(f.Variants))
		}
		fixtures = append(fixtures, f)
	}

	if err := writeManifest(filepath.Join(*outDir, "manifest.json"), fixtures); err != nil {
		slog.Error("Failed to write manifest", "error", err)
		os.Exit(1)
	}

	slog.Info("Test data generation completed", "dir", *outDir, "samples", len(fixtures))
}

// generateSample renders one card plus degraded variants that push the
// decoder past its first strategy.
func generateSample(dir string, s sample, scale int) (fixture, error) {
	payload := payloadHeader + testutil.RenderPayload(s.Fields)
	symbol, err := testutil.RenderPDF417(payload, scale)
	if err != nil {
		return fixture{}, fmt.Errorf("failed to render symbol: %w", err)
	}
	b := symbol.Bounds()
	card := testutil.DocumentWithSymbol(symbol, b.Dx()+120, b.Dy()*6)

	f := fixture{
		Name:     s.Name,
		Image:    s.Name + ".png",
		Payload:  s.Name + ".txt",
		Expected: aamva.Parse(payload),
	}
	if err := savePNG(filepath.Join(dir, f.Image), card); err != nil {
		return fixture{}, err
	}

	variants := map[string]image.Image{
		"rotated": imaging.Rotate90(card),
		"blurred": imaging.Blur(card, 1.2),
		"faded":   imaging.AdjustContrast(imaging.AdjustBrightness(card, 25), -40),
	}
	for _, name := range []string{"rotated", "blurred", "faded"} {
		file := fmt.Sprintf("%s_%s.png", s.Name, name)
		if err := savePNG(filepath.Join(dir, file), variants[name]); err != nil {
			return fixture{}, err
		}
		f.Variants = append(f.Variants, file)
	}

	if err := os.WriteFile(filepath.Join(dir, f.Payload), []byte(payload), 0o600); err != nil {
		return fixture{}, fmt.Errorf("failed to write payload: %w", err)
	}
	return f, nil
}

func savePNG(path string, img image.Image) error {
	file, err := os.Create(path) //nolint:gosec // G304: Test data generation uses controlled paths
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

func writeManifest(path string, fixtures []fixture) error {
	data, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
