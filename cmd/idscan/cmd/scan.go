package cmd

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/idscan/internal/cascade"
	"github.com/MeKo-Tech/idscan/internal/scan"
)

// fileResult is the outcome for one input file.
type fileResult struct {
	File   string       `json:"file" yaml:"file"`
	Result *scan.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan <image|pdf>...",
	Short: "Scan driver's license images for a PDF417 barcode",
	Long: `Scan one or more images or PDFs for the PDF417 barcode on the back of a
driver's license and print the parsed AAMVA fields.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP, PDF

The command exits non-zero when any input yields no barcode.

Examples:
  idscan scan license.jpg
  idscan scan back.png --box-width 80 --box-height 25 --format yaml
  idscan scan scans.pdf --pages 1-2 --overlay-dir overlays`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("no-high-accuracy") {
			off, _ := cmd.Flags().GetBool("no-high-accuracy")
			cfg.Decoder.HighAccuracy = !off
		}
		if err := validateFormat(cfg.Output.Format); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		pages, _ := cmd.Flags().GetString("pages")

		ctx := cmd.Context()
		logger := slog.Default()
		svc, store, err := newScanService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore(store)

		overlayDir := cfg.Output.OverlayDir
		if overlayDir != "" {
			if err := os.MkdirAll(overlayDir, 0o750); err != nil {
				return fmt.Errorf("failed to create overlay directory: %w", err)
			}
		}

		results := make([]fileResult, 0, len(args))
		failed := 0
		for _, path := range args {
			fr := fileResult{File: path}
			res, err := scanFile(cmd, svc, path, scan.Request{Overlay: overlayDir != "", Pages: pages})
			switch {
			case err != nil:
				fr.Error = err.Error()
				failed++
			case !res.Success:
				fr.Result = res
				failed++
			default:
				fr.Result = res
			}
			if res != nil && res.ImageBase64 != "" {
				if err := saveOverlay(cmd, overlayDir, path, res.ImageBase64); err != nil {
					return err
				}
				res.ImageBase64 = ""
			}
			results = append(results, fr)
		}

		output, err := renderScanResults(cfg.Output.Format, results)
		if err != nil {
			return err
		}
		if err := emit(cmd.OutOrStdout(), cfg.Output.File, output); err != nil {
			return err
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d input(s) failed: %w", failed, len(args), cascade.ErrNotFound)
		}
		return nil
	},
}

func scanFile(cmd *cobra.Command, svc *scan.Service, path string, req scan.Request) (*scan.Result, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user supplied input file
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	res, err := svc.ScanBytes(cmd.Context(), data, req)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return res, nil
}

func saveOverlay(cmd *cobra.Command, dir, path, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode overlay: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(dir, base+"_overlay.jpg")
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "Saved overlay: %s\n", outPath)
	return err
}

func renderScanResults(format string, results []fileResult) (string, error) {
	if format != outputFormatText {
		if len(results) == 1 {
			return encode(format, results[0])
		}
		return encode(format, results)
	}

	var b strings.Builder
	for _, fr := range results {
		switch {
		case fr.Error != "":
			fmt.Fprintf(&b, "%s: error: %s\n", fr.File, fr.Error)
		case fr.Result.Success:
			fmt.Fprintf(&b, "%s: found (%s)\n", fr.File, fr.Result.Method)
			writeRecord(&b, fr.Result.Data, "  ")
		default:
			fmt.Fprintf(&b, "%s: %s\n", fr.File, fr.Result.Message)
		}
	}
	return b.String(), nil
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "json", "output format (text, json, yaml)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().Int("box-width", 70, "scan area width as a percentage of the image width")
	cmd.Flags().Int("box-height", 15, "scan area height as a percentage of the image height")
	cmd.Flags().String("overlay-dir", "", "write annotated overlay images to this directory")
	cmd.Flags().Duration("timeout", cascade.DefaultStrategyTimeout, "time budget per decoder strategy")
	cmd.Flags().Bool("no-high-accuracy", false, "skip the high accuracy decoder strategy")
	cmd.Flags().String("pages", "", "PDF page range to scan, e.g. 1-3,5")
}

func bindScanFlags(cmd *cobra.Command) {
	flagBindings := []struct {
		key  string
		flag string
	}{
		{"output.format", "format"},
		{"output.file", "output"},
		{"output.overlay_dir", "overlay-dir"},
		{"roi.width_pct", "box-width"},
		{"roi.height_pct", "box-height"},
		{"decoder.strategy_timeout", "timeout"},
	}

	for _, binding := range flagBindings {
		if err := viper.BindPFlag(binding.key, cmd.Flags().Lookup(binding.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", binding.flag, err))
		}
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	addScanFlags(scanCmd)
	bindScanFlags(scanCmd)
}
