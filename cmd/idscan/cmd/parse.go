package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/idscan/internal/pdf"
	"github.com/MeKo-Tech/idscan/internal/scan"
)

// parseCmd represents the parse command.
var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse raw AAMVA text into labelled fields",
	Long: `Parse the raw text of a driver's license barcode into labelled fields.

The text is read from the given file, or from stdin when the argument is
"-" or missing. Placeholders such as <LF> and <CR> are accepted. PDF input
is parsed from its text layer.

Examples:
  idscan parse payload.txt
  idscan parse export.pdf --pages 1
  echo "DCSSMITH DACJOHN" | idscan parse --format text`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		format := cfg.Output.Format
		if cmd.Flags().Changed("format") {
			format, _ = cmd.Flags().GetString("format")
		}
		if err := validateFormat(format); err != nil {
			return err
		}

		raw, err := readPayload(cmd, args)
		if err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			return errors.New("no input text provided")
		}

		p := cfg.NewParser()
		res := &scan.ParseResult{
			Success: true,
			Data:    p.Parse(raw),
			Fields:  p.Fields(raw),
			RawData: raw,
		}

		var output string
		if format == outputFormatText {
			var b strings.Builder
			writeRecord(&b, res.Data, "")
			output = b.String()
		} else if output, err = encode(format, res); err != nil {
			return err
		}

		outFile, _ := cmd.Flags().GetString("output")
		return emit(cmd.OutOrStdout(), outFile, output)
	},
}

func readPayload(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
	} else if data, err = os.ReadFile(args[0]); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	if !pdf.IsPDF(data) {
		return string(data), nil
	}
	pages, _ := cmd.Flags().GetString("pages")
	texts, err := pdf.ExtractText(cmd.Context(), data, pages)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return pdf.JoinText(texts), nil
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringP("format", "f", "json", "output format (text, json, yaml)")
	parseCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	parseCmd.Flags().String("pages", "", "page range for PDF input (e.g. 1-3)")
}
