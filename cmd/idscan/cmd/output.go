package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/idscan/internal/aamva"
)

const (
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatText = "text"
)

var validFormats = []string{outputFormatText, outputFormatJSON, outputFormatYAML}

func validateFormat(format string) error {
	if !slices.Contains(validFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
	}
	return nil
}

// encode renders v as JSON or YAML.
func encode(format string, v interface{}) (string, error) {
	switch format {
	case outputFormatYAML:
		bts, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return string(bts), nil
	default:
		bts, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(bts) + "\n", nil
	}
}

// writeRecord prints a record as "Label: value" lines sorted by label.
func writeRecord(b *strings.Builder, rec aamva.Record, indent string) {
	labels := make([]string, 0, len(rec))
	for l := range rec {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	for _, l := range labels {
		fmt.Fprintf(b, "%s%s: %s\n", indent, l, rec[l])
	}
}

// emit writes output to file when set, otherwise to out.
func emit(out io.Writer, file, output string) error {
	if file != "" {
		if err := os.WriteFile(file, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		_, err := fmt.Fprintf(out, "Results written to %s\n", file)
		return err
	}
	if _, err := fmt.Fprint(out, output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
