package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/idscan/internal/stats"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print usage counters",
	Long: `Print the number of successful scans and the most recent scan times
recorded by the configured stats backend.

Examples:
  idscan stats
  idscan stats --format text --recent 10`,
	Args:         cobra.NoArgs,
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
		recent := cfg.Stats.Keep
		if cmd.Flags().Changed("recent") {
			recent, _ = cmd.Flags().GetInt("recent")
		}

		ctx := cmd.Context()
		store, err := stats.Open(ctx, cfg.ToStatsConfig(), slog.Default())
		if err != nil {
			return fmt.Errorf("failed to open stats store: %w", err)
		}
		defer closeStore(store)

		sum, err := stats.Snapshot(ctx, store, recent)
		if err != nil {
			return fmt.Errorf("failed to read stats: %w", err)
		}

		var output string
		if format == outputFormatText {
			var b strings.Builder
			fmt.Fprintf(&b, "Total scans: %d\n", sum.TotalScans)
			for _, ts := range sum.LastScans {
				fmt.Fprintf(&b, "  %s\n", ts)
			}
			output = b.String()
		} else if output, err = encode(format, sum); err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), output)
		return err
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("format", "f", "json", "output format (text, json, yaml)")
	statsCmd.Flags().Int("recent", stats.DefaultKeep, "number of recent scan times to show")
}
