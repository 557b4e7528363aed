package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/svaha/downloader/internal/download"
	"github.com/svaha/downloader/internal/shard"
	"github.com/svaha/downloader/internal/store"
)

func newResumeCmd(g *globalFlags) *cobra.Command {
	var (
		manifestPath string
		out          string
		interval     string
		from, to     string
		parquet      bool
		csv          bool
		sharding     string
	)
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a download from its manifest",
		Long: `Continue a download from its manifest. Only symbols still pending are
fetched. Move failed symbols back to "pending" in the manifest to retry them.

The date range, interval and layout are not stored in the manifest and must be
given again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if manifestPath == "" {
				return fmt.Errorf("--manifest is required")
			}
			if out == "" {
				out = filepath.Dir(manifestPath)
			}
			j, err := download.JobSpec{
				Interval:     interval,
				From:         from,
				To:           to,
				OutputDir:    out,
				Formats:      store.Formats{CSV: csv, Parquet: parquet},
				Sharding:     sharding,
				Resume:       true,
				ManifestPath: manifestPath,
			}.Job()
			if err != nil {
				return err
			}
			return runJob(cmd, g, j)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&manifestPath, "manifest", "", "manifest written by an earlier download")
	fl.StringVar(&out, "out", "", "output directory (default: the manifest's directory)")
	fl.StringVar(&interval, "interval", "day", "candle interval")
	fl.StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	fl.StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	fl.BoolVar(&csv, "csv", true, "write CSV files")
	fl.BoolVar(&parquet, "parquet", false, "write Parquet files")
	fl.StringVar(&sharding, "sharding", shard.None.String(), "split files by day, week, month, quarter or year")
	return cmd
}
