package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/download"
	"github.com/svaha/downloader/internal/progress"
	"github.com/svaha/downloader/internal/shard"
	"github.com/svaha/downloader/internal/store"
)

type downloadFlags struct {
	jobFile  string
	symbols  []string
	interval string
	from     string
	to       string
	out      string
	csv      bool
	parquet  bool
	sharding string
	manifest string
}

func newDownloadCmd(g *globalFlags) *cobra.Command {
	f := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical data for a list of symbols",
		Long: `Download historical data for a list of symbols.

Examples:
  # Daily bars for two symbols, one CSV per symbol
  svaha download --symbols RELIANCE,TCS --interval day --from 2023-01-01 --to 2023-12-31 --out ./data

  # 5-minute bars as Parquet, one file per month
  svaha download --symbols INFY --interval 5minute --from 2024-01-01 --to 2024-06-30 \
    --out ./data --csv=false --parquet --sharding month

  # Parameters from a YAML job file
  svaha download --job job.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := f.job()
			if err != nil {
				return err
			}
			return runJob(cmd, g, j)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.jobFile, "job", "", "YAML job file; other job flags are ignored")
	fl.StringSliceVar(&f.symbols, "symbols", nil, "comma-separated trading symbols")
	fl.StringVar(&f.interval, "interval", string(bar.Day), "candle interval ("+intervalList()+")")
	fl.StringVar(&f.from, "from", "", "first date, YYYY-MM-DD")
	fl.StringVar(&f.to, "to", time.Now().Format("2006-01-02"), "last date, YYYY-MM-DD")
	fl.StringVar(&f.out, "out", "", "existing output directory")
	fl.BoolVar(&f.csv, "csv", true, "write CSV files")
	fl.BoolVar(&f.parquet, "parquet", false, "write Parquet files")
	fl.StringVar(&f.sharding, "sharding", shard.None.String(), "split files by day, week, month, quarter or year")
	fl.StringVar(&f.manifest, "manifest", "", "manifest path (default <out>/session_manifest.json)")
	return cmd
}

func (f *downloadFlags) job() (download.Job, error) {
	if f.jobFile != "" {
		return download.LoadJobFile(f.jobFile)
	}
	if len(f.symbols) == 0 {
		return download.Job{}, fmt.Errorf("--symbols or --job is required")
	}
	return download.JobSpec{
		Symbols:      f.symbols,
		Interval:     f.interval,
		From:         f.from,
		To:           f.to,
		OutputDir:    f.out,
		Formats:      store.Formats{CSV: f.csv, Parquet: f.parquet},
		Sharding:     f.sharding,
		ManifestPath: f.manifest,
	}.Job()
}

// runJob validates j, runs it in the foreground and prints its events.
func runJob(cmd *cobra.Command, g *globalFlags, j download.Job) error {
	if verr := j.Validate(); verr != nil {
		return verr
	}

	ctx := cmd.Context()
	e, err := setup(ctx, g)
	if err != nil {
		return err
	}

	p := progress.NewPrinter(cmd.OutOrStdout(), g.verbose)
	s := e.orchestrator(g, e.quietLogger()).Start(ctx, j)
	p.Consume(s.Events())

	sum, err := s.Wait()
	p.Summary(sum, err)
	if download.IsFatal(err) {
		return err
	}
	return nil
}

func intervalList() string {
	names := make([]string, len(bar.Intervals))
	for i, iv := range bar.Intervals {
		names[i] = string(iv)
	}
	return strings.Join(names, ", ")
}
