package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/svaha/downloader/internal/config"
	"github.com/svaha/downloader/internal/download"
	"github.com/svaha/downloader/internal/instrument"
	"github.com/svaha/downloader/internal/kite"
	"github.com/svaha/downloader/internal/logging"
)

type globalFlags struct {
	verbose bool
	noLogs  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "svaha",
		Short: "Resumable historical data downloader for Kite Connect",
		Long: `svaha fetches historical OHLCV bars for a list of symbols, one date
window at a time, and writes them as CSV and/or Parquet files. A manifest in
the output directory records which symbols are done so an interrupted download
can be resumed.

Credentials are read from KITE_API_KEY and KITE_ACCESS_TOKEN (or a .env file).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "show debug output")
	root.PersistentFlags().BoolVar(&g.noLogs, "no-session-log", false, "do not write a per-session log file")

	root.AddCommand(
		newDownloadCmd(g),
		newResumeCmd(g),
		newInstrumentsCmd(g),
		newServeCmd(g),
	)
	return root
}

// env is everything a command needs, built from configuration.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	client   *kite.Client
	resolver *instrument.Resolver
}

func setup(ctx context.Context, g *globalFlags) (*env, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := logging.Setup(os.Stderr, level)

	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	client := kite.New(cfg.Kite.APIKey, cfg.Kite.AccessToken,
		kite.WithBaseURL(cfg.Kite.BaseURL),
		kite.WithHTTPClient(&http.Client{Timeout: cfg.Kite.Timeout}),
		kite.WithRateLimit(cfg.Kite.RateLimit),
	)
	resolver := instrument.NewResolver(client, cfg.Download.CacheDir, cfg.Download.InstrumentType, logger)

	return &env{cfg: cfg, logger: logger, client: client, resolver: resolver}, nil
}

func (e *env) orchestrator(g *globalFlags, logger *slog.Logger) *download.Orchestrator {
	opts := []download.Option{
		download.WithExchange(e.cfg.Download.Exchange),
		download.WithWindowDays(e.cfg.Download.WindowDays),
		download.WithSymbolDelay(e.cfg.Download.SymbolDelay),
		download.WithLogger(logger),
	}
	if !g.noLogs {
		opts = append(opts, download.WithSessionLogs(e.cfg.LogDir))
	}
	return download.New(e.resolver, e.client, opts...)
}

// quietLogger keeps console output to the progress printer while the session
// log file still receives every record.
func (e *env) quietLogger() *slog.Logger {
	return slog.New(logging.NewConsoleHandler(os.Stderr, slog.LevelError))
}
