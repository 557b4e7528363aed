// Command svaha downloads historical market data from Kite Connect into
// CSV and Parquet files.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Root context: cancelled on SIGINT/SIGTERM so a running download stops
	// after its current symbol.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
