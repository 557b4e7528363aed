package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInstrumentsCmd(g *globalFlags) *cobra.Command {
	var refresh bool
	var lookup []string
	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "Build or refresh the cached instrument map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, g)
			if err != nil {
				return err
			}

			exchange := e.cfg.Download.Exchange
			resolve := e.resolver.Resolve
			if refresh {
				resolve = e.resolver.Refresh
			}
			m, err := resolve(ctx, exchange)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s %s instruments of type %s cached at %s\n",
				humanize.Comma(int64(len(m))), exchange, e.cfg.Download.InstrumentType, e.resolver.CachePath(exchange))
			for _, sym := range lookup {
				if tok, ok := m.Token(sym); ok {
					_, _ = fmt.Fprintf(out, "%s\t%d\n", sym, tok)
				} else {
					_, _ = fmt.Fprintf(out, "%s\tnot found\n", sym)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch a fresh listing even if a cache exists")
	cmd.Flags().StringSliceVar(&lookup, "lookup", nil, "print tokens for these symbols")
	return cmd
}
