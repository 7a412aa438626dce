package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

func (a *app) ratesCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Fetch current prices from the oracle",
		Example: `  cfctl rates
  cfctl rates --lang en`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("parsing --lang: %w", err)
			}

			oracle := rates.NewCoinGecko(a.cfg.Rates.OracleURL, a.cfg.Invoice.FiatCurrency, a.cfg.Rates.Timeout,
				rates.BreakerSettings{Failures: a.cfg.Rates.BreakerFailures, Cooldown: a.cfg.Rates.BreakerCooldown})

			prices, err := oracle.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, code := range slices.Sorted(maps.Keys(prices)) {
				fmt.Fprintf(w, "%s\t%s\n", code, rates.FormatFiat(tag, prices[code], a.cfg.Invoice.FiatCurrency, 2))
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "cs", "locale used to format prices")

	return cmd
}
