package main

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/explorers"
)

func (a *app) verifyCmd() *cobra.Command {
	var (
		address string
		amount  string
	)

	cmd := &cobra.Command{
		Use:   "verify <currency> <tx-hash>",
		Short: "Check a transaction on chain without touching any invoice",
		Example: `  cfctl verify BTC f4184fc5...9e16 --address bc1q... --amount 0.0005
  cfctl verify ETH 0x5c50...2060`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := explorers.NewRegistry(a.cfg)
			if err != nil {
				return err
			}

			verifier, ok := registry.Lookup(args[0])
			if !ok {
				return fmt.Errorf("no verifier for %q", args[0])
			}

			hash, err := verifier.Canonical(args[1])
			if err != nil {
				return err
			}

			req := ledger.Request{TxHash: hash, Address: address}

			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("parsing --amount: %w", err)
				}

				req.Amount = &d
			}

			res := verifier.Verify(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}

			if !res.Verified {
				return fmt.Errorf("not verified: %s", res.Reason)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "expected destination address")
	cmd.Flags().StringVar(&amount, "amount", "", "expected amount in the chain's currency")

	return cmd
}
