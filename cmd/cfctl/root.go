package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/cryptofund/internal/config"
	"github.com/MrJamesThe3rd/cryptofund/internal/logging"
)

type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "cfctl",
		Short:        "Operator tool for the cryptofund invoicing service",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}

			a.cfg = cfg

			return nil
		},
	}

	root.AddCommand(a.ratesCmd(), a.verifyCmd(), a.tokenCmd())

	return root
}
