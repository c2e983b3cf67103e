package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/news-ingest/internal/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d sources, %d enabled\n",
				len(cfg.Sources), len(cfg.EnabledSources()))
			return nil
		},
	}
}
