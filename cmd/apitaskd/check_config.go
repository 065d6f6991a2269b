package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"apitask/internal/config"
)

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Parse and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(opts.configPath).Load()
			if err != nil {
				return fmt.Errorf("%s: %w", opts.configPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (http %s, runner %s)\n",
				opts.configPath, config.HTTPAddr(cfg.HTTP), config.RunnerMode(cfg.Runner))
			return nil
		},
	}
}
