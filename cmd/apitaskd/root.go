package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "apitaskd",
		Short:         "Scheduled API test task daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckConfigCmd(opts),
		newCronCmd(),
	)
	return cmd
}

// loadEnv loads a dotenv file without overriding the real environment. An empty
// path disables it. A missing default file is fine; an explicitly requested
// one is not.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && explicit {
		return err
	}
	return nil
}
