package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sheetsctl",
		Short:         "Admin tool for gymsheets owners, sheets and history logs",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.env, "env", "development", "environment [prod | production | dev | development]")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "./config.toml", "path for the TOML config file")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file with the secrets")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level")

	rootCmd.AddCommand(
		newMigrateOwnersCmd(a),
		newLinkOrphansCmd(a),
		newListCmd(a),
		newActivateCmd(a),
		newImportCmd(a),
	)
	return rootCmd
}
