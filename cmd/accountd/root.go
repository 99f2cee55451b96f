package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - user accounts with email verification",
		Long: `accountd serves registration, email verification, login and
password reset pages backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/accountd/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before ACCOUNTD_ variables")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAccountCmd())

	return cmd
}

// loadOptions returns the config sources selected by the global flags.
// Without --config, an XDG config.yaml is used when present.
func loadOptions(cmd *cobra.Command) config.LoadOptions {
	file := configFile
	if file == "" {
		file = config.DiscoverFile()
	}
	return config.LoadOptions{
		File:    file,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	}
}
