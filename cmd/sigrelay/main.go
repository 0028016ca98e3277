package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "SIGRELAY_CONFIG"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "sigrelay",
		Short: "Relay trading alert webhooks to Telegram",
		Long: `sigrelay accepts alert webhooks (JSON or free text), checks their
shared secret, forwards a formatted message to a Telegram chat and logs
every accepted alert.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv(EnvConfigPath),
		"path to a JSON or YAML config file (env "+EnvConfigPath+")")

	rootCmd.AddCommand(
		newServeCmd(&cfgPath),
		newRecentCmd(&cfgPath),
		newCheckConfigCmd(&cfgPath),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sigrelay version %s\n", version)
		},
	}
}
