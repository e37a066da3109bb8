package cmd

import (
	"cilia/pkg/config"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cilia",
	Short: "Backend for the cilia promo site",
	Long: `cilia serves the promo site's backend: the Twitter/X OAuth 2.0 login
(/api/auth/twitter and /api/auth/callback) and the avatar image proxy
(/api/proxy-image).

Configuration comes from flags, CILIA_* environment variables and an
optional cilia.yaml. Start the server with:
  cilia serve`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default: ./cilia.yaml or /etc/cilia/cilia.yaml if present)")
	flags.String("listen-addr", ":8080", "address to listen on")
	flags.String("base-url", "http://localhost:8080", "public base URL of the site")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or console)")
}

func Execute() error {
	return rootCmd.Execute()
}

func configOptions(cmd *cobra.Command) config.Options {
	return config.Options{File: configFile, Flags: cmd.Flags()}
}
