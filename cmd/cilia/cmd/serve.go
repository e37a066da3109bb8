package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"cilia/pkg/browser"
	"cilia/pkg/config"
	"cilia/pkg/logger"
	"cilia/pkg/server"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	noBanner    bool
	openBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noBanner, "no-banner", false, "do not print the startup banner")
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "open the landing page in a browser (local development)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configOptions(cmd))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !noBanner {
		printBanner(cmd.OutOrStdout())
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to build server", zap.Error(err))
		return err
	}

	if openBrowser {
		if err := browser.Open(cfg.Server.BaseURL + "/"); err != nil {
			log.Warn("failed to open browser", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func printBanner(w io.Writer) {
	fig := figure.NewFigure("cilia", "cybermedium", true)
	fmt.Fprintln(w, fig.String())
}
