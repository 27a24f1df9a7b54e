package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cdprelay/relay/internal/config"
	"github.com/cdprelay/relay/internal/logging"
	"github.com/cdprelay/relay/internal/relay"
)

func serveCmd() *cobra.Command {
	var (
		configPath     string
		host           string
		port           int
		screenshotDir  string
		requireToken   bool
		trace          bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if host != "" {
				cfg.Host = host
			}
			if port != 0 {
				cfg.Port = port
			}
			if screenshotDir != "" {
				cfg.ScreenshotDir = screenshotDir
			}
			if requireToken {
				cfg.RequireDiscoveryToken = true
			}
			if trace {
				cfg.Trace = true
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&host, "host", "", "override bind host")
	cmd.Flags().IntVar(&port, "port", 0, "override bind port")
	cmd.Flags().StringVar(&screenshotDir, "screenshot-dir", "", "directory GET /screenshots/<file> serves from")
	cmd.Flags().BoolVar(&requireToken, "require-discovery-token", false, "gate /json* endpoints behind a bearer token")
	cmd.Flags().BoolVar(&trace, "trace", false, "enable frame-level CDP tracing")
	return cmd
}

// runServe binds and serves until SIGINT/SIGTERM or an unrecoverable
// listener error, then exits per spec.md §6: 0 on clean shutdown, 1 on
// bind failure.
func runServe(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("cdprelay: received signal %v, shutting down", sig)
		cancel()
	}()

	srv := relay.New(cfg)
	if cfg.RequireDiscoveryToken {
		logging.Infof("cdprelay: discovery token: %s", srv.DiscoveryToken())
	}
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
