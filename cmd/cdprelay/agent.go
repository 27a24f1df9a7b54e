package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cdprelay/relay/internal/extagent"
	"github.com/cdprelay/relay/internal/logging"
)

func agentCmd() *cobra.Command {
	var (
		relayURL   string
		browserURL string
		whitelist  string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the extension-side agent, bridging a relay and a real browser's debugger endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := extagent.DefaultConfig()
			cfg.RelayURL = relayURL
			cfg.BrowserCDPURL = browserURL
			if whitelist != "" {
				cfg.Whitelist = splitAndTrim(whitelist)
			}
			return runAgent(cfg)
		},
	}

	cmd.Flags().StringVar(&relayURL, "relay-url", "ws://127.0.0.1:18792/extension", "relay /extension WebSocket URL")
	cmd.Flags().StringVar(&browserURL, "browser-url", "http://127.0.0.1:9222", "browser remote-debugging HTTP origin")
	cmd.Flags().StringVar(&whitelist, "whitelist", "", "comma-separated hostnames to auto-attach")
	return cmd
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runAgent dials both legs and blocks until SIGINT/SIGTERM or the upstream
// link drops, mirroring runServe's signal-to-cancel pattern.
func runAgent(cfg extagent.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("cdprelay: received signal %v, shutting down", sig)
		cancel()
	}()

	a := extagent.New(cfg)
	defer a.Close()
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}
