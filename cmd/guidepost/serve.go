package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guidepost-ai/guidepost"
	"github.com/guidepost-ai/guidepost/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Guidepost server",
	Long:  "Start the Guidepost API server that generates roadmaps and receives GitHub webhooks.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	svc, err := guidepost.NewBuilder().WithConfig(cfg).Build()
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	return svc.Start(ctx)
}
