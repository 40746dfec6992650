package main

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termsync/httpapi"
	"pkt.systems/termsync/internal/appconfig"
	"pkt.systems/termsync/internal/metrics"
	"pkt.systems/termsync/internal/tui"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	var logFile string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Browse remote terminals interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			logger, closeLog, err := watchLogger(logFile)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()
			ctx, cancel := context.WithCancel(pslog.ContextWithLogger(cmd.Context(), logger))
			defer cancel()

			if cfg.Metrics.Addr != "" {
				go func() {
					if err := httpapi.ListenAndServe(ctx, cfg.Metrics.Addr, metrics.Handler()); err != nil {
						logger.Error("metrics server failed", "err", err)
					}
				}()
			}

			client, err := newSyncClient(cfg, logger)
			if err != nil {
				return err
			}
			events, unsubscribe := client.Events()
			defer unsubscribe()
			defer func() { _ = client.Stop(context.Background()) }()
			if err := client.Start(ctx); err != nil {
				return err
			}

			program := tea.NewProgram(tui.New(ctx, client.Sync(), events), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while the viewer runs")
	return cmd
}

// watchLogger keeps log output off the terminal the viewer draws on.
func watchLogger(path string) (pslog.Logger, func() error, error) {
	if path == "" {
		return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true}), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	logger := pslog.NewWithOptions(f, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	return logger, f.Close, nil
}
