package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termsync/httpapi"
	"pkt.systems/termsync/internal/appconfig"
)

func newServeMockCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var seed int
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Serve an in-memory reference remote for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Mock.Addr = addr
			}
			if cmd.Flags().Changed("seed") {
				cfg.Mock.Seed = seed
			}
			logger := pslog.Ctx(cmd.Context())

			registry := httpapi.NewRegistry()
			for _, t := range registry.Seed(cfg.Mock.Seed) {
				logger.Info("mock terminal seeded", "terminal", t.ID, "name", t.Name)
			}
			srv := httpapi.NewServer(httpapi.Config{
				Addr:           cfg.Mock.Addr,
				RosterInterval: cfg.Mock.RosterInterval(),
			}, registry)
			return httpapi.ListenAndServe(cmd.Context(), cfg.Mock.Addr, srv.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :4001)")
	cmd.Flags().IntVar(&seed, "seed", 0, "number of demo terminals to create")
	return cmd
}
