package main

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termsync"
	"pkt.systems/termsync/core"
	"pkt.systems/termsync/internal/appconfig"
	"pkt.systems/termsync/transport"
)

func transportConfig(cfg appconfig.Config, logger pslog.Logger) transport.Config {
	return transport.Config{
		APIURL:           cfg.Remote.APIURL,
		StreamURL:        cfg.Remote.StreamURL,
		RequestTimeout:   cfg.Remote.RequestTimeout(),
		HandshakeTimeout: cfg.Remote.HandshakeTimeout(),
		Logger:           logger,
	}
}

func newTransport(ctx context.Context, cfg appconfig.Config) (*transport.Client, error) {
	return transport.New(transportConfig(cfg, pslog.Ctx(ctx)))
}

func newSyncClient(cfg appconfig.Config, logger pslog.Logger) (termsync.Client, error) {
	return termsync.New(termsync.Config{
		Transport: transportConfig(cfg, logger),
		Sync: core.SyncConfig{
			RosterReconnectDelay: cfg.Roster.ReconnectDelay(),
		},
	}, termsync.Deps{Logger: logger})
}
