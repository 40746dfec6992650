// Package metrics holds the Prometheus collectors for stream synchronization.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Stream metrics
	StreamsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_streams_opened_total",
		Help: "The total number of stream open attempts.",
	}, []string{"kind"})
	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_stream_messages_total",
		Help: "The total number of frames received on streams.",
	}, []string{"kind"})
	StreamMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_stream_messages_dropped_total",
		Help: "The total number of frames discarded without a store update.",
	}, []string{"kind", "reason"})
	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_stream_errors_total",
		Help: "The total number of error events observed on streams.",
	}, []string{"kind"})
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termsync_subscriptions_active",
		Help: "The current number of per-terminal subscriptions.",
	})
	RosterReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_roster_reconnects_scheduled_total",
		Help: "The total number of roster stream reconnects scheduled.",
	})

	// Store metrics
	RosterReplacements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_roster_replacements_total",
		Help: "The total number of full roster replacements.",
	})
	RosterSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termsync_roster_terminals",
		Help: "The number of terminals in the local roster.",
	})
	ContentUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_content_updates_total",
		Help: "The total number of content snapshot replacements.",
	}, []string{"origin"})

	// Request metrics
	RequestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_request_failures_total",
		Help: "The total number of failed request/response calls.",
	}, []string{"op"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
