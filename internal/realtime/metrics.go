package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	linkReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_link_reconnects_total",
			Help: "Total forced reconnects triggered by the health probe.",
		},
	)
	linkEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_link_events_total",
			Help: "Total change events accepted by the realtime link.",
		},
	)
	linkEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_link_events_dropped_total",
			Help: "Events discarded at the link boundary.",
		},
		[]string{"reason"},
	)
	linkDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_link_degraded_total",
			Help: "Times a link exhausted its reconnect attempts.",
		},
	)
)

func init() {
	prometheus.MustRegister(linkReconnects, linkEvents, linkEventsDropped, linkDegraded)
}

func dropEvent(reason string) {
	linkEventsDropped.WithLabelValues(reason).Inc()
}
