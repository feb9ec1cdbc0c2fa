package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	// ChannelGauge reports the number of open underlying channels.
	ChannelGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_open_channels",
		Help: "Current number of open realtime channels",
	})
	// AttachCounter tracks the number of consumer attaches.
	AttachCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_attach_total",
		Help: "Total number of consumer attaches",
	})
	// DeliveryCounter tracks callback event deliveries.
	DeliveryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_delivered_total",
		Help: "Total number of events delivered to attached callbacks",
	})
)

// RegisterMetrics registers the realtime metrics on the provided registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ChannelGauge, AttachCounter, DeliveryCounter)
}
