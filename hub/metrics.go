package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the hub's prometheus instrumentation, served by
// cmd/adchubd/cmd/serve.go on the :2112 convention from
// hub/hub_irc.go's cntConnIRC-style counters (SPEC_FULL.md Section A.5).
// Each Hub gets its own registry so that multiple hubs (tests, or a
// future multi-tenant process) never collide on metric names.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal prometheus.Counter
	ConnectionsOpen  prometheus.Gauge
	LoginsTotal      prometheus.Counter
	LoginFailures    prometheus.Counter
	ChatMessages     prometheus.Counter
	BroadcastBytes   prometheus.Counter // registered, but nothing increments it
	SessionsActive   prometheus.Gauge
	PluginPanics     prometheus.Counter
}

// NewMetrics constructs and registers a fresh metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "connections_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adchub", Name: "connections_open",
			Help: "Currently open TCP connections, pre- or post-login.",
		}),
		LoginsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "logins_total",
			Help: "Total successful client logins.",
		}),
		LoginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "login_failures_total",
			Help: "Total logins rejected (bad password, CID busy, ban).",
		}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "chat_messages_total",
			Help: "Total chat (MSG) lines broadcast or relayed.",
		}),
		BroadcastBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "broadcast_bytes_total",
			Help: "Total bytes fanned out by roster broadcasts.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adchub", Name: "sessions_active",
			Help: "Currently logged-in (NORMAL state) sessions.",
		}),
		PluginPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub", Name: "plugin_panics_total",
			Help: "Plugin event handlers that panicked and were recovered.",
		}),
	}
	reg.MustRegister(
		m.ConnectionsTotal, m.ConnectionsOpen, m.LoginsTotal, m.LoginFailures,
		m.ChatMessages, m.BroadcastBytes, m.SessionsActive, m.PluginPanics,
	)
	return m
}
