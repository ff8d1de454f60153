package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyfate"

var (
	// RemindersSent counts reminders delivered to a channel.
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_sent_total",
		Help:      "Reminders successfully delivered.",
	})

	// RemindersFailed counts reminders that exhausted their delivery
	// attempts.
	RemindersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_failed_total",
		Help:      "Reminders that permanently failed delivery.",
	})

	// RemindersCancelled counts reminders cancelled at dispatch time.
	RemindersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_cancelled_total",
		Help:      "Reminders cancelled because their secret left the active state.",
	})

	// CheckInsRecorded counts successful token redemptions.
	CheckInsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_recorded_total",
		Help:      "Check-in tokens successfully redeemed.",
	})

	// SecretsTriggered counts secrets that passed their deadline.
	SecretsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "secrets_triggered_total",
		Help:      "Secrets transitioned to triggered after a missed check-in.",
	})

	// DispatchBatches counts dispatcher batch iterations.
	DispatchBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_batches_total",
		Help:      "Batches of due reminders processed.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener,
// kept off the public API address.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen
// address.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
