// Package metrics exposes Prometheus instrumentation for the enrollment
// service: boot reports by outcome, completed enrollments, storage errors,
// and per-device stability diagnostics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bootReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puf",
		Name:      "boot_reports_total",
		Help:      "Boot reports processed, labelled by enrollment event.",
	}, []string{"event"})

	enrollmentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "puf",
		Name:      "enrollments_completed_total",
		Help:      "Enrollments that reached the complete state.",
	})

	storageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "puf",
		Name:      "storage_errors_total",
		Help:      "Storage corruption and failed-persist events.",
	})

	stableBitRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "puf",
		Name:      "stable_bit_ratio",
		Help:      "Fraction of PUF bits classified stable at finalization.",
	}, []string{"device"})
)

// RecordBootReport counts one processed boot report.
func RecordBootReport(event string) {
	bootReports.WithLabelValues(event).Inc()
}

// RecordEnrollmentComplete counts a finished enrollment and records the
// device's stability diagnostic.
func RecordEnrollmentComplete(device string, stableBits, totalBits int) {
	enrollmentsCompleted.Inc()
	if totalBits > 0 {
		stableBitRatio.WithLabelValues(device).Set(float64(stableBits) / float64(totalBits))
	}
}

// RecordStorageError counts a storage corruption or failed persist.
func RecordStorageError() {
	storageErrors.Inc()
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
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
