package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels checks that completed, including the benign
	// zero-record and zero-window paths.
	OutcomeSuccess = "success"
	// OutcomeError labels checks that failed and left the watermark untouched.
	OutcomeError = "error"
)

const (
	// AlertSent labels alert documents accepted by the sink.
	AlertSent = "sent"
	// AlertFailed labels individual alert writes rejected by the sink.
	AlertFailed = "failed"
	// AlertSuppressed labels alerts skipped by the dedupe key.
	AlertSuppressed = "suppressed"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "checks_total",
			Help:      "Total number of monitoring checks run, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	checkDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pulse_monitor",
			Name:      "check_seconds",
			Help:      "Check latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	recordsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "records_fetched_total",
			Help:      "Raw log records fetched from the store.",
		},
	)

	recordsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "records_rejected_total",
			Help:      "Records dropped by the normalizer (unparseable timestamps).",
		},
	)

	featureWindowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "feature_windows_total",
			Help:      "Feature windows computed across all checks.",
		},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "anomalies_total",
			Help:      "Windows flagged anomalous by the scoring model.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_monitor",
			Name:      "alerts_total",
			Help:      "Alert dispatch attempts, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches pulse-monitor collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		checksTotal,
		checkDurationSeconds,
		recordsFetchedTotal,
		recordsRejectedTotal,
		featureWindowsTotal,
		anomaliesTotal,
		alertsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCheck records a check duration and outcome label.
func ObserveCheck(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	checksTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	checkDurationSeconds.Observe(duration.Seconds())
}

// CountRecords tracks fetched and rejected record volumes for one check.
func CountRecords(fetched, rejected int) {
	if fetched > 0 {
		recordsFetchedTotal.Add(float64(fetched))
	}
	if rejected > 0 {
		recordsRejectedTotal.Add(float64(rejected))
	}
}

// CountWindows tracks computed windows and flagged anomalies for one check.
func CountWindows(windows, anomalies int) {
	if windows > 0 {
		featureWindowsTotal.Add(float64(windows))
	}
	if anomalies > 0 {
		anomaliesTotal.Add(float64(anomalies))
	}
}

// CountAlert increments the alert counter for a dispatch result.
func CountAlert(result string) {
	alertsTotal.WithLabelValues(result).Inc()
}
