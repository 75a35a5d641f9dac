// Package metrics holds the process-wide Prometheus collectors. The tool host
// has no HTTP listener, so collected values are written to a node-exporter
// textfile instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const namespace = "pharmref"

var (
	// Engine metrics
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of regimen analyses",
		},
		[]string{"hepatic_stage", "renal_stage"},
	)

	alertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Total number of triggered alerts",
		},
		[]string{"rule_id", "level"},
	)

	// Tool host metrics
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool call duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"tool"},
	)

	// Storage metrics
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"tier", "result"},
	)

	sessionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_fallbacks_total",
			Help:      "Session operations served from memory because the remote store was unavailable",
		},
	)
)

// RecordAnalysis records one analysis and the alerts it triggered.
func RecordAnalysis(hepaticStage, renalStage string, alerts map[string]string) {
	analysesTotal.WithLabelValues(hepaticStage, renalStage).Inc()
	for ruleID, level := range alerts {
		alertsTriggered.WithLabelValues(ruleID, level).Inc()
	}
}

// RecordToolCall records a tool invocation.
func RecordToolCall(tool string, err error, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status(err)).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordStoreOperation records a store call.
func RecordStoreOperation(backend, operation string, err error) {
	storeOperations.WithLabelValues(backend, operation, status(err)).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordSessionFallback records a session operation served from memory.
func RecordSessionFallback() {
	sessionFallbacks.Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// WriteTextfile writes every registered metric to path in the text
// exposition format.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Exporter periodically flushes metrics to a textfile.
type Exporter struct {
	path     string
	interval time.Duration
	logger   *logrus.Logger
}

// NewExporter creates an exporter. An interval of zero defaults to 15s.
func NewExporter(path string, interval time.Duration, logger *logrus.Logger) *Exporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Exporter{path: path, interval: interval, logger: logger}
}

// Run writes the textfile every interval until ctx is cancelled, then
// writes it once more.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flush()
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *Exporter) flush() {
	if err := WriteTextfile(e.path); err != nil {
		e.logger.WithError(err).WithField("path", e.path).Warn("Metrics export failed")
	}
}
