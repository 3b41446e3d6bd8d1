package sinks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/openrice-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors. Batch runs
// open no listening port, so collectors are usually written to a textfile for
// node_exporter once the run completes (see WriteTextfile).
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runDuration   prometheus.Histogram
	lastRecords   prometheus.Gauge

	targets        *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
	records        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	markupBytes    *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openrice_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openrice_runs_completed_total",
			Help: "Total crawl runs that have completed.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openrice_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		lastRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "openrice_last_run_records",
			Help: "Records accumulated by the most recent run.",
		}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrice_targets_total",
			Help: "District targets processed partitioned by result.",
		}, []string{"result"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openrice_target_duration_seconds",
			Help:    "Fetch and parse time per district partitioned by result.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrice_records_total",
			Help: "Listing records accumulated per district.",
		}, []string{"district"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrice_dropped_containers_total",
			Help: "Listing containers that produced no record, per district.",
		}, []string{"district"}),
		markupBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrice_markup_bytes_total",
			Help: "Rendered markup bytes per district.",
		}, []string{"district"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.lastRecords,
		s.targets,
		s.targetDuration,
		s.records,
		s.dropped,
		s.markupBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		s.lastRecords.Set(float64(evt.Records))
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageTargetDone:
		result := "success"
		if evt.Records == 0 {
			result = "empty"
		}
		s.observeTarget(evt, result)
	case progress.StageTargetError:
		s.observeTarget(evt, "error")
	}
}

func (s *PrometheusSink) observeTarget(evt progress.Event, result string) {
	s.targets.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.targetDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	district := evt.District
	if district == "" {
		district = "unknown"
	}
	if evt.Records > 0 {
		s.records.WithLabelValues(district).Add(float64(evt.Records))
	}
	if evt.Dropped > 0 {
		s.dropped.WithLabelValues(district).Add(float64(evt.Dropped))
	}
	if evt.Bytes > 0 {
		s.markupBytes.WithLabelValues(district).Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, creating parent directories as needed.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
