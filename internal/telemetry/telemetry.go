package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/iptvrun/pkg/api"
)

// Collector records the metrics of a single run. Scheduled runs exit right away, so the
// metrics are written to a node_exporter textfile instead of being served.
type Collector struct {
	reg       *prometheus.Registry
	results   *prometheus.CounterVec
	durations *prometheus.GaugeVec
	preflight prometheus.Gauge
	lastRun   prometheus.Gauge
	runTime   prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvrun_task_results_total",
			Help: "Task outcomes by task and status.",
		}, []string{"task", "status"}),
		durations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iptvrun_task_duration_seconds",
			Help: "Wall time of the last attempt of each task.",
		}, []string{"task"}),
		preflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iptvrun_preflight_success",
			Help: "1 when the last preflight passed, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iptvrun_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		runTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iptvrun_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	c.reg.MustRegister(c.results, c.durations, c.preflight, c.lastRun, c.runTime)
	return c
}

// RecordTask records a finished task.
func (c *Collector) RecordTask(res api.TaskResult) {
	if c == nil {
		return
	}
	c.results.WithLabelValues(res.Task, string(res.Status)).Inc()
	c.durations.WithLabelValues(res.Task).Set(res.Duration.Seconds())
}

// RecordPreflight records the preflight outcome.
func (c *Collector) RecordPreflight(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.preflight.Set(1)
	} else {
		c.preflight.Set(0)
	}
}

// RecordRun records run-level timing once the report is complete.
func (c *Collector) RecordRun(rep api.RunReport) {
	if c == nil {
		return
	}
	finished := rep.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	c.lastRun.Set(float64(finished.Unix()))
	c.runTime.Set(finished.Sub(rep.StartedAt).Seconds())
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Flush writes the metrics to path in the Prometheus text format. With no path the
// metrics are only logged.
func (c *Collector) Flush(path string) error {
	if c == nil {
		return nil
	}
	if path == "" {
		families, err := c.reg.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		for _, mf := range families {
			log.Debug().Str("name", mf.GetName()).Int("series", len(mf.GetMetric())).Msg("telemetry_metric")
		}
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	log.Debug().Str("path", path).Msg("metrics written")
	return nil
}
