package reconcile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// runGauges are exported for the node exporter textfile collector after
// every run.
type runGauges struct {
	lastRun  prometheus.Gauge
	duration prometheus.Gauge
	success  prometheus.Gauge
	reported prometheus.Gauge
	status   *prometheus.GaugeVec
}

func newRunGauges(reg prometheus.Registerer) *runGauges {
	factory := promauto.With(reg)
	return &runGauges{
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opentune_last_run_timestamp_seconds",
			Help: "Unix time the last reconciliation run finished",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opentune_last_run_duration_seconds",
			Help: "Wall-clock duration of the last reconciliation run",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opentune_last_run_success",
			Help: "1 if the last run did not fail, 0 otherwise",
		}),
		reported: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opentune_last_run_reported",
			Help: "1 if the last run outcome reached the control plane",
		}),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opentune_last_run_status",
			Help: "Status of the last run, one series per status",
		}, []string{"status", "mode"}),
	}
}

func (g *runGauges) observe(res *RunResult) {
	g.lastRun.Set(float64(res.FinishedAt.Unix()))
	g.duration.Set(res.Elapsed().Seconds())
	g.success.Set(boolValue(res.Status != StatusFailed))
	g.reported.Set(boolValue(res.Reported))
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusSkipped} {
		g.status.WithLabelValues(string(s), string(res.Mode)).Set(boolValue(res.Status == s))
	}
}

// WriteMetrics writes the gauges for res to path in the Prometheus text
// format.
func WriteMetrics(path string, res *RunResult) error {
	reg := prometheus.NewRegistry()
	newRunGauges(reg).observe(res)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
