package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the work of index builds. A nil *Metrics records nothing.
type Metrics struct {
	stations        prometheus.Counter
	files           prometheus.Counter
	fileErrors      *prometheus.CounterVec
	warnings        prometheus.Counter
	checkpointHits  prometheus.Counter
	stationDuration prometheus.Histogram
	lastBuild       prometheus.Gauge
}

// NewMetrics creates the build metrics and registers them with reg. A nil
// reg registers with the default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ismn_stations_scanned_total",
			Help: "Station folders scanned.",
		}),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ismn_files_indexed_total",
			Help: "Sensor files added to an index.",
		}),
		fileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ismn_file_errors_total",
			Help: "Sensor files excluded from an index, by error kind.",
		}, []string{"kind"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ismn_station_warnings_total",
			Help: "Station folders with a missing, ambiguous or unreadable attribute file.",
		}),
		checkpointHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ismn_checkpoint_hits_total",
			Help: "Station scans replaced by a stored checkpoint.",
		}),
		stationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ismn_station_scan_seconds",
			Help:    "Wall time of one station scan.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		lastBuild: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ismn_last_build_seconds",
			Help: "Wall time of the last completed build.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.stations, m.files, m.fileErrors, m.warnings, m.checkpointHits, m.stationDuration, m.lastBuild,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStation records one finished station scan.
func (m *Metrics) ObserveStation(d time.Duration, files, warnings int, errorKinds []string) {
	if m == nil {
		return
	}
	m.stations.Inc()
	m.files.Add(float64(files))
	m.warnings.Add(float64(warnings))
	for _, k := range errorKinds {
		m.fileErrors.WithLabelValues(k).Inc()
	}
	m.stationDuration.Observe(d.Seconds())
}

// CheckpointHit records a station served from a checkpoint.
func (m *Metrics) CheckpointHit() {
	if m == nil {
		return
	}
	m.checkpointHits.Inc()
}

// ObserveBuild records the wall time of a completed build.
func (m *Metrics) ObserveBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.lastBuild.Set(d.Seconds())
}
