package monitor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scan"
)

const namespace = "ivscan"

// NewPrometheusRegistry returns a registry with the Go runtime and process
// collectors.
func NewPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func counter(c *atomic.Uint64) func() float64 {
	return func() float64 { return float64(c.Load()) }
}

// RegisterScanMetrics exports controller counters.
func RegisterScanMetrics(reg prometheus.Registerer, m *scan.Metrics) error {
	cs := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "runs_total",
			Help: "Number of scan runs started.",
		}, counter(&m.RunCount)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "stages_total",
			Help: "Number of ramp stages completed.",
		}, counter(&m.StageCount)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "readings_total",
			Help: "Number of sensor readings taken.",
		}, counter(&m.ReadingCount)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "aborts_total",
			Help: "Number of aborted runs.",
		}, counter(&m.AbortCount)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "sink_errors_total",
			Help: "Number of failed sink calls.",
		}, counter(&m.SinkErrCount)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "running",
			Help: "Number of runs in progress.",
		}, func() float64 { return float64(m.RunningGauge.Load()) }),
	}

	return register(reg, cs)
}

// RegisterMessengerMetrics exports the counters of the messenger of one
// instrument role.
func RegisterMessengerMetrics(reg prometheus.Registerer, role string, m *messenger.Metrics) error {
	labels := prometheus.Labels{"role": role}
	newCounter := func(name, help string, c *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: name, Help: help, ConstLabels: labels,
		}, counter(c))
	}

	cs := []prometheus.Collector{
		newCounter("commands_total", "Number of commands written.", &m.CommandSendCount),
		newCounter("fetches_total", "Number of query round trips.", &m.FetchCount),
		newCounter("written_bytes_total", "Number of bytes written.", &m.BytesWritten),
		newCounter("read_bytes_total", "Number of bytes read.", &m.BytesRead),
		newCounter("send_errors_total", "Number of failed writes.", &m.SendErrCount),
		newCounter("read_errors_total", "Number of failed reads.", &m.ReadErrCount),
		newCounter("decode_errors_total", "Number of answers that failed to decode.", &m.DecodeErrCount),
	}

	return register(reg, cs)
}

// RegisterRegistryMetrics exports the number of registered and active runs.
func RegisterRegistryMetrics(reg prometheus.Registerer, r *Registry) error {
	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "runs",
			Help: "Number of registered runs.",
		}, func() float64 { return float64(r.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "active_runs",
			Help: "Number of registered runs not finished.",
		}, func() float64 { return float64(r.Active()) }),
	}

	return register(reg, cs)
}

func register(reg prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
