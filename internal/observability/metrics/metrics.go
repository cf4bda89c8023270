package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "watergrid_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	readingsTotal  prometheus.Counter
	bufferSize     prometheus.Gauge
	flushTotal     *prometheus.CounterVec
	flushLatency   *prometheus.HistogramVec
	flushedRecords prometheus.Counter

	evalCycles       *prometheus.CounterVec
	evalLatency      prometheus.Histogram
	alarmEventsTotal *prometheus.CounterVec
	activeAlarms     prometheus.Gauge
)

// Init registers the edge server metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total telemetry readings received",
			},
		)
		bufferSize = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "historian_buffer_size",
				Help: "Records currently buffered by the historian",
			},
		)
		flushTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "historian_flush_total",
				Help: "Total historian flush attempts by result",
			},
			[]string{"result"},
		)
		flushLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "historian_flush_latency_seconds",
				Help:    "Historian flush latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		flushedRecords = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "historian_flushed_records_total",
				Help: "Total records written by successful flushes",
			},
		)

		evalCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_eval_cycles_total",
				Help: "Total alarm evaluation cycles by result",
			},
			[]string{"result"},
		)
		evalLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alarm_eval_latency_seconds",
				Help:    "Alarm evaluation cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		activeAlarms = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alarms",
				Help: "Alarms currently open in the active index",
			},
		)

		prometheus.MustRegister(
			readingsTotal,
			bufferSize,
			flushTotal,
			flushLatency,
			flushedRecords,
			evalCycles,
			evalLatency,
			alarmEventsTotal,
			activeAlarms,
		)
	})
}

// IncReading counts one received telemetry reading.
func IncReading() {
	if readingsTotal != nil {
		readingsTotal.Inc()
	}
}

// SetBufferSize records the historian queue length.
func SetBufferSize(size int) {
	if bufferSize != nil {
		bufferSize.Set(float64(size))
	}
}

// ObserveFlush records a flush attempt with its duration and result.
func ObserveFlush(result string, duration time.Duration, records int) {
	if result == "" {
		result = resultSuccess
	}
	if flushTotal != nil {
		flushTotal.WithLabelValues(result).Inc()
	}
	if flushLatency != nil {
		flushLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if result == resultSuccess && flushedRecords != nil {
		flushedRecords.Add(float64(records))
	}
}

// ObserveEvalCycle records an evaluation cycle with its duration and result.
func ObserveEvalCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if evalCycles != nil {
		evalCycles.WithLabelValues(result).Inc()
	}
	if evalLatency != nil {
		evalLatency.Observe(duration.Seconds())
	}
}

// IncAlarmEvent increments alarm lifecycle counters.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// SetActiveAlarms records the active index size.
func SetActiveAlarms(count int) {
	if activeAlarms != nil {
		activeAlarms.Set(float64(count))
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
