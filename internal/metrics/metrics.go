// Package metrics exposes estimator/chooser/pipeline/buffer state as
// Prometheus gauges and HDR histograms. It is purely observational: nothing
// here feeds back into representation selection.
package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Bus collects the metrics surface for one player instance.
type Bus struct {
	registry prometheus.Registerer

	bandwidthEstimate prometheus.Gauge
	bufferGapSeconds  prometheus.Gauge
	stallRate         prometheus.Gauge
	retryTotal        prometheus.Counter
	representationSwitches *prometheus.CounterVec

	mu              sync.Mutex
	segmentDuration *hdrhistogram.Histogram // microseconds, 1us..30s
	bandwidthHist   *hdrhistogram.Histogram // bits/s, 1bps..10Gbps
}

// New builds a Bus and registers its collectors with reg. A nil reg uses
// prometheus.NewRegistry() (not the global default registry, so tests don't
// collide with other Bus instances).
func New(reg prometheus.Registerer) *Bus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	b := &Bus{
		registry: reg,
		bandwidthEstimate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxplayer_bandwidth_estimate_bps",
			Help: "Current bandwidth estimate in bits per second.",
		}),
		bufferGapSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxplayer_buffer_gap_seconds",
			Help: "Seconds of buffer ahead of the current playback position.",
		}),
		stallRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxplayer_stall_rate",
			Help: "Fraction of trailing buffer-health ticks observed stalled.",
		}),
		retryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxplayer_segment_retries_total",
			Help: "Total number of segment fetch retries.",
		}),
		representationSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxplayer_representation_switches_total",
			Help: "Total number of representation switches, by track type.",
		}, []string{"track_type"}),
		segmentDuration: hdrhistogram.New(1, 30_000_000, 3),
		bandwidthHist:   hdrhistogram.New(1, 10_000_000_000, 3),
	}

	reg.MustRegister(
		b.bandwidthEstimate,
		b.bufferGapSeconds,
		b.stallRate,
		b.retryTotal,
		b.representationSwitches,
	)

	return b
}

// SetBandwidthEstimate records the estimator's current output.
func (b *Bus) SetBandwidthEstimate(bps float64) {
	b.bandwidthEstimate.Set(bps)
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bandwidthHist.RecordValue(int64(bps))
}

// SetBufferGap records the buffer health monitor's current gap.
func (b *Bus) SetBufferGap(seconds float64) {
	b.bufferGapSeconds.Set(seconds)
}

// SetStallRate records the buffer health monitor's rolling stall-rate score.
func (b *Bus) SetStallRate(rate float64) {
	b.stallRate.Set(rate)
}

// IncRetry counts one segment fetch retry.
func (b *Bus) IncRetry() {
	b.retryTotal.Inc()
}

// IncRepresentationSwitch counts one representation change for trackType.
func (b *Bus) IncRepresentationSwitch(trackType string) {
	b.representationSwitches.WithLabelValues(trackType).Inc()
}

// ObserveSegmentDuration records a completed segment fetch's duration in
// microseconds into the HDR histogram.
func (b *Bus) ObserveSegmentDuration(durationMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.segmentDuration.RecordValue(int64(durationMs * 1000))
}

// SegmentDurationPercentileMs returns the p-th percentile (0-100) segment
// duration in milliseconds.
func (b *Bus) SegmentDurationPercentileMs(p float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.segmentDuration.ValueAtQuantile(p)) / 1000
}

// BandwidthPercentileBps returns the p-th percentile (0-100) observed
// bandwidth in bits/s.
func (b *Bus) BandwidthPercentileBps(p float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.bandwidthHist.ValueAtQuantile(p))
}
