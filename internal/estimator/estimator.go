// Package estimator implements the two-timescale bandwidth estimator: a
// fast/slow EWMA pair plus a 3-sample chunk filter for low-latency
// (chunked-transfer) streaming.
package estimator

import (
	"go.uber.org/zap"

	"github.com/jilles-sg/rx-player/internal/ewma"
	"github.com/jilles-sg/rx-player/internal/model"
)

const chunkRingSize = 3

// Config enumerates the estimator's tunables.
type Config struct {
	FastHalfLifeSeconds float64
	SlowHalfLifeSeconds float64
	MinTotalBytes       int64
	MinChunkBytes       int64
	LowLatencyMode      bool
}

// DefaultConfig returns the standard fast ~2s / slow ~10s half-life pair.
func DefaultConfig() Config {
	return Config{
		FastHalfLifeSeconds: 2,
		SlowHalfLifeSeconds: 10,
		MinTotalBytes:       0,
		MinChunkBytes:       0,
		LowLatencyMode:      false,
	}
}

// Estimator tracks bandwidth from a stream of per-request samples.
type Estimator struct {
	cfg  Config
	log  *zap.Logger
	fast *ewma.EWMA
	slow *ewma.EWMA

	bytesSampled int64
	chunkRing    []float64 // oldest first, len <= chunkRingSize
}

// New builds an Estimator with the given config. A nil logger is replaced
// with zap.NewNop().
func New(cfg Config, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{
		cfg:  cfg,
		log:  log,
		fast: ewma.New(cfg.FastHalfLifeSeconds),
		slow: ewma.New(cfg.SlowHalfLifeSeconds),
	}
}

// chunkRingMean returns the mean of the chunk ring, or false if it holds
// fewer than chunkRingSize entries.
func (e *Estimator) chunkRingMean() (float64, bool) {
	if len(e.chunkRing) < chunkRingSize {
		return 0, false
	}
	sum := 0.0
	for _, v := range e.chunkRing {
		sum += v
	}
	return sum / float64(len(e.chunkRing)), true
}

func (e *Estimator) pushChunk(bw float64) {
	e.chunkRing = append(e.chunkRing, bw)
	if len(e.chunkRing) > chunkRingSize {
		e.chunkRing = e.chunkRing[len(e.chunkRing)-chunkRingSize:]
	}
}

// AddSample folds a (durationMs, bytes, isChunk) observation from the
// pipeline into the estimator.
func (e *Estimator) AddSample(durationMs float64, bytes int64, isChunk bool) {
	if durationMs <= 0 {
		return
	}
	bw := float64(bytes) * 8000 / durationMs

	if isChunk && e.cfg.LowLatencyMode {
		if last, ok := e.chunkRingMean(); ok && last*0.8 < bw && bw <= last {
			e.log.Debug("estimator: rejecting paced chunk sample",
				zap.Float64("bw_bps", bw), zap.Float64("ring_mean_bps", last))
			return
		}
		e.pushChunk(bw)
	}

	if bytes < e.cfg.MinChunkBytes {
		return
	}

	e.bytesSampled += bytes
	weight := durationMs / 1000
	e.fast.AddSample(weight, bw)
	e.slow.AddSample(weight, bw)

	e.log.Debug("estimator: sample applied",
		zap.Float64("bw_bps", bw), zap.Int64("bytes", bytes), zap.Bool("is_chunk", isChunk))
}

// AddMeasuredSample is a convenience wrapper over AddSample taking a model.Sample.
func (e *Estimator) AddMeasuredSample(s model.Sample) {
	e.AddSample(s.DurationMs, s.Bytes, s.IsChunk)
}

// Estimate returns the current bandwidth estimate in bits/s, per §4.2's
// getEstimate(serverMayLimit). serverMayLimit should be true for ordinary
// media segment requests.
func (e *Estimator) Estimate(serverMayLimit bool) (float64, bool) {
	var regular float64
	var regularOK bool
	if e.bytesSampled >= e.cfg.MinTotalBytes {
		fastEst, fastOK := e.fast.Estimate()
		slowEst, slowOK := e.slow.Estimate()
		switch {
		case fastOK && slowOK:
			regular, regularOK = min(fastEst, slowEst), true
		case fastOK:
			regular, regularOK = fastEst, true
		case slowOK:
			regular, regularOK = slowEst, true
		}
	}

	if !e.cfg.LowLatencyMode || !serverMayLimit {
		return regular, regularOK
	}

	lowLat, lowLatOK := e.chunkRingMean()
	switch {
	case regularOK && lowLatOK:
		return max(regular, lowLat), true
	case regularOK:
		return regular, true
	case lowLatOK:
		return lowLat, true
	default:
		return 0, false
	}
}

// Reset rebuilds both EWMAs, zeroes bytesSampled, and clears the chunk ring,
// so that after a stop bandwidth estimation starts fresh rather than
// carrying over samples from the previous session.
func (e *Estimator) Reset() {
	e.fast = ewma.New(e.cfg.FastHalfLifeSeconds)
	e.slow = ewma.New(e.cfg.SlowHalfLifeSeconds)
	e.bytesSampled = 0
	e.chunkRing = nil
}

// BytesSampled returns the cumulative byte count folded into the estimator.
func (e *Estimator) BytesSampled() int64 {
	return e.bytesSampled
}
