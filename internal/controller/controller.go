// Package controller owns the player state machine and is the single
// embedding-facing API surface: it wires together the bandwidth estimator,
// per-track-type choosers, segment pipelines, buffer monitor, and device
// source into one coordinated session.
package controller

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/jilles-sg/rx-player/internal/buffer"
	"github.com/jilles-sg/rx-player/internal/chooser"
	"github.com/jilles-sg/rx-player/internal/device"
	"github.com/jilles-sg/rx-player/internal/estimator"
	"github.com/jilles-sg/rx-player/internal/metrics"
	"github.com/jilles-sg/rx-player/internal/model"
	"github.com/jilles-sg/rx-player/internal/pipeline"
)

// State is one of the player's lifecycle states.
type State string

const (
	StateStopped   State = "STOPPED"
	StateLoading   State = "LOADING"
	StateLoaded    State = "LOADED"
	StatePlaying   State = "PLAYING"
	StatePaused    State = "PAUSED"
	StateBuffering State = "BUFFERING"
	StateSeeking   State = "SEEKING"
	StateEnded     State = "ENDED"
)

// StallReason mirrors buffer.StallReason for the controller's own transition
// logic, decoupling the controller's public surface from the buffer
// package's internals.
type StallReason = buffer.StallReason

// LoadOptions configures one loadContent call.
type LoadOptions struct {
	URL                      string
	Transport                string // "http" or "http3"
	KeySystems               []string
	StartAt                  float64
	AutoPlay                 bool
	DefaultAudioTrack        string
	DefaultTextTrack         string
	SupplementaryTextTracks  []string
	SupplementaryImageTracks []string
	LowLatencyMode           bool
}

// SeekTarget identifies exactly one seek mode: an absolute position, a
// delta from the current position, or a live-edge wall-clock time.
type SeekTarget struct {
	Position      *float64
	Relative      *float64
	WallClockTime *float64
}

// pendingSettings holds the values of the setter calls, in any state
// (including STOPPED, so setters before a load are not lost). Every Tick
// reads them.
type pendingSettings struct {
	maxVideoBitrate   float64
	maxAudioBitrate   float64
	videoBitrate      int64
	audioBitrate      int64
	wantedBufferAhead float64
	maxBufferAhead    float64
	maxBufferBehind   float64
}

// Controller is one player session. Exactly one instance should drive one
// piece of content at a time; create a new Controller per embedding
// instance rather than reusing a disposed one.
type Controller struct {
	log     *zap.Logger
	metrics *metrics.Bus

	mu       sync.Mutex
	state    State
	lastErr  error
	disposed bool

	estimator *estimator.Estimator
	choosers  map[model.TrackType]*chooser.Chooser
	pipelines map[model.TrackType]*pipeline.Pipeline
	buffer      *buffer.Monitor
	device      *device.Source
	adaptations map[model.TrackType]*model.Adaptation

	cancelLoad context.CancelFunc

	pending pendingSettings
}

// Config wires the collaborators a Controller coordinates. Callers build
// one estimator, one chooser and pipeline per active track type, a buffer
// monitor, and a device source, then hand them to New.
type Config struct {
	Log        *zap.Logger
	Metrics    *metrics.Bus
	Estimator  *estimator.Estimator
	Choosers   map[model.TrackType]*chooser.Chooser
	Pipelines  map[model.TrackType]*pipeline.Pipeline
	Buffer     *buffer.Monitor
	Device     *device.Source
}

// New builds a Controller in the STOPPED state.
func New(cfg Config) *Controller {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Controller{
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		state:     StateStopped,
		estimator: cfg.Estimator,
		choosers:  cfg.Choosers,
		pipelines: cfg.Pipelines,
		buffer:    cfg.Buffer,
		device:    cfg.Device,
		pending:   pendingSettings{maxVideoBitrate: math.Inf(1), maxAudioBitrate: math.Inf(1)},
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetError returns the stored fatal error, if any, since the last load.
func (c *Controller) GetError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// GetEstimate returns the current bandwidth estimate in bits/s, or false if
// undefined (insufficient samples observed).
func (c *Controller) GetEstimate() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estimator == nil {
		return 0, false
	}
	return c.estimator.Estimate(false)
}

// LoadContent transitions to LOADING, first cancelling the load context of
// any prior load. That context is not handed to any pipeline, so segment
// loads started with another context are not cancelled by it. Pending
// setters are not touched here; Tick reads them.
func (c *Controller) LoadContent(ctx context.Context, opts LoadOptions) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("controller: disposed")
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.state = StateLoading
	c.lastErr = nil
	c.log.Info("controller: load started", zap.String("url", opts.URL))
	c.mu.Unlock()

	_ = loadCtx // consumed by manifest/segment loading orchestration, out of core scope
	return nil
}

// NotifyFirstFrameDecoded transitions LOADING → LOADED, per the controller's
// first-frame-decoded transition.
func (c *Controller) NotifyFirstFrameDecoded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoading {
		c.setStateLocked(StateLoaded)
	}
}

// NotifyPlay transitions LOADED/PAUSED → PLAYING on external play input.
func (c *Controller) NotifyPlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer != nil {
		c.buffer.SetWantsToPlay(true)
	}
	if c.state == StateLoaded || c.state == StatePaused {
		c.setStateLocked(StatePlaying)
	}
}

// NotifyPause transitions PLAYING → PAUSED on external pause input.
func (c *Controller) NotifyPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer != nil {
		c.buffer.SetWantsToPlay(false)
	}
	if c.state == StatePlaying {
		c.setStateLocked(StatePaused)
	}
}

// NotifyStalled reflects a platform waiting/stalled or resumed event into
// the state machine: LOADED/PLAYING/PAUSED ↔ BUFFERING when stalled for a
// reason other than seeking, or ↔ SEEKING when stalled for a seek.
func (c *Controller) NotifyStalled(stalled bool, reason StallReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer != nil {
		c.buffer.SetPlatformWaiting(stalled)
		c.buffer.SetSeeking(reason == buffer.ReasonSeeking)
	}

	if !stalled {
		if c.state == StateBuffering || c.state == StateSeeking {
			c.setStateLocked(StatePlaying)
		}
		return
	}

	if reason == buffer.ReasonSeeking {
		c.setStateLocked(StateSeeking)
	} else if c.state == StateLoaded || c.state == StatePlaying || c.state == StatePaused {
		c.setStateLocked(StateBuffering)
	}
}

// NotifyEndOfStream transitions to ENDED when the pipeline signals
// end-of-stream, from any state.
func (c *Controller) NotifyEndOfStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(StateEnded)
}

// NotifyFatalError stores err and transitions to STOPPED from any state, per
// the error-handling design's "retry budget exhausted or fatal" policy.
func (c *Controller) NotifyFatalError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	c.log.Error("controller: fatal error, stopping", zap.Error(err))
	c.stopLocked()
}

// Stop transitions to STOPPED from any state, cancelling the load context
// created by LoadContent, evicting the pipelines' init caches and resetting
// the estimator. Segment loads and retries started with another context are
// not cancelled. A no-op (idempotent) when already STOPPED.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return
	}
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	for _, p := range c.pipelines {
		p.EvictInitCache()
	}
	if c.estimator != nil {
		c.estimator.Reset()
	}
	if c.buffer != nil {
		c.buffer.SetWantsToPlay(false)
	}
	c.setStateLocked(StateStopped)
}

// Dispose performs final cleanup; the Controller is unusable afterward.
// Calling Dispose more than once is a no-op.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	if c.state != StateStopped {
		c.stopLocked()
	}
	c.disposed = true
}

// SetMaxVideoBitrate sets the video bitrate ceiling; math.Inf(1) uncaps it.
// The value is stored in any state, including STOPPED, and used by the next
// Tick.
func (c *Controller) SetMaxVideoBitrate(bps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.maxVideoBitrate = bps
}

// SetMaxAudioBitrate sets the audio bitrate ceiling; math.Inf(1) uncaps it.
func (c *Controller) SetMaxAudioBitrate(bps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.maxAudioBitrate = bps
}

// SetVideoBitrate pins the video representation to the closest match for
// bps; 0 reverts to automatic selection.
func (c *Controller) SetVideoBitrate(bps int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.videoBitrate = bps
}

// SetAudioBitrate pins the audio representation; 0 reverts to automatic
// selection.
func (c *Controller) SetAudioBitrate(bps int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.audioBitrate = bps
}

// SetWantedBufferAhead sets the target buffer-ahead duration in seconds.
func (c *Controller) SetWantedBufferAhead(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.wantedBufferAhead = seconds
}

// SetMaxBufferAhead sets the maximum buffer-ahead duration in seconds.
func (c *Controller) SetMaxBufferAhead(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.maxBufferAhead = seconds
}

// SetMaxBufferBehind sets the maximum buffer-behind duration in seconds.
func (c *Controller) SetMaxBufferBehind(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.maxBufferBehind = seconds
}

// SeekTo transitions toward SEEKING. Exactly one field of target must be
// set.
func (c *Controller) SeekTo(target SeekTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target.Position == nil && target.Relative == nil && target.WallClockTime == nil {
		return fmt.Errorf("controller: seekTo requires exactly one of position, relative, wallClockTime")
	}
	if c.buffer != nil {
		c.buffer.SetSeeking(true)
	}
	c.setStateLocked(StateSeeking)
	return nil
}

// Tick runs one selection pass: evaluates buffer health and re-runs the
// chooser for every active track type against the current estimate and
// pending settings. Call this once per reactive-input change (new sample,
// buffer update, device change) rather than on a fixed timer.
func (c *Controller) Tick(position float64) map[model.TrackType]chooser.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[model.TrackType]chooser.Selection, len(c.choosers))
	if c.estimator == nil || c.buffer == nil {
		return out
	}

	health := c.buffer.Evaluate(position)
	if c.metrics != nil {
		c.metrics.SetBufferGap(health.Gap)
		c.metrics.SetStallRate(c.buffer.StallRateScore())
	}

	estimate, defined := c.estimator.Estimate(true)
	if c.metrics != nil && defined {
		c.metrics.SetBandwidthEstimate(estimate)
	}

	limitWidth := math.Inf(1)
	throttle := math.Inf(1)
	if c.device != nil {
		st := c.device.Current()
		if st.ViewportWidth > 0 {
			limitWidth = float64(st.ViewportWidth)
		}
		if st.Visibility == device.Hidden {
			throttle = 0
		}
	}

	for trackType, ch := range c.choosers {
		adaptation := c.adaptationFor(trackType)
		if adaptation == nil {
			continue
		}
		maxBitrate := math.Inf(1)
		var manual int64
		switch trackType {
		case model.TrackVideo:
			maxBitrate = c.pending.maxVideoBitrate
			manual = c.pending.videoBitrate
		case model.TrackAudio:
			maxBitrate = c.pending.maxAudioBitrate
			manual = c.pending.audioBitrate
		}
		sel := ch.Select(chooser.Inputs{
			Adaptation:      adaptation,
			Estimate:        estimate,
			EstimateDefined: defined,
			ManualBitrate:   manual,
			MaxBitrate:      maxBitrate,
			LimitWidth:      limitWidth,
			ThrottleBitrate: throttle,
			Buffer:          health,
		})
		if sel.Changed && c.metrics != nil {
			c.metrics.IncRepresentationSwitch(string(trackType))
		}
		out[trackType] = sel
	}
	return out
}

// adaptationFor looks up the current manifest's adaptation set for
// trackType, as registered via WithAdaptations. Manifest parsing itself is
// out of core scope; nil here makes Tick a no-op for that track type.
func (c *Controller) adaptationFor(trackType model.TrackType) *model.Adaptation {
	return c.adaptations[trackType]
}

// WithAdaptations registers the current manifest's adaptation sets, keyed
// by track type, for use by Tick.
func (c *Controller) WithAdaptations(adaptations map[model.TrackType]*model.Adaptation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adaptations = adaptations
}

func (c *Controller) setStateLocked(next State) {
	if next == c.state {
		return
	}
	c.log.Info("controller: state transition", zap.String("from", string(c.state)), zap.String("to", string(next)))
	c.state = next
}
