// Package chooser implements the representation chooser: a per-track-type
// reactive selector combining the bandwidth estimate, user-imposed
// ceilings, device state, manual pin, and buffer-health fallback, with
// hysteresis to prevent oscillation.
package chooser

import (
	"math"

	"go.uber.org/zap"

	"github.com/jilles-sg/rx-player/internal/buffer"
	"github.com/jilles-sg/rx-player/internal/model"
)

const (
	safetyFactor           = 0.95
	hysteresisDownFactor   = 0.7
	hysteresisUpFactor     = 1.15
	stallForceFloorSeconds = 3.0
)

// Inputs is the full set of reactive inputs the chooser considers.
type Inputs struct {
	Adaptation      *model.Adaptation
	Estimate        float64
	EstimateDefined bool
	ManualBitrate   int64 // 0 = auto
	MaxBitrate      float64
	LimitWidth      float64 // video only; math.Inf(1) for unlimited
	ThrottleBitrate float64 // video only; math.Inf(1) when visible
	Buffer          buffer.Health
}

// Selection is the chooser's output for one track type.
type Selection struct {
	Representation model.Representation
	Changed        bool
}

// Chooser holds the per-track-type current selection needed for hysteresis.
type Chooser struct {
	trackType model.TrackType
	log       *zap.Logger
	current   *model.Representation
}

// New builds a Chooser for one track type. A nil logger is replaced with
// zap.NewNop().
func New(trackType model.TrackType, log *zap.Logger) *Chooser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chooser{trackType: trackType, log: log}
}

// Current returns the current selection, if any.
func (c *Chooser) Current() (model.Representation, bool) {
	if c.current == nil {
		return model.Representation{}, false
	}
	return *c.current, true
}

// Select runs the selection algorithm for one tick and returns the
// (possibly unchanged) selection.
func (c *Chooser) Select(in Inputs) Selection {
	if in.Adaptation == nil || len(in.Adaptation.Representations) == 0 {
		return Selection{}
	}

	if c.trackType == model.TrackImage {
		// Thumbnail/image tracks never need more than the lowest rendition.
		lowest, _ := in.Adaptation.Lowest()
		return c.apply(lowest)
	}

	if in.ManualBitrate > 0 {
		candidate := pickManual(in.Adaptation.Representations, in.ManualBitrate)
		return c.apply(candidate)
	}

	capBps := capOf(in)
	filtered := filterByWidth(in.Adaptation.Representations, in.LimitWidth, c.trackType)
	if len(filtered) == 0 {
		filtered = in.Adaptation.Representations
	}
	candidate := pickUnderCap(filtered, capBps)

	if in.Buffer.Stalled && in.Buffer.StalledFor.Seconds() > stallForceFloorSeconds {
		lowest := filtered[0]
		c.log.Info("chooser: forcing lowest bitrate due to sustained stall",
			zap.String("track_type", string(c.trackType)),
			zap.Float64("stalled_for_s", in.Buffer.StalledFor.Seconds()))
		return c.apply(lowest)
	}

	if c.current != nil {
		candidate = c.applyHysteresis(capBps, candidate)
	}

	return c.apply(candidate)
}

func pickManual(reps []model.Representation, manual int64) model.Representation {
	best := reps[0]
	for _, r := range reps {
		if r.Bitrate <= manual && r.Bitrate > best.Bitrate {
			best = r
		}
	}
	if best.Bitrate > manual {
		// No representation <= manual: fall back to the lowest (reps[0]).
		return reps[0]
	}
	return best
}

func capOf(in Inputs) float64 {
	// An undefined estimate leaves no bandwidth to spend: nothing fits the
	// cap, so the lowest representation is picked.
	capBps := 0.0
	if in.EstimateDefined {
		capBps = in.Estimate * safetyFactor
	}
	capBps = math.Min(capBps, in.MaxBitrate)
	capBps = math.Min(capBps, in.ThrottleBitrate)
	return capBps
}

func filterByWidth(reps []model.Representation, limitWidth float64, trackType model.TrackType) []model.Representation {
	if trackType != model.TrackVideo || math.IsInf(limitWidth, 1) {
		return reps
	}
	var out []model.Representation
	for _, r := range reps {
		if float64(r.Width) <= limitWidth {
			out = append(out, r)
		}
	}
	return out
}

func pickUnderCap(reps []model.Representation, capBps float64) model.Representation {
	best := reps[0]
	found := false
	for _, r := range reps {
		if float64(r.Bitrate) <= capBps {
			if !found || r.Bitrate > best.Bitrate {
				best = r
				found = true
			}
		}
	}
	if !found {
		return reps[0]
	}
	return best
}

// applyHysteresis resists switching down until the cap clearly can't sustain
// the current bitrate, and resists switching up until the cap comfortably
// clears the candidate, preventing rapid oscillation near a threshold.
func (c *Chooser) applyHysteresis(capBps float64, candidate model.Representation) model.Representation {
	current := *c.current
	switch {
	case candidate.Bitrate < current.Bitrate:
		if capBps < float64(current.Bitrate)*hysteresisDownFactor {
			return candidate
		}
		return current
	case candidate.Bitrate > current.Bitrate:
		if capBps >= float64(candidate.Bitrate)*hysteresisUpFactor {
			return candidate
		}
		return current
	default:
		return candidate
	}
}

func (c *Chooser) apply(candidate model.Representation) Selection {
	changed := c.current == nil || c.current.ID != candidate.ID
	if changed {
		c.log.Info("chooser: representation changed",
			zap.String("track_type", string(c.trackType)),
			zap.String("representation_id", candidate.ID),
			zap.Int64("bitrate", candidate.Bitrate))
	}
	rep := candidate
	c.current = &rep
	return Selection{Representation: candidate, Changed: changed}
}
