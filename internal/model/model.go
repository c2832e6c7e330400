// Package model defines the data types shared by every ABR component:
// representations, adaptations, samples and buffered ranges.
package model

import "fmt"

// TrackType enumerates the kinds of tracks a manifest can carry.
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
	TrackText  TrackType = "text"
	TrackImage TrackType = "image"
)

// Representation is one specific encoding of a track: a stable id, a bitrate
// in bits per second, and optional video dimensions/codec. Immutable after
// manifest load.
type Representation struct {
	ID      string
	Bitrate int64 // bits/s, > 0
	Width   int   // 0 if not applicable
	Height  int   // 0 if not applicable
	Codec   string
}

// Adaptation is an ordered set of representations for one (trackType,
// language) pair. Representations are sorted by ascending bitrate and the
// invariant "strictly ascending and unique" is enforced by NewAdaptation.
type Adaptation struct {
	TrackType       TrackType
	Language        string
	Representations []Representation
}

// NewAdaptation sorts reps by bitrate and validates that bitrates are
// strictly ascending and unique.
func NewAdaptation(trackType TrackType, language string, reps []Representation) (*Adaptation, error) {
	sorted := make([]Representation, len(reps))
	copy(sorted, reps)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Bitrate > sorted[j].Bitrate; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Bitrate <= sorted[i-1].Bitrate {
			return nil, fmt.Errorf("model: duplicate or non-ascending bitrate %d in adaptation %s/%s", sorted[i].Bitrate, trackType, language)
		}
	}
	return &Adaptation{TrackType: trackType, Language: language, Representations: sorted}, nil
}

// Lowest returns the lowest-bitrate representation, or false if the
// adaptation is empty.
func (a *Adaptation) Lowest() (Representation, bool) {
	if len(a.Representations) == 0 {
		return Representation{}, false
	}
	return a.Representations[0], true
}

// Highest returns the highest-bitrate representation, or false if the
// adaptation is empty.
func (a *Adaptation) Highest() (Representation, bool) {
	if len(a.Representations) == 0 {
		return Representation{}, false
	}
	return a.Representations[len(a.Representations)-1], true
}

// Sample is one (duration, bytes, isChunk) measurement emitted by the
// segment pipeline for every completed request.
type Sample struct {
	DurationMs float64
	Bytes      int64
	IsChunk    bool
}

// BandwidthBps returns bytes converted to bits/s over DurationMs.
func (s Sample) BandwidthBps() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	return float64(s.Bytes) * 8000 / s.DurationMs
}

// BufferedRange is a half-open [Start, End) interval in seconds.
type BufferedRange struct {
	Start float64
	End   float64
}
