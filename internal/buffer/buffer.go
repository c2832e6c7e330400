// Package buffer implements the buffer health monitor: tracks buffered
// [start, end) ranges, derives gap/stalled state, and publishes it on a
// reactive stream; the controller hands it to the chooser on every Tick.
// It also scores a rolling stall rate
// over a trailing window of health ticks.
package buffer

import (
	"sort"
	"time"

	"github.com/jilles-sg/rx-player/internal/model"
	"github.com/jilles-sg/rx-player/internal/stream"
)

// StallReason classifies why playback is stalled.
type StallReason string

const (
	ReasonNone      StallReason = ""
	ReasonBuffering StallReason = "buffering"
	ReasonSeeking   StallReason = "seeking"
)

// Health is the derived signal consumed by the chooser and the controller.
type Health struct {
	Gap         float64
	Stalled     bool
	StallReason StallReason
	StalledFor  time.Duration
}

const stallGapThresholdSeconds = 0.5

// Monitor owns the set of buffered ranges and the platform waiting/playing
// signal, and derives Health on every mutation.
type Monitor struct {
	ranges []model.BufferedRange
	bus    *stream.Bus[Health]

	waiting      bool // platform reported waiting/stalled with no playing since
	wantsToPlay  bool // true once play has been requested and hasn't been paused/stopped
	seeking      bool
	stallSince   time.Time
	now          func() time.Time
	stallWindow  []bool // trailing samples for the stall-rate score
	stallWinSize int
}

// NewMonitor creates an empty Monitor. now defaults to time.Now; tests may
// inject a deterministic clock.
func NewMonitor(now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	m := &Monitor{bus: stream.New[Health](), now: now, stallWinSize: 50}
	m.bus.Publish(Health{})
	return m
}

// Subscribe registers ch for every future Health change.
func (m *Monitor) Subscribe(ch chan Health) *stream.Subscription {
	return m.bus.Subscribe(ch)
}

// Ranges returns a copy of the currently buffered ranges.
func (m *Monitor) Ranges() []model.BufferedRange {
	out := make([]model.BufferedRange, len(m.ranges))
	copy(out, m.ranges)
	return out
}

// Append merges [start, end) into the buffered ranges, keeping them
// sorted, non-overlapping, and non-touching.
func (m *Monitor) Append(start, end float64) {
	if end <= start {
		return
	}
	m.ranges = append(m.ranges, model.BufferedRange{Start: start, End: end})
	m.ranges = coalesce(m.ranges)
}

// Remove clears [start, end) from the buffered ranges, splitting or
// trimming overlapping ranges as needed.
func (m *Monitor) Remove(start, end float64) {
	if end <= start {
		return
	}
	var out []model.BufferedRange
	for _, r := range m.ranges {
		if end <= r.Start || start >= r.End {
			out = append(out, r)
			continue
		}
		if start > r.Start {
			out = append(out, model.BufferedRange{Start: r.Start, End: start})
		}
		if end < r.End {
			out = append(out, model.BufferedRange{Start: end, End: r.End})
		}
	}
	m.ranges = out
}

func coalesce(ranges []model.BufferedRange) []model.BufferedRange {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := ranges[:0:0]
	for _, r := range ranges {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// gapAt returns the distance from position to the end of the contiguous
// range containing it, or 0 if position is outside every range.
func gapAt(ranges []model.BufferedRange, position float64) float64 {
	for _, r := range ranges {
		if position >= r.Start && position < r.End {
			return r.End - position
		}
	}
	return 0
}

// SetPlatformWaiting records a platform waiting/stalled (true) or playing
// (false) event.
func (m *Monitor) SetPlatformWaiting(waiting bool) {
	if waiting && !m.waiting {
		m.stallSince = m.now()
	}
	m.waiting = waiting
}

// SetSeeking records whether the stall (if any) is due to a seek.
func (m *Monitor) SetSeeking(seeking bool) {
	m.seeking = seeking
}

// SetWantsToPlay records whether playback has been requested (true after
// NotifyPlay, false after NotifyPause or while stopped). A thin buffered
// gap only counts as a stall while something actually intends to play;
// a paused session with little buffer isn't stalled, it's just paused.
func (m *Monitor) SetWantsToPlay(wantsToPlay bool) {
	m.wantsToPlay = wantsToPlay
}

// Evaluate recomputes Health at currentPosition and publishes it.
func (m *Monitor) Evaluate(currentPosition float64) Health {
	gap := gapAt(m.ranges, currentPosition)
	stalledByGap := m.wantsToPlay && gap < stallGapThresholdSeconds
	stalled := m.waiting || stalledByGap

	var reason StallReason
	var stalledFor time.Duration
	if stalled {
		reason = ReasonBuffering
		if m.seeking {
			reason = ReasonSeeking
		}
		if m.stallSince.IsZero() {
			m.stallSince = m.now()
		}
		stalledFor = m.now().Sub(m.stallSince)
	} else {
		m.stallSince = time.Time{}
	}

	m.pushStallSample(stalled)

	h := Health{Gap: gap, Stalled: stalled, StallReason: reason, StalledFor: stalledFor}
	m.bus.Publish(h)
	return h
}

func (m *Monitor) pushStallSample(stalled bool) {
	m.stallWindow = append(m.stallWindow, stalled)
	if len(m.stallWindow) > m.stallWinSize {
		m.stallWindow = m.stallWindow[len(m.stallWindow)-m.stallWinSize:]
	}
}

// StallRateScore returns the fraction of trailing Evaluate calls that were
// stalled. Purely observational; it never feeds back into chooser
// selection.
func (m *Monitor) StallRateScore() float64 {
	if len(m.stallWindow) == 0 {
		return 0
	}
	n := 0
	for _, s := range m.stallWindow {
		if s {
			n++
		}
	}
	return float64(n) / float64(len(m.stallWindow))
}
