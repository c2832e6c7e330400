// Package device models the device-event source: viewport width and
// visibility changes, published on a stream.Bus so the chooser can
// subscribe reactively.
package device

import "github.com/jilles-sg/rx-player/internal/stream"

// Visibility mirrors the platform's document visibility state.
type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "hidden"
)

// State is the current device snapshot the chooser reacts to.
type State struct {
	ViewportWidth int // device pixels; 0 means "unknown" (callers treat as unlimited)
	Visibility    Visibility
}

// Source emits device State changes on a bus. It holds no polling logic of
// its own — platform adapters (browser DOM listeners, or in this module's
// demo CLI, a one-time read of the terminal width at startup) call
// SetViewportWidth/SetVisibility.
type Source struct {
	bus   *stream.Bus[State]
	state State
}

// NewSource creates a Source seeded with an initial state (visible, no
// known viewport width).
func NewSource() *Source {
	s := &Source{
		bus:   stream.New[State](),
		state: State{ViewportWidth: 0, Visibility: Visible},
	}
	s.bus.Publish(s.state)
	return s
}

// Subscribe registers ch for every future State change, delivering the
// current state immediately.
func (s *Source) Subscribe(ch chan State) *stream.Subscription {
	return s.bus.Subscribe(ch)
}

// Current returns the last published state.
func (s *Source) Current() State {
	if v, ok := s.bus.Last(); ok {
		return v
	}
	return s.state
}

// SetViewportWidth publishes a viewport-width change.
func (s *Source) SetViewportWidth(width int) {
	s.state.ViewportWidth = width
	s.bus.Publish(s.state)
}

// SetVisibility publishes a visibility change.
func (s *Source) SetVisibility(v Visibility) {
	s.state.Visibility = v
	s.bus.Publish(s.state)
}
