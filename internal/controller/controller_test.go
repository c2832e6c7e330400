package controller

import (
	"context"
	"testing"
	"time"

	"github.com/jilles-sg/rx-player/internal/buffer"
	"github.com/jilles-sg/rx-player/internal/chooser"
	"github.com/jilles-sg/rx-player/internal/estimator"
	"github.com/jilles-sg/rx-player/internal/model"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	est := estimator.New(estimator.DefaultConfig(), nil)
	buf := buffer.NewMonitor(time.Now)
	videoChooser := chooser.New(model.TrackVideo, nil)

	c := New(Config{
		Estimator: est,
		Choosers:  map[model.TrackType]*chooser.Chooser{model.TrackVideo: videoChooser},
		Buffer:    buf,
	})
	return c
}

func TestController_StopFromStoppedIsNoOp(t *testing.T) {
	c := newTestController(t)
	if c.State() != StateStopped {
		t.Fatalf("expected initial state STOPPED, got %s", c.State())
	}
	c.Stop()
	if c.State() != StateStopped {
		t.Fatalf("expected STOPPED after no-op stop, got %s", c.State())
	}
}

func TestController_LoadTransitionsToLoading(t *testing.T) {
	c := newTestController(t)
	if err := c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"}); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateLoading {
		t.Fatalf("expected LOADING, got %s", c.State())
	}
}

func TestController_FullLifecycle(t *testing.T) {
	c := newTestController(t)

	if err := c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"}); err != nil {
		t.Fatal(err)
	}
	c.NotifyFirstFrameDecoded()
	if c.State() != StateLoaded {
		t.Fatalf("expected LOADED, got %s", c.State())
	}

	c.NotifyPlay()
	if c.State() != StatePlaying {
		t.Fatalf("expected PLAYING, got %s", c.State())
	}

	c.NotifyStalled(true, buffer.ReasonBuffering)
	if c.State() != StateBuffering {
		t.Fatalf("expected BUFFERING, got %s", c.State())
	}

	c.NotifyStalled(false, buffer.ReasonNone)
	if c.State() != StatePlaying {
		t.Fatalf("expected PLAYING after stall clears, got %s", c.State())
	}

	c.NotifyPause()
	if c.State() != StatePaused {
		t.Fatalf("expected PAUSED, got %s", c.State())
	}

	c.NotifyEndOfStream()
	if c.State() != StateEnded {
		t.Fatalf("expected ENDED, got %s", c.State())
	}
}

func TestController_SeekingTransition(t *testing.T) {
	c := newTestController(t)
	c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"})
	c.NotifyFirstFrameDecoded()
	c.NotifyPlay()

	pos := 42.0
	if err := c.SeekTo(SeekTarget{Position: &pos}); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateSeeking {
		t.Fatalf("expected SEEKING, got %s", c.State())
	}

	c.NotifyStalled(false, buffer.ReasonNone)
	if c.State() != StatePlaying {
		t.Fatalf("expected PLAYING after seek resolves, got %s", c.State())
	}
}

func TestController_SeekToRequiresOneField(t *testing.T) {
	c := newTestController(t)
	if err := c.SeekTo(SeekTarget{}); err == nil {
		t.Fatal("expected error for seek target with no field set")
	}
}

func TestController_FatalErrorStopsAndStoresError(t *testing.T) {
	c := newTestController(t)
	c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"})

	boom := context.DeadlineExceeded
	c.NotifyFatalError(boom)

	if c.State() != StateStopped {
		t.Fatalf("expected STOPPED after fatal error, got %s", c.State())
	}
	if c.GetError() != boom {
		t.Fatalf("expected stored error %v, got %v", boom, c.GetError())
	}
}

func TestController_DisposeIsIdempotent(t *testing.T) {
	c := newTestController(t)
	c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"})
	c.Dispose()
	c.Dispose() // must not panic

	if err := c.LoadContent(context.Background(), LoadOptions{URL: "http://example/manifest.mpd"}); err == nil {
		t.Fatal("expected error loading into a disposed controller")
	}
}

func TestController_TickProducesNoSelectionWithoutAdaptations(t *testing.T) {
	c := newTestController(t)
	selections := c.Tick(0)
	if len(selections) != 0 {
		t.Fatalf("expected no selections before any adaptation is registered, got %d", len(selections))
	}
}

func TestController_TickSelectsFromRegisteredAdaptation(t *testing.T) {
	c := newTestController(t)
	adaptation, err := model.NewAdaptation(model.TrackVideo, "en", []model.Representation{
		{ID: "lo", Bitrate: 500_000},
		{ID: "hi", Bitrate: 4_000_000},
	})
	if err != nil {
		t.Fatal(err)
	}
	c.WithAdaptations(map[model.TrackType]*model.Adaptation{model.TrackVideo: adaptation})

	selections := c.Tick(0)
	sel, ok := selections[model.TrackVideo]
	if !ok {
		t.Fatal("expected a video selection")
	}
	if sel.Representation.ID != "lo" {
		t.Fatalf("expected the lowest representation with an undefined estimate, got %s", sel.Representation.ID)
	}
}

func TestController_SetVideoBitrateAppliesOnNextTick(t *testing.T) {
	c := newTestController(t)
	adaptation, err := model.NewAdaptation(model.TrackVideo, "en", []model.Representation{
		{ID: "lo", Bitrate: 500_000},
		{ID: "hi", Bitrate: 4_000_000},
	})
	if err != nil {
		t.Fatal(err)
	}
	c.WithAdaptations(map[model.TrackType]*model.Adaptation{model.TrackVideo: adaptation})
	c.SetVideoBitrate(4_000_000)

	sel := c.Tick(0)[model.TrackVideo]
	if sel.Representation.ID != "hi" {
		t.Fatalf("expected manual pin to select hi, got %s", sel.Representation.ID)
	}
}
