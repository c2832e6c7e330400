package chooser

import (
	"math"
	"testing"
	"time"

	"github.com/jilles-sg/rx-player/internal/buffer"
	"github.com/jilles-sg/rx-player/internal/model"
)

func mustAdaptation(t *testing.T, bitrates ...int64) *model.Adaptation {
	t.Helper()
	reps := make([]model.Representation, len(bitrates))
	for i, b := range bitrates {
		reps[i] = model.Representation{ID: idFor(b), Bitrate: b}
	}
	a, err := model.NewAdaptation(model.TrackVideo, "", reps)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func idFor(b int64) string {
	switch b {
	case 500_000:
		return "500k"
	case 1_000_000:
		return "1M"
	case 2_000_000:
		return "2M"
	case 5_000_000:
		return "5M"
	}
	return "rep"
}

func baseInputs(a *model.Adaptation) Inputs {
	return Inputs{
		Adaptation:      a,
		EstimateDefined: true,
		MaxBitrate:      math.Inf(1),
		LimitWidth:      math.Inf(1),
		ThrottleBitrate: math.Inf(1),
	}
}

func TestChooser_MonotoneDownshift(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000, 5_000_000)
	c := New(model.TrackVideo, nil)

	in := baseInputs(a)
	in.Estimate = 600_000
	sel := c.Select(in)
	if sel.Representation.Bitrate != 500_000 {
		t.Fatalf("expected 500k selection for 600kbps estimate, got %d", sel.Representation.Bitrate)
	}
}

func TestChooser_Hysteresis(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000, 5_000_000)
	c := New(model.TrackVideo, nil)

	// Seed current selection at 2M via manual pin, then clear pin.
	in := baseInputs(a)
	in.ManualBitrate = 2_000_000
	c.Select(in)

	caps := []float64{2_200_000, 1_900_000, 2_200_000, 1_900_000}
	for _, capVal := range caps {
		in := baseInputs(a)
		in.Estimate = capVal / safetyFactor
		sel := c.Select(in)
		if sel.Representation.Bitrate != 2_000_000 {
			t.Fatalf("expected selection to stay at 2M under cap %v, got %d", capVal, sel.Representation.Bitrate)
		}
	}
}

func TestChooser_ManualPinOverridesCap(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000, 5_000_000)
	c := New(model.TrackVideo, nil)

	in := baseInputs(a)
	in.Estimate = 400_000
	in.ManualBitrate = 5_000_000
	sel := c.Select(in)
	if sel.Representation.Bitrate != 5_000_000 {
		t.Fatalf("expected manual pin 5M regardless of low estimate, got %d", sel.Representation.Bitrate)
	}
}

func TestChooser_BufferStallForcesLowest(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000, 5_000_000)
	c := New(model.TrackVideo, nil)

	in := baseInputs(a)
	in.ManualBitrate = 5_000_000
	c.Select(in)

	in2 := baseInputs(a)
	in2.Estimate = 5_000_000
	in2.Buffer = buffer.Health{Stalled: true, StalledFor: 3100 * time.Millisecond}
	sel := c.Select(in2)
	if sel.Representation.Bitrate != 500_000 {
		t.Fatalf("expected forced lowest bitrate on sustained stall, got %d", sel.Representation.Bitrate)
	}
}

func TestChooser_ImageTrackAlwaysLowest(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000)
	c := New(model.TrackImage, nil)
	in := baseInputs(a)
	in.Estimate = 10_000_000
	sel := c.Select(in)
	if sel.Representation.Bitrate != 500_000 {
		t.Fatalf("expected image track to always pick lowest, got %d", sel.Representation.Bitrate)
	}
}

func TestChooser_WidthFiltersVideo(t *testing.T) {
	reps := []model.Representation{
		{ID: "low", Bitrate: 500_000, Width: 640},
		{ID: "hd", Bitrate: 5_000_000, Width: 1920},
	}
	a, err := model.NewAdaptation(model.TrackVideo, "", reps)
	if err != nil {
		t.Fatal(err)
	}
	c := New(model.TrackVideo, nil)
	in := baseInputs(a)
	in.Estimate = 10_000_000
	in.LimitWidth = 800
	sel := c.Select(in)
	if sel.Representation.ID != "low" {
		t.Fatalf("expected width-filtered selection to exclude HD, got %s", sel.Representation.ID)
	}
}

func TestChooser_RoundTripManualPin(t *testing.T) {
	a := mustAdaptation(t, 500_000, 1_000_000, 2_000_000, 5_000_000)
	for _, b := range []int64{500_000, 1_000_000, 2_000_000, 5_000_000} {
		c := New(model.TrackVideo, nil)
		in := baseInputs(a)
		in.ManualBitrate = b
		sel := c.Select(in)
		if sel.Representation.Bitrate != b {
			t.Fatalf("round-trip failed for pin %d: got %d", b, sel.Representation.Bitrate)
		}
	}
}
