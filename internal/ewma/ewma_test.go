package ewma

import "testing"

func TestEWMA_NoSampleUndefined(t *testing.T) {
	e := New(2)
	if _, ok := e.Estimate(); ok {
		t.Fatal("expected undefined estimate before any sample")
	}
}

func TestEWMA_BoundedByMinMax(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"constant", []float64{500, 500, 500}},
		{"rising", []float64{100, 200, 300, 900}},
		{"falling", []float64{900, 300, 200, 100}},
		{"mixed", []float64{500, 100, 900, 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(2)
			min, max := tt.values[0], tt.values[0]
			for _, v := range tt.values {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
				e.AddSample(1, v)
			}
			got, ok := e.Estimate()
			if !ok {
				t.Fatal("expected defined estimate")
			}
			if got < min-1e-6 || got > max+1e-6 {
				t.Fatalf("estimate %v out of bounds [%v, %v]", got, min, max)
			}
		})
	}
}

func TestEWMA_ZeroWeightDoesNotChangeEstimate(t *testing.T) {
	e := New(2)
	e.AddSample(1, 500)
	before, _ := e.Estimate()
	e.AddSample(0, 999999)
	after, _ := e.Estimate()
	if before != after {
		t.Fatalf("zero-weight sample changed estimate: %v -> %v", before, after)
	}
}

func TestEWMA_Reset(t *testing.T) {
	e := New(2)
	e.AddSample(1, 500)
	e.Reset()
	if _, ok := e.Estimate(); ok {
		t.Fatal("expected undefined estimate after reset")
	}
	if e.TotalWeight() != 0 {
		t.Fatalf("expected zero total weight after reset, got %v", e.TotalWeight())
	}
}
