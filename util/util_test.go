package util_test

import (
	"fmt"
	"testing"

	"github.com/roboajay/gravity-compensation/util"
)

func ExampleLimiter_Clamp() {
	l := util.Limiter{Min: 285, Max: 3810}
	fmt.Println(l.Clamp(100), l.Clamp(2048), l.Clamp(4000))
	// Output: 285 2048 3810
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestLimiterCheck(t *testing.T) {
	l := util.Limiter{Min: 0, Max: 4095}
	for _, f := range []float64{0, 2048, 4095} {
		if !l.Check(f) {
			t.Errorf("expected %f to be within %+v", f, l)
		}
	}
	for _, f := range []float64{-1, 4096} {
		if l.Check(f) {
			t.Errorf("expected %f to violate %+v", f, l)
		}
	}
}

func TestLimiterValid(t *testing.T) {
	if (util.Limiter{Min: 10, Max: 5}).Valid() {
		t.Error("inverted limits should not be valid")
	}
}
