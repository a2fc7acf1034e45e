package register

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestDecodeSignedWord(t *testing.T) {
	r := Register{Addr: 126, Width: Word, Signed: true}
	if v := r.Decode(0xFFFB); v != -5 {
		t.Errorf("expected -5, got %d", v)
	}
	r.Signed = false
	if v := r.Decode(0xFFFB); v != 65531 {
		t.Errorf("expected 65531, got %d", v)
	}
}

func TestEncodeMasksToWidth(t *testing.T) {
	r := Register{Addr: 30, Width: Word}
	if raw := r.Encode(-1); raw != 0xFFFF {
		t.Errorf("expected 0xFFFF, got 0x%X", raw)
	}
	r.Width = Byte
	if raw := r.Encode(257); raw != 1 {
		t.Errorf("expected 1, got %d", raw)
	}
}

func TestMXSeriesValidates(t *testing.T) {
	if err := MXSeries.Validate(); err != nil {
		t.Fatal(err)
	}
	m := MXSeries
	m.Current.Width = 3
	if err := m.Validate(); err == nil {
		t.Error("expected width 3 to be rejected")
	}
}

func TestIsFatalSeesThroughWrapping(t *testing.T) {
	err := errors.Wrap(&CommFailure{Op: "read", ID: 1, Fatal: true, Err: io.ErrClosedPipe}, "tick")
	if !IsFatal(err) {
		t.Error("expected wrapped fatal comm failure to be fatal")
	}
	if IsFatal(&CommFailure{Op: "read", ID: 1, Err: io.EOF}) {
		t.Error("timeout flagged fatal")
	}
	if IsFatal(&DeviceError{ID: 1, Code: 0x20}) {
		t.Error("device error flagged fatal")
	}
}

func TestIsDeviceError(t *testing.T) {
	err := fmt.Errorf("present position: %w", &DeviceError{ID: 2, Code: 0x04, Faults: []string{"overheating"}})
	if !IsDeviceError(err) {
		t.Error("expected wrapped device error to be detected")
	}
	if IsDeviceError(io.EOF) {
		t.Error("io.EOF is not a device error")
	}
}

func TestRange(t *testing.T) {
	cases := []struct {
		r        Register
		min, max float64
	}{
		{Register{Width: Byte}, 0, 255},
		{Register{Width: Word}, 0, 65535},
		{Register{Width: Word, Signed: true}, -32768, 32767},
		{Register{Width: Long, Signed: true}, -2147483648, 2147483647},
	}
	for _, c := range cases {
		rng := c.r.Range()
		if rng.Min != c.min || rng.Max != c.max {
			t.Errorf("%+v: expected [%v, %v], got %+v", c.r, c.min, c.max, rng)
		}
	}
	if MXSeries.GoalPosition.Range().Check(-26) {
		t.Error("a negative goal cannot be encoded in an unsigned word")
	}
}
