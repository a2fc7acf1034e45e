package telemetry

import (
	"testing"

	"github.com/roboajay/gravity-compensation/compliance"
)

func TestRingWraps(t *testing.T) {
	rg := newRing(3)
	if _, ok := rg.Head(); ok {
		t.Error("empty ring should have no head")
	}
	for i := 1; i <= 5; i++ {
		rg.Append(compliance.Observation{Tick: uint64(i)})
	}
	head, _ := rg.Head()
	if head.Tick != 5 {
		t.Errorf("expected head tick 5, got %d", head.Tick)
	}
	all := rg.Contiguous()
	if len(all) != 3 || all[0].Tick != 3 || all[1].Tick != 4 || all[2].Tick != 5 {
		t.Errorf("expected ticks 3 4 5, got %+v", all)
	}
	// the copy must not alias the buffer
	all[0].Tick = 99
	if rg.Contiguous()[0].Tick != 3 {
		t.Error("Contiguous aliases the ring")
	}
}

func TestRecorderOrdersAndAddsChannels(t *testing.T) {
	rec := NewRecorder(2, 2, 1)
	rec.Observe(compliance.Observation{ID: 1, Tick: 1})
	rec.Observe(compliance.Observation{ID: 7, Tick: 1})
	ids := rec.IDs()
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 1 || ids[2] != 7 {
		t.Errorf("expected ids 2 1 7, got %v", ids)
	}
	if _, ok := rec.Latest(2); ok {
		t.Error("channel 2 has not been observed")
	}
	if h, ok := rec.History(2); !ok || len(h) != 0 {
		t.Errorf("expected empty history for channel 2, got %v %v", h, ok)
	}
	if _, ok := rec.History(9); ok {
		t.Error("channel 9 is unknown")
	}
	if rec.Ticks() != 1 {
		t.Errorf("expected 1 tick, got %d", rec.Ticks())
	}
}

func TestRecorderDefaultCapacity(t *testing.T) {
	rec := NewRecorder(0, 1)
	for i := 0; i < DefaultCapacity+10; i++ {
		rec.Observe(compliance.Observation{ID: 1, Tick: uint64(i + 1)})
	}
	h, _ := rec.History(1)
	if len(h) != DefaultCapacity || h[0].Tick != 11 {
		t.Errorf("expected %d observations starting at tick 11, got %d from %d", DefaultCapacity, len(h), h[0].Tick)
	}
}
