/*Package telemetry retains recent compliance loop observations and serves
them over HTTP.

A Recorder is a compliance.Observer that keeps the latest N observations of
every channel in a ring buffer.  HTTPWrapper exposes it:

	GET /channels              ids in control order
	GET /channel/{id}/latest   most recent observation
	GET /channel/{id}/history  retained observations, oldest first
	GET /ticks                 {"int": ticks observed}
*/
package telemetry

import (
	"sync"

	"github.com/roboajay/gravity-compensation/compliance"
)

// DefaultCapacity is the number of observations kept per channel when none
// is given
const DefaultCapacity = 256

// ring is a fixed size buffer of observations.  It is not concurrent safe.
type ring struct {
	buf    []compliance.Observation
	cursor int
	filled bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]compliance.Observation, size)}
}

// Append adds an observation, overwriting the oldest if full
func (r *ring) Append(o compliance.Observation) {
	if r.cursor == len(r.buf) {
		r.cursor = 0
		r.filled = true
	}
	r.buf[r.cursor] = o
	r.cursor++
}

// Head returns the most recent observation, false if the buffer is empty
func (r *ring) Head() (compliance.Observation, bool) {
	if r.cursor == 0 && !r.filled {
		return compliance.Observation{}, false
	}
	return r.buf[r.cursor-1], true
}

// Contiguous copies out the observations from least to most recent
func (r *ring) Contiguous() []compliance.Observation {
	if !r.filled {
		return append([]compliance.Observation{}, r.buf[:r.cursor]...)
	}
	out := make([]compliance.Observation, 0, len(r.buf))
	out = append(out, r.buf[r.cursor:]...)
	return append(out, r.buf[:r.cursor]...)
}

// Recorder keeps the most recent observations of every channel.  It is safe
// for concurrent use.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	ids      []uint8
	rings    map[uint8]*ring
	ticks    uint64
}

// NewRecorder returns a Recorder keeping capacity observations per channel.
// ids fixes the reported channel order; channels not listed are added as
// they are first observed.
func NewRecorder(capacity int, ids ...uint8) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{capacity: capacity, rings: make(map[uint8]*ring)}
	for _, id := range ids {
		r.add(id)
	}
	return r
}

// add creates the ring for id.  Lock must be held.
func (r *Recorder) add(id uint8) *ring {
	if rg, ok := r.rings[id]; ok {
		return rg
	}
	rg := newRing(r.capacity)
	r.rings[id] = rg
	r.ids = append(r.ids, id)
	return rg
}

// Observe satisfies compliance.Observer
func (r *Recorder) Observe(o compliance.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(o.ID).Append(o)
	if o.Tick > r.ticks {
		r.ticks = o.Tick
	}
}

// IDs returns the channel ids
func (r *Recorder) IDs() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint8{}, r.ids...)
}

// Ticks returns the highest tick number observed
func (r *Recorder) Ticks() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ticks
}

// Latest returns the most recent observation of a channel
func (r *Recorder) Latest(id uint8) (compliance.Observation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.rings[id]
	if !ok {
		return compliance.Observation{}, false
	}
	return rg.Head()
}

// History returns the retained observations of a channel, oldest first.
// ok is false if the channel is unknown.
func (r *Recorder) History(id uint8) (obs []compliance.Observation, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.rings[id]
	if !ok {
		return nil, false
	}
	return rg.Contiguous(), true
}
