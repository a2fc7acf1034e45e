package compliance

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observation summarizes one tick of one channel
type Observation struct {
	// Time is when the tick began
	Time time.Time `json:"time"`

	// Tick counts ticks since the driver was created, starting at 1
	Tick uint64 `json:"tick"`

	// ID is the actuator id
	ID uint8 `json:"id"`

	// CurrentRaw is the current sample the load was computed from
	CurrentRaw int `json:"currentRaw"`

	LoadDelta     int       `json:"loadDelta"`
	DeltaPosition int       `json:"deltaPosition"`
	Direction     Direction `json:"direction"`

	// PresentPosition is the position the tentative goal was computed from
	PresentPosition int `json:"presentPosition"`

	// ConfirmedPosition is the re-read position the guard ran against.
	// When the guard did not run it equals PresentPosition.
	ConfirmedPosition int  `json:"confirmedPosition"`
	Guarded           bool `json:"guarded"`

	// CommandedGoal is the channel's commanded goal after the tick
	CommandedGoal int `json:"commandedGoal"`

	// Wrote is true if a goal was written and acknowledged this tick
	Wrote bool `json:"wrote"`

	// Load is the present load register, if the channel reads it
	Load    int  `json:"load"`
	HasLoad bool `json:"hasLoad"`

	// Errors are the transport and device errors seen during the tick
	Errors []string `json:"errors,omitempty"`
}

// String renders the observation as one log line
func (o Observation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ID:%03d] current:%d load_delta:%d delta_position:%d present:%d confirmed:%d goal:%d",
		o.ID, o.CurrentRaw, o.LoadDelta, o.DeltaPosition, o.PresentPosition, o.ConfirmedPosition, o.CommandedGoal)
	if o.HasLoad {
		fmt.Fprintf(&b, " load:%d", o.Load)
	}
	return b.String()
}

// Observer receives an Observation for every channel on every tick.
// Observe is called from the control loop and must not block.
type Observer interface {
	Observe(Observation)
}

// ObserverFunc adapts a func to an Observer
type ObserverFunc func(Observation)

// Observe calls f(o)
func (f ObserverFunc) Observe(o Observation) {
	f(o)
}

// Observers fans an observation out to several observers, in order
type Observers []Observer

// Observe passes o to every observer
func (obs Observers) Observe(o Observation) {
	for _, ob := range obs {
		ob.Observe(o)
	}
}

// LogObserver prints every observation to a logger
type LogObserver struct {
	*log.Logger
}

// Observe prints o
func (l LogObserver) Observe(o Observation) {
	l.Println(o.String())
}
