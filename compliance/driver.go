/*Package compliance makes position controlled actuators yield to external force.

Each tick, the motor current of every actuator is read and converted to a
signed load.  When the load exceeds a threshold in the same direction as on
the previous tick, the goal position is moved away from the load in
proportion to it.  Before the new goal is written the position is sampled
again; if the actuator has already moved past the new goal, it is told to
hold where it is instead.

A Driver runs the loop over any number of independent channels:

	d, err := compliance.NewDriver(link, compliance.Config{
		Channels: []compliance.ChannelConfig{{ID: 1, Gain: 3, Threshold: 5}}})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()
	d.Start()
	err = d.Run(ctx)

Transport and device errors are logged and do not stop the loop, the last
known samples stand in for a failed read and a failed write is skipped.
Only a fatal transport error ends Run.
*/
package compliance

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/roboajay/gravity-compensation/register"
	"golang.org/x/time/rate"
)

// Config configures a Driver
type Config struct {
	// Channels are the actuators to control, ticked in this order
	Channels []ChannelConfig

	// Period is the minimum time between the start of two ticks.
	// Zero runs ticks back to back.
	Period time.Duration

	// Logger receives transport and device errors.  Nil logs to stderr.
	Logger *log.Logger

	// Observer, if not nil, receives an Observation per channel per tick
	Observer Observer
}

// Pinger is implemented by links that can check an actuator answers
// without touching its control table
type Pinger interface {
	Ping(id uint8) error
}

// Driver runs the compliance loop.  Its methods must be called from a single
// goroutine.
type Driver struct {
	link     register.Link
	channels []*Channel
	period   time.Duration
	log      *log.Logger
	obs      Observer
	ticks    uint64
	closed   bool
}

// NewDriver validates cfg and returns a Driver controlling its channels
// over link
func NewDriver(link register.Link, cfg Config) (*Driver, error) {
	if link == nil {
		return nil, errors.New("compliance: nil link")
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("compliance: no channels configured")
	}
	if cfg.Period < 0 {
		return nil, fmt.Errorf("compliance: negative period %v", cfg.Period)
	}
	d := &Driver{link: link, period: cfg.Period, log: cfg.Logger, obs: cfg.Observer}
	if d.log == nil {
		d.log = log.New(os.Stderr, "", log.LstdFlags)
	}
	seen := map[uint8]bool{}
	for _, c := range cfg.Channels {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrap(err, "compliance")
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("compliance: duplicate channel id %d", c.ID)
		}
		seen[c.ID] = true
		d.channels = append(d.channels, newChannel(c))
	}
	return d, nil
}

// Channels returns a copy of the state of every channel, in tick order
func (d *Driver) Channels() []Channel {
	out := make([]Channel, len(d.channels))
	for i, ch := range d.channels {
		out[i] = *ch
	}
	return out
}

// IDs returns the actuator ids in tick order
func (d *Driver) IDs() []uint8 {
	out := make([]uint8, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ch.ID
	}
	return out
}

// Start enables torque on every channel and seeds the commanded goal from
// the actuator.  If the link is a Pinger, actuators which do not answer a
// ping are reported first.  Failures are logged; only a fatal transport
// error is returned.
func (d *Driver) Start() error {
	pinger, _ := d.link.(Pinger)
	for _, ch := range d.channels {
		regs := ch.Registers
		if pinger != nil {
			if err := pinger.Ping(ch.ID); err != nil && !register.IsDeviceError(err) {
				d.log.Printf("[ID:%03d] does not answer: %v", ch.ID, err)
				if register.IsFatal(err) {
					return err
				}
			}
		}
		err := d.link.Write(ch.ID, regs.TorqueEnable.Addr, regs.TorqueEnable.Width, regs.TorqueEnable.Encode(1))
		if err != nil {
			d.log.Printf("[ID:%03d] error enabling torque: %v", ch.ID, err)
			if register.IsFatal(err) {
				return err
			}
		}
		raw, err := d.link.Read(ch.ID, regs.GoalPosition.Addr, regs.GoalPosition.Width)
		if err != nil {
			d.log.Printf("[ID:%03d] error reading goal position: %v", ch.ID, err)
			if register.IsFatal(err) {
				return err
			}
			if !register.IsDeviceError(err) {
				continue
			}
		}
		ch.CommandedGoal = regs.GoalPosition.Decode(raw)
		ch.GoalKnown = true
	}
	return nil
}

// Tick runs one iteration of the loop over every channel.  The returned
// error is non-nil only for a fatal transport error, in which case the
// remaining channels are not ticked.
func (d *Driver) Tick() error {
	d.ticks++
	now := time.Now()
	for _, ch := range d.channels {
		o := Observation{Time: now, Tick: d.ticks, ID: ch.ID}
		err := d.step(ch, &o)
		if d.obs != nil {
			d.obs.Observe(o)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Run ticks until ctx is done or a fatal transport error occurs, at most
// once per Period.  It returns ctx.Err() or the fatal error.
func (d *Driver) Run(ctx context.Context) error {
	limit := rate.Inf
	if d.period > 0 {
		limit = rate.Every(d.period)
	}
	lim := rate.NewLimiter(limit, 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			// the wait may fail early when the next tick falls past the
			// deadline of ctx
			<-ctx.Done()
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Tick(); err != nil {
			return err
		}
	}
}

// Close disables torque on every channel and closes the link.  It is safe
// to call more than once.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var first error
	for _, ch := range d.channels {
		te := ch.Registers.TorqueEnable
		if err := d.link.Write(ch.ID, te.Addr, te.Width, te.Encode(0)); err != nil {
			d.log.Printf("[ID:%03d] error disabling torque: %v", ch.ID, err)
			if first == nil {
				first = err
			}
		}
	}
	if err := d.link.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// read samples a register.  ok is false if no value is available, err is
// only non-nil when the failure is fatal.
func (d *Driver) read(o *Observation, reg register.Register, what string) (v int, ok bool, err error) {
	raw, err := d.link.Read(o.ID, reg.Addr, reg.Width)
	if err == nil {
		return reg.Decode(raw), true, nil
	}
	d.log.Printf("[ID:%03d] error reading %s: %v", o.ID, what, err)
	o.Errors = append(o.Errors, err.Error())
	switch {
	case register.IsDeviceError(err):
		return reg.Decode(raw), true, nil
	case register.IsFatal(err):
		return 0, false, err
	}
	return 0, false, nil
}

func (d *Driver) step(ch *Channel, o *Observation) error {
	regs := ch.Registers

	current, ok, err := d.read(o, regs.Current, "current")
	if err != nil {
		return err
	}
	if ok {
		ch.lastCurrent = current
	}
	pos, ok, err := d.read(o, regs.PresentPosition, "present position")
	if err != nil {
		return err
	}
	if ok {
		ch.lastPosition = pos
		ch.havePosition = true
	}
	if regs.PresentLoad.Defined() {
		load, ok, err := d.read(o, regs.PresentLoad, "present load")
		if err != nil {
			return err
		}
		o.Load, o.HasLoad = load, ok
	}

	loadDelta := LoadDelta(ch.lastCurrent, ch.Midpoint)
	delta, dir := Yield(loadDelta, ch.PreviousLoadDelta, ch.Gain, ch.Threshold)
	o.CurrentRaw = ch.lastCurrent
	o.LoadDelta = loadDelta
	o.DeltaPosition = delta
	o.Direction = dir
	o.PresentPosition = ch.lastPosition
	o.ConfirmedPosition = ch.lastPosition

	if delta != 0 {
		if ch.havePosition {
			err = d.yield(ch, o, ch.limit(ch.lastPosition+delta), dir)
		} else {
			d.log.Printf("[ID:%03d] no position sample yet, not yielding", ch.ID)
		}
	}
	ch.PreviousLoadDelta = loadDelta
	o.CommandedGoal = ch.CommandedGoal
	return err
}

// yield runs the overshoot guard against a fresh position sample and writes
// the resulting goal
func (d *Driver) yield(ch *Channel, o *Observation, tentative int, dir Direction) error {
	regs := ch.Registers
	confirmed, ok, err := d.read(o, regs.PresentPosition, "confirmed position")
	if !ok {
		return err
	}
	ch.lastPosition = confirmed
	o.ConfirmedPosition = confirmed
	o.Guarded = true

	goal := Guard(tentative, confirmed, dir)
	if !regs.GoalPosition.Range().Check(float64(goal)) {
		err = fmt.Errorf("goal position %d does not fit the register", goal)
		d.log.Printf("[ID:%03d] not writing: %v", ch.ID, err)
		o.Errors = append(o.Errors, err.Error())
		return nil
	}
	err = d.link.Write(ch.ID, regs.GoalPosition.Addr, regs.GoalPosition.Width, regs.GoalPosition.Encode(goal))
	if err != nil {
		d.log.Printf("[ID:%03d] error writing goal position %d: %v", ch.ID, goal, err)
		o.Errors = append(o.Errors, err.Error())
		if register.IsFatal(err) {
			return err
		}
		return nil
	}
	ch.CommandedGoal = goal
	ch.GoalKnown = true
	o.Wrote = true
	return nil
}
