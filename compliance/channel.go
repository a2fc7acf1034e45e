package compliance

import (
	"fmt"

	"github.com/roboajay/gravity-compensation/register"
	"github.com/roboajay/gravity-compensation/util"
)

// DefaultLimits is the full travel of an MX series actuator, used when a
// channel sets no limits
var DefaultLimits = util.Limiter{Min: 0, Max: 4095}

// ChannelConfig is the static configuration of one actuator
type ChannelConfig struct {
	// ID is the bus id of the actuator
	ID uint8 `koanf:"ID" yaml:"ID"`

	// Gain is the position units yielded per unit of load beyond threshold
	Gain float64 `koanf:"Gain" yaml:"Gain"`

	// Threshold is the smallest load, in raw current units, that is yielded to
	Threshold int `koanf:"Threshold" yaml:"Threshold"`

	// Midpoint is the current sample at zero load, 0 uses Midpoint
	Midpoint int `koanf:"Midpoint" yaml:"Midpoint"`

	// Limits bound the goal position; the zero value uses DefaultLimits
	Limits util.Limiter `koanf:"Limits" yaml:"Limits"`

	// Registers is the control table layout; the zero value uses
	// register.MXSeries
	Registers register.Map `koanf:"Registers" yaml:"Registers"`
}

// Validate checks that the configuration can drive an actuator
func (c ChannelConfig) Validate() error {
	if c.Gain <= 0 {
		return fmt.Errorf("channel %d: gain must be positive, got %v", c.ID, c.Gain)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("channel %d: threshold must be positive, got %d", c.ID, c.Threshold)
	}
	if !c.Limits.Valid() {
		return fmt.Errorf("channel %d: limit max %v is below min %v", c.ID, c.Limits.Max, c.Limits.Min)
	}
	if c.Registers != (register.Map{}) {
		if err := c.Registers.Validate(); err != nil {
			return fmt.Errorf("channel %d: %v", c.ID, err)
		}
	}
	d := c.withDefaults()
	rng := d.Registers.GoalPosition.Range()
	if !rng.Check(d.Limits.Min) || !rng.Check(d.Limits.Max) {
		return fmt.Errorf("channel %d: limits [%v, %v] exceed the goal register range [%v, %v]",
			c.ID, d.Limits.Min, d.Limits.Max, rng.Min, rng.Max)
	}
	return nil
}

func (c ChannelConfig) withDefaults() ChannelConfig {
	if c.Midpoint == 0 {
		c.Midpoint = Midpoint
	}
	if c.Registers == (register.Map{}) {
		c.Registers = register.MXSeries
	}
	if c.Limits == (util.Limiter{}) {
		c.Limits = DefaultLimits
	}
	return c
}

// Channel is the state of one actuator under compliance control
type Channel struct {
	ChannelConfig

	// PreviousLoadDelta is the load computed on the last tick
	PreviousLoadDelta int

	// CommandedGoal is the last goal position the actuator acknowledged.
	// It is only meaningful if GoalKnown is true.
	CommandedGoal int
	GoalKnown     bool

	// last known samples, used when a read fails
	lastCurrent  int
	lastPosition int
	havePosition bool
}

func newChannel(c ChannelConfig) *Channel {
	c = c.withDefaults()
	return &Channel{ChannelConfig: c, lastCurrent: c.Midpoint}
}

// limit clamps a goal into the channel's limits
func (c *Channel) limit(goal int) int {
	return int(c.Limits.Clamp(float64(goal)))
}
