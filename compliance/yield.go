package compliance

import "fmt"

// Direction is the direction the controller yields in
type Direction int

const (
	// Hold means no yield this tick
	Hold Direction = iota

	// Negative yields toward decreasing position
	Negative

	// Positive yields toward increasing position
	Positive
)

func (d Direction) String() string {
	switch d {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	default:
		return "hold"
	}
}

// MarshalText satisfies encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "hold":
		*d = Hold
	case "negative":
		*d = Negative
	case "positive":
		*d = Positive
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Yield decides how far to move the goal position given the load sensed this
// tick and the load sensed on the previous tick.
//
// Load beyond threshold moves the goal by -gain*loadDelta, truncated toward
// zero, but only if the previous tick's load did not point the other way.
// A reversal is therefore honored one tick after it is first seen.
func Yield(loadDelta, prevLoadDelta int, gain float64, threshold int) (int, Direction) {
	switch {
	case loadDelta > threshold && prevLoadDelta >= 0:
		return int(-gain * float64(loadDelta)), Negative
	case loadDelta < -threshold && prevLoadDelta <= 0:
		return int(-gain * float64(loadDelta)), Positive
	}
	return 0, Hold
}
