// Package util contains misc internal utilities.
package util

// Limiter is a software limit on an axis
type Limiter struct {
	Min float64 `koanf:"Min" yaml:"Min" json:"min"`
	Max float64 `koanf:"Max" yaml:"Max" json:"max"`
}

// Check returns true if f is within [Min, Max]
func (l Limiter) Check(f float64) bool {
	return f >= l.Min && f <= l.Max
}

// Clamp limits f to [Min, Max]
func (l Limiter) Clamp(f float64) float64 {
	return Clamp(f, l.Min, l.Max)
}

// Valid returns true if the limiter admits at least one value
func (l Limiter) Valid() bool {
	return l.Max >= l.Min
}

// Clamp limits input to the range [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	} else if input > high {
		return high
	}
	return input
}
