package compliance

// Midpoint is the current sample of an MX actuator carrying no load
const Midpoint = 2048

// LoadDelta converts a raw current sample into a signed load relative to the
// zero load midpoint.  Positive values are load in the direction of
// increasing position.
func LoadDelta(raw, midpoint int) int {
	return raw - midpoint
}
