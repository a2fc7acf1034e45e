package compliance

// Guard returns the goal position to command given a tentative goal and a
// freshly measured position.  If the actuator has already reached or passed
// the tentative goal in the yield direction, the goal is clamped to where the
// actuator is, so it is never driven back against the load.
//
// Guard is idempotent: Guard(Guard(t, c, d), c, d) == Guard(t, c, d).
func Guard(tentative, confirmed int, dir Direction) int {
	switch dir {
	case Negative:
		if confirmed > tentative {
			return tentative
		}
	case Positive:
		if confirmed < tentative {
			return tentative
		}
	}
	return confirmed
}
