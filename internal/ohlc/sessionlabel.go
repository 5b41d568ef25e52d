package ohlc

// hourToSession maps a local hour-of-day (0-23) to one of the five fixed
// categorical session labels. The same windows are applied regardless of
// which zone's local hour is passed in — ny_session classifies ny_hour,
// london_session classifies london_hour — giving each column a label
// relative to its own zone's trading day rather than a shared UTC clock.
func hourToSession(hour int) string {
	switch {
	case hour < 8:
		return "Asian"
	case hour < 13:
		return "London"
	case hour < 17:
		return "Overlap"
	case hour < 22:
		return "NewYork"
	default:
		return "Off"
	}
}
