package logic

// Temperature bounds in °C for the indicator convention.
const (
	HighAbove  = 30.0 // strictly above is HIGH
	NormalFrom = 25.0 // NormalFrom..HighAbove inclusive is NORMAL
)

// Classify maps a temperature to its zone.
func Classify(value float64) Zone {
	switch {
	case value > HighAbove:
		return ZoneHigh
	case value >= NormalFrom:
		return ZoneNormal
	default:
		return ZoneLow
	}
}

// IndicatorFor projects a zone onto the tri-color indicator.
func IndicatorFor(zone Zone) Color {
	switch zone {
	case ZoneHigh:
		return ColorRed
	case ZoneNormal:
		return ColorYellow
	case ZoneLow:
		return ColorGreen
	default:
		return ColorOff
	}
}

// ZoneTracker remembers the current zone and reports transitions.
type ZoneTracker struct {
	current Zone
	counts  ZoneCounts
}

// NewZoneTracker creates a tracker with no sample observed.
func NewZoneTracker() *ZoneTracker {
	return &ZoneTracker{}
}

// Observe classifies a temperature sample and returns the resulting zone.
// The change is non-nil only when the zone differs from the previous one,
// including the first sample.
// Samples of other metrics leave the tracker untouched.
func (z *ZoneTracker) Observe(s Sample) (Zone, *ZoneChange) {
	if s.Metric() != MetricTemperature {
		return z.current, nil
	}

	zone := Classify(s.Value())
	if zone == z.current {
		return zone, nil
	}

	change := &ZoneChange{
		Timestamp: s.ObservedAt(),
		From:      z.current,
		To:        zone,
		Value:     s.Value(),
	}
	z.current = zone

	switch zone {
	case ZoneLow:
		z.counts.Low++
	case ZoneNormal:
		z.counts.Normal++
	case ZoneHigh:
		z.counts.High++
	}

	return zone, change
}

// Current returns the last observed zone (ZoneUnknown before any sample).
func (z *ZoneTracker) Current() Zone {
	return z.current
}

// CountsSnapshot returns a copy of the zone entry counts.
func (z *ZoneTracker) CountsSnapshot() ZoneCounts {
	return z.counts
}
