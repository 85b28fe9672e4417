package ranging

// Sanity gate bounds: a computed range outside [-10, 1000) meters is
// treated as a bad exchange rather than reported, since UWB multipath and
// clock-skew artifacts occasionally produce wildly implausible results.
const (
	minPlausibleRangeM = -10.0
	maxPlausibleRangeM = 1000.0
)

// computeRange runs the asymmetric DS-TWR formula over the current and
// previous exchange recorded in p, and applies the sanity gate. It reports
// ok=false (and leaves p.LastRangeM untouched) whenever either leg of the
// exchange is non-causal or the result falls outside the plausible range.
func computeRange(p *Peer) (meters float64, ok bool) {
	round1 := p.TDeviceReceived.Sub(p.TDevicePrevSent)
	reply1 := p.TSent.Sub(p.TPrevReceived)
	round2 := p.TReceived.Sub(p.TSent)
	reply2 := p.TDeviceSent.Sub(p.TDeviceReceived)

	if !(round1 > reply1 && round2 > reply2) {
		return 0, false
	}

	r1 := float64(round1)
	r2 := float64(round2)
	p1 := float64(reply1)
	p2 := float64(reply2)

	denom := r1 + r2 + p1 + p2
	if denom == 0 {
		return 0, false
	}

	tofTicks := (r1*r2 - p1*p2) / denom
	meters = tofTicks * TickPeriod * SpeedOfLight

	if meters < minPlausibleRangeM || meters >= maxPlausibleRangeM {
		return 0, false
	}

	return meters, true
}
