package ranging

import (
	"math"
	"math/rand"
	"testing"
)

// syntheticExchange builds a Peer whose six timestamps correspond to a
// noiseless asymmetric DS-TWR exchange with true one-way flight time tof
// ticks, local reply delay dLocal ticks, peer reply delay dPeer ticks, and
// a peer clock running at (1+skew) relative to our own.
func syntheticExchange(tof, dLocal, dPeer float64, skew float64) *Peer {
	const b1 = 1_000_000.0 // arbitrary epoch for the peer's previous send

	tPrevReceived := b1/(1+skew) + tof
	tSent := tPrevReceived + dLocal
	tDeviceReceived := (tSent + tof) * (1 + skew)
	tDeviceSent := tDeviceReceived + dPeer
	tReceived := tDeviceSent/(1+skew) + tof

	return &Peer{
		TDevicePrevSent: Timestamp(int64(b1)),
		TPrevReceived:   Timestamp(int64(tPrevReceived)),
		TSent:           Timestamp(int64(tSent)),
		TDeviceReceived: Timestamp(int64(tDeviceReceived)),
		TDeviceSent:     Timestamp(int64(tDeviceSent)),
		TReceived:       Timestamp(int64(tReceived)),
	}
}

func TestRangeLawNoSkewRecoversExactTOF(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 200; i++ {
		tof := math.Floor(1000 + rng.Float64()*50000)
		dLocal := math.Floor(1000 + rng.Float64()*200000)
		dPeer := math.Floor(1000 + rng.Float64()*200000)

		p := syntheticExchange(tof, dLocal, dPeer, 0)
		meters, ok := computeRange(p)
		if !ok {
			t.Fatalf("iteration %d: computeRange rejected a noiseless exchange", i)
		}

		wantMeters := Timestamp(int64(tof)).AsMeters()
		// With whole-tick inputs and no skew every synthetic timestamp is an
		// exact tick count, so the formula must reproduce tof up to
		// floating-point rounding.
		if diff := math.Abs(meters - wantMeters); diff > wantMeters*1e-6+1e-9 {
			t.Fatalf("iteration %d: range = %v, want %v (diff=%v)", i, meters, wantMeters, diff)
		}
	}
}

func TestRangeLawSkewDeviationIsBoundedByEpsilonTimesTOF(t *testing.T) {
	rng := rand.New(rand.NewSource(123))

	for i := 0; i < 200; i++ {
		tof := 1000 + rng.Float64()*50000
		dLocal := 1000 + rng.Float64()*200000
		dPeer := 1000 + rng.Float64()*200000
		skew := (rng.Float64() - 0.5) * 2e-5 // +-10ppm, realistic crystal tolerance

		p := syntheticExchange(tof, dLocal, dPeer, skew)
		meters, ok := computeRange(p)
		if !ok {
			t.Fatalf("iteration %d: computeRange rejected a skewed exchange", i)
		}

		trueMeters := Timestamp(int64(tof)).AsMeters()
		deviation := math.Abs(meters - trueMeters)
		// syntheticExchange truncates each timestamp to a whole tick and
		// trueMeters truncates tof, so up to two ticks of quantization error
		// come on top of the skew term.
		quantization := Timestamp(2).AsMeters()
		bound := math.Abs(skew)*trueMeters*10 + quantization // generous constant margin
		if deviation > bound+1e-6 {
			t.Fatalf("iteration %d: deviation %v exceeds O(eps*tof) bound %v (skew=%v, tof=%v)", i, deviation, bound, skew, tof)
		}
	}
}

func TestSanityGateRejectsNonCausalLegs(t *testing.T) {
	p := &Peer{
		TDevicePrevSent: 1000,
		TDeviceReceived: 1001, // round1 = 1, tiny
		TPrevReceived:   0,
		TSent:           5000, // reply1 = 5000, larger than round1: gate must reject
		TDeviceSent:     6000,
		TReceived:       6001,
	}
	if _, ok := computeRange(p); ok {
		t.Error("computeRange accepted a non-causal leg (round1 <= reply1)")
	}
}

func TestSanityGateRejectsImplausibleRange(t *testing.T) {
	// Construct legs whose algebraic result lands far outside [-10, 1000)
	// meters even though each leg individually looks causal.
	p := syntheticExchange(1e9, 100, 100, 0) // ~ thousands of km of "flight"
	if _, ok := computeRange(p); ok {
		t.Error("computeRange accepted a range far outside the plausible bound")
	}
}
