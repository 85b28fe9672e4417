// Package simradio is a synthetic, in-process implementation of
// mac.RadioDriver for host-side simulation and tests, adapted from the
// teacher's ring-buffer mock driver. Instead of a single point-to-point
// link it models a shared broadcast medium: every Send from one node is
// scheduled for arrival at every other registered node, delayed by the
// propagation time implied by their configured positions, so a test can
// assert on the ranges the MAC layer actually computes rather than
// injecting timestamps by hand.
package simradio

import (
	"math"
	"sync"

	"github.com/dstwr/twrcore/ranging"
)

// Position places a node in a flat plane for the sole purpose of deriving a
// propagation delay; the simulation has no notion of antenna patterns or
// multipath.
type Position struct {
	X, Y float64
}

type delivery struct {
	arrivalTick uint64
	toID        uint8
	data        []byte
}

// Medium is the shared broadcast channel every simulated node's Driver
// talks through. It owns the single virtual tick clock all drivers read,
// so Advance is the only thing that makes simulated time pass.
type Medium struct {
	mu        sync.Mutex
	now       uint64
	positions map[uint8]Position
	drivers   map[uint8]*Driver
	pending   []delivery
}

// NewMedium returns an empty medium with its virtual clock at zero.
func NewMedium() *Medium {
	return &Medium{
		positions: make(map[uint8]Position),
		drivers:   make(map[uint8]*Driver),
	}
}

// Join registers a new node at pos and returns the Driver it should hand
// to mac.NewNode. Calling Join twice with the same id replaces the
// previous driver.
func (m *Medium) Join(id uint8, pos Position) *Driver {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &Driver{id: id, medium: m}
	m.positions[id] = pos
	m.drivers[id] = d
	return d
}

// Now returns the medium's current virtual tick count.
func (m *Medium) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the virtual clock forward by deltaTicks and delivers any
// pending frame whose propagation delay has now elapsed into its
// destination's receive queue.
func (m *Medium) Advance(deltaTicks uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = ranging.Timestamp(m.now).Add(ranging.Timestamp(deltaTicks)).Uint64()

	remaining := m.pending[:0]
	for _, p := range m.pending {
		if tickElapsed(m.now, p.arrivalTick) {
			if d, ok := m.drivers[p.toID]; ok {
				d.deliver(p.data, p.arrivalTick)
			}
			continue
		}
		remaining = append(remaining, p)
	}
	m.pending = remaining
}

// tickElapsed reports whether arrival has been reached, accounting for
// 40-bit wraparound the same way the ranging package's Wrap does: "now"
// has passed "arrival" if their wrapped difference is small and
// non-negative.
func tickElapsed(now, arrival uint64) bool {
	diff := ranging.Timestamp(now).Sub(ranging.Timestamp(arrival))
	// A difference in the upper half of the 40-bit space means arrival is
	// actually still ahead of now (we wrapped past zero the other way).
	return diff.Uint64() < (uint64(1) << 39)
}

// schedule fans a just-sent frame out to every other registered node,
// computing each one's individual propagation delay from the sender and
// receiver positions.
func (m *Medium) schedule(fromID uint8, sendTick uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromPos := m.positions[fromID]
	frame := make([]byte, len(data))
	copy(frame, data)

	for id, pos := range m.positions {
		if id == fromID {
			continue
		}
		delayTicks := propagationTicks(fromPos, pos)
		arrival := ranging.Timestamp(sendTick).Add(ranging.Timestamp(delayTicks)).Uint64()
		m.pending = append(m.pending, delivery{arrivalTick: arrival, toID: id, data: frame})
	}
}

func propagationTicks(a, b Position) uint64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	distanceM := math.Sqrt(dx*dx + dy*dy)
	seconds := distanceM / ranging.SpeedOfLight
	return uint64(seconds / ranging.TickPeriod)
}
