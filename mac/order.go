package mac

import "github.com/dstwr/twrcore/ranging"

// Order is the transmission-order ring: a strictly ascending sequence of
// peer IDs terminated by the sentinel ranging.DummyID. It never allocates
// beyond what a handful of insertions need, since the ring holds at most
// NumDevices+2 entries and mutations are rare (one join or eviction at a
// time) — an insertion-sort-on-an-array approach, favoring fixed, dense
// backing storage over anything heap-churny.
type Order struct {
	ids []uint8
}

// NewOrder returns an order containing only the sentinel, as at boot.
func NewOrder() *Order {
	return &Order{ids: []uint8{ranging.DummyID}}
}

// Len returns the number of entries, including the sentinel.
func (o *Order) Len() int { return len(o.ids) }

// At returns the ID at position i.
func (o *Order) At(i int) uint8 { return o.ids[i] }

// IndexOf returns the position of id, if present.
func (o *Order) IndexOf(id uint8) (int, bool) {
	for i, v := range o.ids {
		if v == id {
			return i, true
		}
	}
	return 0, false
}

// SentinelIndex returns the position of ranging.DummyID, which is always
// the last element.
func (o *Order) SentinelIndex() int { return len(o.ids) - 1 }

// NextIndex returns the position the MAC layer should next expect a
// transmission from, given that the entry at afterIdx has just had its
// turn. It wraps straight past the trailing sentinel back to the first
// real entry, since the sentinel itself never transmits: once the last
// peer in the ring has gone, the next expected slot is the first one
// again, not the bookkeeping marker at the end.
func (o *Order) NextIndex(afterIdx int) int {
	next := (afterIdx + 1) % len(o.ids)
	if o.ids[next] == ranging.DummyID && len(o.ids) > 1 {
		return 0
	}
	return next
}

// Insert places id in its sorted position, ahead of the trailing sentinel.
// It is a no-op if id is already present.
func (o *Order) Insert(id uint8) {
	if _, ok := o.IndexOf(id); ok {
		return
	}

	// Insertion point: first index whose value is >= id (the sentinel,
	// 255, is always >= any real id, so the loop always terminates inside
	// the slice).
	at := len(o.ids)
	for i, v := range o.ids {
		if v >= id {
			at = i
			break
		}
	}

	o.ids = append(o.ids, 0)
	copy(o.ids[at+1:], o.ids[at:len(o.ids)-1])
	o.ids[at] = id
}

// Remove deletes id from the ring, shifting subsequent entries down. The
// sentinel is never removable.
func (o *Order) Remove(id uint8) bool {
	if id == ranging.DummyID {
		return false
	}
	i, ok := o.IndexOf(id)
	if !ok {
		return false
	}
	o.ids = append(o.ids[:i], o.ids[i+1:]...)
	return true
}

// Snapshot returns a copy of the ring contents, for tests and invariant
// checks that must not alias the live backing array.
func (o *Order) Snapshot() []uint8 {
	out := make([]uint8, len(o.ids))
	copy(out, o.ids)
	return out
}

// IsSorted reports whether the ring still satisfies the ascending-with-
// trailing-sentinel invariant. Used by tests; not called on the hot path.
func (o *Order) IsSorted() bool {
	for i := 1; i < len(o.ids); i++ {
		if o.ids[i-1] >= o.ids[i] {
			return false
		}
	}
	return len(o.ids) > 0 && o.ids[len(o.ids)-1] == ranging.DummyID
}
