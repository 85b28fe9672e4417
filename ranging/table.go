package ranging

import "github.com/dstwr/twrcore/wire"

// Outcome reports what observing one inbound frame did to the sender's
// peer record, so a caller (the MAC layer) can decide what to log, meter
// and emit on the reporting channel without the ranging engine reaching
// into those concerns itself.
type Outcome struct {
	Peer *Peer // nil only when Rejected is true

	// Created is true if this frame caused a brand-new peer record to be
	// allocated.
	Created bool

	// Rejected is true if the sender was unknown and the table was already
	// at capacity; no record was created and no further processing ran.
	Rejected bool

	// Desync is true if the counter protocol detected a divergence in
	// either direction (c_their == 0, or c_their != our tx_count).
	Desync bool

	RangeComputed bool
	RangeMeters   float64
}

// Table is a fixed-capacity mapping from peer ID to DS-TWR state. It never
// grows past the capacity given to NewTable; eviction compacts by swapping
// the vacated slot with the last occupied one, so no heap churn is needed
// to keep the backing array dense.
type Table struct {
	capacity int
	peers    []*Peer
	index    map[uint8]int
}

// NewTable allocates a table that holds at most capacity peers.
func NewTable(capacity int) *Table {
	return &Table{
		capacity: capacity,
		peers:    make([]*Peer, 0, capacity),
		index:    make(map[uint8]int, capacity),
	}
}

// Capacity returns the maximum number of peers the table will hold.
func (t *Table) Capacity() int { return t.capacity }

// Count returns the current occupancy.
func (t *Table) Count() int { return len(t.peers) }

// Get returns the peer record for id, if any.
func (t *Table) Get(id uint8) (*Peer, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.peers[i], true
}

// Peers returns a snapshot slice of all current peer records. The order is
// not significant; callers that need sorted order (the MAC's tx_order)
// maintain that separately.
func (t *Table) Peers() []*Peer {
	out := make([]*Peer, len(t.peers))
	copy(out, t.peers)
	return out
}

// Remove deletes id's record, compacting the backing array by moving the
// last element into the vacated slot. Returns false if id was not present.
func (t *Table) Remove(id uint8) bool {
	i, ok := t.index[id]
	if !ok {
		return false
	}

	last := len(t.peers) - 1
	moved := t.peers[last]
	t.peers[i] = moved
	t.peers = t.peers[:last]
	delete(t.index, id)
	if moved.ID != id {
		t.index[moved.ID] = i
	}
	return true
}

// ObserveFrame updates bookkeeping for a frame received from senderID,
// addressed (at the MAC layer) to everyone, and runs the counter protocol
// for the report within it that concerns ourID, if any.
func (t *Table) ObserveFrame(ourID, senderID uint8, theirSendTicks, ourRecvTicks uint64, reports []wire.PeerReport) Outcome {
	peer, created := t.Get(senderID)
	if !created {
		if len(t.peers) >= t.capacity {
			return Outcome{Rejected: true}
		}
		peer = newPeer(senderID)
		t.peers = append(t.peers, peer)
		t.index[senderID] = len(t.peers) - 1
	}

	peer.HasReplied = true
	peer.Missed = 0
	peer.TDeviceSent = Timestamp(theirSendTicks)
	peer.TReceived = Timestamp(ourRecvTicks)

	out := Outcome{Peer: peer, Created: !created}

	report, found := findReport(reports, ourID)
	if !found {
		return out
	}

	peer.TDeviceReceived = Timestamp(report.LastRecvTicks)
	cTheir := report.TxCount

	switch {
	case cTheir == 0:
		peer.TxCount = 1
		out.Desync = true
	case cTheir == peer.TxCount:
		if peer.TxCount > 1 {
			if meters, ok := computeRange(peer); ok {
				peer.LastRangeM = meters
				out.RangeComputed = true
				out.RangeMeters = meters
			}
		}
	default:
		peer.TxCount = 0
		out.Desync = true
	}

	peer.TDevicePrevSent = peer.TDeviceSent
	peer.TPrevReceived = peer.TReceived

	return out
}

// BuildOutbound assembles the outbound frame bytes for ourID: our ID, a
// zero placeholder for our send timestamp (the MAC layer fills in the
// scheduled transmit instant once the radio driver commits to one), and
// one report per known peer.
func (t *Table) BuildOutbound(ourID uint8, buf []byte) int {
	reports := make([]wire.PeerReport, 0, len(t.peers))
	for _, p := range t.peers {
		reports = append(reports, wire.PeerReport{
			PeerID:        p.ID,
			TxCount:       p.TxCount,
			LastRecvTicks: p.TReceived.Uint64(),
			LastRangeM:    float32(p.LastRangeM),
		})
	}

	f := &wire.Frame{SenderID: ourID, SendTicks: 0, Reports: reports}
	return wire.Encode(f, buf)
}

// FinalizeSend stamps the local send timestamp into every peer record,
// advances TxCount for every peer that replied to us this round, and
// clears HasReplied, priming the table for the next round. tSentTicks is
// the scheduled transmit instant the radio driver committed to.
//
// The advance is gated on HasReplied rather than happening unconditionally
// on every consistent receive: our own round trip only completes once we
// transmit again, so advancing here — not the moment their frame arrives —
// is what lets a node that transmits before ever hearing a given peer (the
// common case at cold start) still converge instead of permanently
// disagreeing with that peer about tx_count.
func (t *Table) FinalizeSend(tSentTicks uint64) {
	ts := Timestamp(tSentTicks)
	for _, p := range t.peers {
		p.TSent = ts
		if p.HasReplied {
			p.TxCount++
		}
		p.HasReplied = false
	}
}

func findReport(reports []wire.PeerReport, id uint8) (wire.PeerReport, bool) {
	for _, r := range reports {
		if r.PeerID == id {
			return r, true
		}
	}
	return wire.PeerReport{}, false
}
