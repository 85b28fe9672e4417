package mac

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/dstwr/twrcore/metrics"
	"github.com/dstwr/twrcore/ranging"
	"github.com/dstwr/twrcore/report"
	"github.com/dstwr/twrcore/wire"
)

// Params configures a Node. Driver is required; Reporter, Metrics and
// Logger default to no-ops / log.Default() when left nil so a test can
// stand up a Node with nothing but a driver.
type Params struct {
	OurID                 uint8
	NumDevices            int
	EvictionThreshold     int
	DelayTime             time.Duration
	DelayUntilAssumedLost time.Duration
	SlotMarginPerDevice   time.Duration

	Driver   RadioDriver
	Reporter *report.Reporter
	Metrics  *metrics.Collector
	Logger   *log.Logger
}

// Node is the single-threaded token-passing MAC state machine: it
// coordinates the peer table and ranging engine (package ranging) with the
// frame codec (package wire) and a RadioDriver. Every method is intended
// to be called from one goroutine (the main loop); Node itself does no
// internal locking, matching the single-threaded cooperative scheduling
// model of the protocol it implements.
type Node struct {
	ourID             uint8
	role              Role
	numDevices        int
	evictionThreshold int

	delayTime             time.Duration
	delayUntilAssumedLost time.Duration
	slotMarginPerDevice   time.Duration

	driver   RadioDriver
	table    *ranging.Table
	order    *Order
	reporter *report.Reporter
	metrics  *metrics.Collector
	logger   *log.Logger

	state         State
	bootTime      time.Time
	expectedTxIdx int
	tookTurn      bool
	txTimerStart  time.Time

	pendingSendTicks uint64
	hasPendingSend   bool
}

// NewNode constructs a Node in StateStartUp. Call Start once to record the
// boot time and configure the driver.
func NewNode(p Params) *Node {
	evictionThreshold := p.EvictionThreshold
	if evictionThreshold == 0 {
		evictionThreshold = EvictionThreshold
	}

	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Node{
		ourID:                 p.OurID,
		role:                  RoleForID(p.OurID),
		numDevices:            p.NumDevices,
		evictionThreshold:     evictionThreshold,
		delayTime:             p.DelayTime,
		delayUntilAssumedLost: p.DelayUntilAssumedLost,
		slotMarginPerDevice:   p.SlotMarginPerDevice,
		driver:                p.Driver,
		table:                 ranging.NewTable(p.NumDevices),
		order:                 NewOrder(),
		reporter:              p.Reporter,
		metrics:               p.Metrics,
		logger:                logger,
		state:                 StateStartUp,
	}
}

// Start configures the driver and records the boot instant that gates the
// StateStartUp silence period.
func (n *Node) Start(now time.Time) error {
	n.bootTime = now
	n.txTimerStart = now
	n.logger.Printf("[mac] node %d starting as %s (num_devices=%d)", n.ourID, n.role, n.numDevices)
	return n.driver.Configure(n.ourID)
}

// OurID returns the node's own configured ID.
func (n *Node) OurID() uint8 { return n.ourID }

// State returns the node's current lifecycle state, for tests and
// diagnostics.
func (n *Node) State() State { return n.state }

// Order returns the live transmission order, for tests and invariant
// checks. Callers must not mutate the returned ring directly.
func (n *Node) Order() *Order { return n.order }

// ExpectedTxIndex returns the current expected-transmitter pointer.
func (n *Node) ExpectedTxIndex() int { return n.expectedTxIdx }

// PeerTable exposes the underlying ranging table, for tests and reporting
// integrations that need to enumerate current peers.
func (n *Node) PeerTable() *ranging.Table { return n.table }

// Tick drains the driver's interrupt flags and advances the state machine
// by one iteration. Receive processing completes before send processing,
// which completes before state-machine evaluation (transitions and slot
// timeout).
//
// A tick that just finished a send skips state evaluation entirely rather
// than letting evaluateState immediately decide to transmit again: a ring
// of one wraps expectedTxIdx straight back to the sender, and retransmitting
// in the same tick as the completion it followed would re-arm tookTurn
// before handleReceive ever gets a tick where it observes tookTurn false,
// permanently starving that node of any frame a peer sent in the meantime.
// Deferring the retransmit decision to the following tick costs nothing —
// checkSlotTimeout runs one tick later too, well inside any real threshold
// — and gives handleReceive the window it needs.
func (n *Node) Tick(now time.Time) {
	n.drainErrors()
	n.handleReceive(now)
	if n.handleSendComplete(now) {
		return
	}
	n.evaluateState(now)
}

func (n *Node) drainErrors() {
	hwErr, rxFailed := n.driver.PollErrors()
	if hwErr {
		n.logger.Printf("[mac] node %d: radio hardware error interrupt", n.ourID)
	}
	if rxFailed {
		n.logger.Printf("[mac] node %d: radio receive-failed interrupt", n.ourID)
	}
}

func (n *Node) handleReceive(now time.Time) {
	// Once we have taken our turn for this slot, inbound processing is
	// suppressed until the send completes: the radio's receive buffer and
	// send buffer alias the same underlying hardware FIFO on some targets.
	if n.tookTurn {
		return
	}

	data, recvTicks, ok := n.driver.PollReceived()
	if !ok {
		return
	}

	frame, err := decodeInbound(data, n.ourID)
	if err != nil {
		n.logger.Printf("[mac] node %d: dropped frame: %v", n.ourID, err)
		return
	}

	out := n.table.ObserveFrame(n.ourID, frame.SenderID, frame.SendTicks, recvTicks, frame.Reports)
	if out.Rejected {
		// The table was full and the sender is unknown: there is no Peer
		// record to hang a ring entry off of, so the order is left alone.
		n.reactToOutcome(frame, out)
		return
	}

	if out.Created {
		// A peer we've never heard before: insert it and park the pointer
		// on the sentinel rather than one past the sender. We don't yet
		// know where the rest of the ring stands relative to this arrival,
		// so the timer is left untouched too — this frame doesn't attest
		// to anyone's slot having come and gone on schedule.
		n.order.Insert(frame.SenderID)
		n.expectedTxIdx = n.order.SentinelIndex()
	} else if idx, found := n.order.IndexOf(frame.SenderID); found {
		// A known peer's slot has just ended; the next one belongs to
		// whoever follows them in the ring, sentinel included.
		n.expectedTxIdx = (idx + 1) % n.order.Len()
		n.txTimerStart = now
	}

	n.reactToOutcome(frame, out)
}

func (n *Node) reactToOutcome(frame *wire.Frame, out ranging.Outcome) {
	if out.Rejected {
		n.logger.Printf("[mac] node %d: peer table full, rejected new peer %d", n.ourID, frame.SenderID)
		if n.metrics != nil {
			n.metrics.PeersRejected.Inc()
		}
		return
	}
	if out.Desync {
		if n.metrics != nil {
			n.metrics.CounterDesyncs.Inc()
		}
	}
	if out.RangeComputed {
		if n.reporter != nil {
			n.reporter.Range(n.ourID, frame.SenderID, out.RangeMeters)
		}
		if n.metrics != nil {
			n.metrics.RangesComputed.Inc()
		}
	}

	// Tag nodes forward ranges the sender reported about third parties;
	// anchors do not.
	if n.role == RoleTag && n.reporter != nil {
		for _, rep := range frame.Reports {
			if rep.PeerID == n.ourID || rep.LastRangeM == 0 {
				continue
			}
			n.reporter.Range(frame.SenderID, rep.PeerID, float64(rep.LastRangeM))
		}
	}

	if n.metrics != nil {
		n.metrics.RingOccupancy.Set(float64(n.table.Count()))
	}
}

// handleSendComplete reports whether a pending send just finished on this
// tick, so Tick can hold off on evaluateState until the next one.
func (n *Node) handleSendComplete(now time.Time) bool {
	if !n.driver.PollSendComplete() {
		return false
	}

	n.tookTurn = false
	n.txTimerStart = now

	if n.hasPendingSend {
		n.table.FinalizeSend(n.pendingSendTicks)
		n.hasPendingSend = false
	}

	if idx, ok := n.order.IndexOf(n.ourID); ok && idx == n.expectedTxIdx {
		n.expectedTxIdx = n.order.NextIndex(idx)
	}
	return true
}

func (n *Node) evaluateState(now time.Time) {
	switch n.state {
	case StateStartUp:
		if now.Sub(n.bootTime) >= time.Duration(n.numDevices)*startupDelayPerDevice {
			n.state = StateEnteringNetwork
			n.logger.Printf("[mac] node %d: entering network", n.ourID)
		}
		return

	case StateEnteringNetwork:
		if n.order.At(n.expectedTxIdx) == ranging.DummyID {
			n.order.Insert(n.ourID)
			n.state = StateInTheRound
			n.logger.Printf("[mac] node %d: joined the round", n.ourID)
			n.transmit(now)
		}
		return

	case StateInTheRound:
		if !n.tookTurn {
			if idx, ok := n.order.IndexOf(n.ourID); ok && idx == n.expectedTxIdx {
				n.transmit(now)
			}
		}
	}

	n.checkSlotTimeout(now)
}

func (n *Node) checkSlotTimeout(now time.Time) {
	threshold := n.delayUntilAssumedLost + time.Duration(n.curNumDevices())*n.slotMarginPerDevice
	if now.Sub(n.txTimerStart) <= threshold {
		return
	}

	id := n.order.At(n.expectedTxIdx)

	switch id {
	case ranging.DummyID:
		// Nobody transmits the sentinel; wait for the next round's first
		// sender to snap the pointer forward via handleReceive instead of
		// attributing a miss to no one.
		return
	case n.ourID:
		// Defensive: our own slot should never linger long enough to time
		// out, since evaluateState transmits eagerly. If it somehow does,
		// there is no peer record to blame; just keep the ring moving.
		n.expectedTxIdx = n.order.NextIndex(n.expectedTxIdx)
		n.txTimerStart = now
		return
	}

	if n.metrics != nil {
		n.metrics.SlotTimeouts.Inc()
	}

	peer, found := n.table.Get(id)
	if !found {
		n.logger.Printf("[mac] node %d: expected_tx_idx names unknown id %d, dropping from order", n.ourID, id)
		wrapsToStart := n.order.At(n.expectedTxIdx+1) == ranging.DummyID
		n.order.Remove(id)
		if wrapsToStart {
			n.expectedTxIdx = 0
		}
		n.txTimerStart = now
		return
	}

	peer.Missed++
	if peer.Missed > n.evictionThreshold {
		// id sits at n.expectedTxIdx; if it was the last real entry before
		// the sentinel, removing it means the ring wraps back to the first
		// real entry (or stays on the bare sentinel if none remain) rather
		// than resting on the sentinel's now-shifted position.
		wrapsToStart := n.order.At(n.expectedTxIdx+1) == ranging.DummyID

		n.table.Remove(id)
		n.order.Remove(id)
		n.logger.Printf("[mac] node %d: evicted peer %d after %d missed slots", n.ourID, id, peer.Missed)
		if n.reporter != nil {
			n.reporter.Remove(id)
		}
		if n.metrics != nil {
			n.metrics.PeersEvicted.Inc()
			n.metrics.RingOccupancy.Set(float64(n.table.Count()))
		}

		// Removing the entry shifts everything after it down by one, which
		// is equivalent to having advanced expectedTxIdx; only the
		// wrap-to-start case needs an explicit correction.
		if wrapsToStart {
			n.expectedTxIdx = 0
		}
	} else {
		n.expectedTxIdx = n.order.NextIndex(n.expectedTxIdx)
	}

	n.txTimerStart = now
	n.tookTurn = false
}

func (n *Node) curNumDevices() int {
	return n.table.Count()
}

// transmit assembles and schedules our outbound frame: build the report
// list, commit to a scheduled send instant, patch that instant into the
// frame's own send-timestamp field, and hand it to the driver.
func (n *Node) transmit(now time.Time) {
	buf := make([]byte, wire.MaxFrameSize)
	nBytes := n.table.BuildOutbound(n.ourID, buf)

	sendTicks := n.driver.SetDelay(n.delayTime)
	putUint40(buf[wire.SenderIDSize:wire.HeaderSize], sendTicks)

	if err := n.driver.Send(buf[:nBytes]); err != nil {
		n.logger.Printf("[mac] node %d: send failed: %v", n.ourID, err)
		return
	}

	n.driver.DiscardPendingReceive()

	n.pendingSendTicks = sendTicks
	n.hasPendingSend = true
	n.tookTurn = true

	if n.role == RoleTag && n.reporter != nil {
		n.reporter.ID(n.ourID)
	}
}

// decodeInbound parses a received frame and rejects the two frame-level
// error conditions that matter at this layer: too short to contain a
// header, and addressed from our own ID (a self-loopback the radio driver
// should have filtered but the MAC layer checks anyway).
func decodeInbound(data []byte, ourID uint8) (*wire.Frame, error) {
	frame, ok := wire.Decode(data)
	if !ok {
		return nil, ErrShortFrame
	}
	if frame.SenderID == ourID {
		return nil, ErrSelfLoopback
	}
	return frame, nil
}

func putUint40(b []byte, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	copy(b, tmp[:5])
}
