package simradio

import (
	"errors"
	"sync"
	"time"

	"github.com/dstwr/twrcore/ranging"
)

// ErrNoSendScheduled is returned by Send if called without a prior
// SetDelay, mirroring the real radio's requirement that a delayed-send
// register be armed before a transmission can be committed.
var ErrNoSendScheduled = errors.New("simradio: Send called without a prior SetDelay")

const rxCapacity = 64

type receivedFrame struct {
	data []byte
	ts   uint64
}

// Driver is one simulated node's view of the shared Medium. It satisfies
// mac.RadioDriver. The zero value is not usable; obtain one from
// Medium.Join.
type Driver struct {
	mu     sync.Mutex
	id     uint8
	medium *Medium

	rx      [rxCapacity]receivedFrame
	rxHead  int
	rxTail  int
	rxCount int

	scheduledTick      uint64
	hasScheduledSend   bool
	awaitingCompletion bool

	hwError  bool
	rxFailed bool
}

// Configure is a no-op beyond recording that the driver is in use: the
// simulated medium has no addressing filter to program, every send fans
// out to every joined node.
func (d *Driver) Configure(ourID uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = ourID
	return nil
}

// SetDelay arms a scheduled send delta in the future (measured from the
// medium's current virtual tick) and returns the absolute tick the
// transmission will occur at.
func (d *Driver) SetDelay(delta time.Duration) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	deltaTicks := uint64(delta.Seconds() / ranging.TickPeriod)
	d.scheduledTick = ranging.Timestamp(d.medium.Now()).Add(ranging.Timestamp(deltaTicks)).Uint64()
	d.hasScheduledSend = true
	return d.scheduledTick
}

// Send fans data out to every other node on the medium, scheduled to
// arrive after each one's individual propagation delay, and marks the
// transmission itself as pending completion at the tick SetDelay armed.
func (d *Driver) Send(data []byte) error {
	d.mu.Lock()
	if !d.hasScheduledSend {
		d.mu.Unlock()
		return ErrNoSendScheduled
	}
	sendTick := d.scheduledTick
	fromID := d.id
	d.mu.Unlock()

	d.medium.schedule(fromID, sendTick, data)

	d.mu.Lock()
	d.hasScheduledSend = false
	d.awaitingCompletion = true
	d.mu.Unlock()
	return nil
}

// PollSendComplete reports true exactly once, the first poll after the
// medium's clock has reached the scheduled send tick.
func (d *Driver) PollSendComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.awaitingCompletion && tickElapsed(d.medium.Now(), d.scheduledTick) {
		d.awaitingCompletion = false
		return true
	}
	return false
}

// PollReceived pops the oldest queued frame, if any.
func (d *Driver) PollReceived() (data []byte, ts uint64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pop()
}

// DiscardPendingReceive drops the oldest queued frame without returning
// it, modeling the shared-frame-buffer race mitigation real drivers need
// around a transmit.
func (d *Driver) DiscardPendingReceive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pop()
}

// PollErrors returns and clears the injected hardware-error and
// receive-failed flags. Nothing in normal simulation sets them; tests use
// InjectHardwareError / InjectReceiveFailure to exercise the MAC layer's
// handling of transient radio faults.
func (d *Driver) PollErrors() (hwError, rxFailed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hwError, rxFailed = d.hwError, d.rxFailed
	d.hwError, d.rxFailed = false, false
	return
}

// InjectHardwareError arms PollErrors to report a hardware fault on its
// next call.
func (d *Driver) InjectHardwareError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hwError = true
}

// InjectReceiveFailure arms PollErrors to report a failed receive on its
// next call.
func (d *Driver) InjectReceiveFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxFailed = true
}

// deliver is called by the owning Medium, under its own lock, once a
// scheduled delivery's arrival tick has been reached.
func (d *Driver) deliver(data []byte, ts uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.push(receivedFrame{data: data, ts: ts})
}

func (d *Driver) push(f receivedFrame) {
	if d.rxCount == rxCapacity {
		// Drop the oldest to keep the queue bounded.
		d.rx[d.rxHead] = receivedFrame{}
		d.rxHead = (d.rxHead + 1) % rxCapacity
		d.rxCount--
	}
	d.rx[d.rxTail] = f
	d.rxTail = (d.rxTail + 1) % rxCapacity
	d.rxCount++
}

func (d *Driver) pop() ([]byte, uint64, bool) {
	if d.rxCount == 0 {
		return nil, 0, false
	}
	f := d.rx[d.rxHead]
	d.rx[d.rxHead] = receivedFrame{}
	d.rxHead = (d.rxHead + 1) % rxCapacity
	d.rxCount--
	return f.data, f.ts, true
}
