package mac

import "time"

// mockDriver is a hand-rolled RadioDriver for node tests, following the
// teacher's preference for a small in-memory mock over a mocking
// framework: tests inject received frames and complete sends explicitly,
// with no timing simulated beyond what each test drives through Node.Tick
// and mockDriver.completeSend.
type mockDriver struct {
	configured    bool
	configuredID  uint8
	nextTick      uint64
	sentFrames    [][]byte
	sendReady     bool
	rx            []mockRx
	hwErr, rxFail bool
}

type mockRx struct {
	data []byte
	ts   uint64
}

func (d *mockDriver) Configure(ourID uint8) error {
	d.configured = true
	d.configuredID = ourID
	return nil
}

func (d *mockDriver) SetDelay(delta time.Duration) uint64 {
	d.nextTick++
	return d.nextTick
}

func (d *mockDriver) Send(data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)
	d.sentFrames = append(d.sentFrames, frame)
	return nil
}

// completeSend arms PollSendComplete to report true on its next call,
// standing in for the real driver's scheduled-tick delay elapsing.
func (d *mockDriver) completeSend() {
	d.sendReady = true
}

func (d *mockDriver) PollReceived() ([]byte, uint64, bool) {
	if len(d.rx) == 0 {
		return nil, 0, false
	}
	r := d.rx[0]
	d.rx = d.rx[1:]
	return r.data, r.ts, true
}

func (d *mockDriver) DiscardPendingReceive() {
	if len(d.rx) > 0 {
		d.rx = d.rx[1:]
	}
}

func (d *mockDriver) PollSendComplete() bool {
	if d.sendReady {
		d.sendReady = false
		return true
	}
	return false
}

func (d *mockDriver) PollErrors() (bool, bool) {
	hw, rx := d.hwErr, d.rxFail
	d.hwErr, d.rxFail = false, false
	return hw, rx
}

func (d *mockDriver) inject(data []byte, ts uint64) {
	d.rx = append(d.rx, mockRx{data: data, ts: ts})
}
