package simradio

import "testing"

func TestTwoNodesExchangeFrame(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})
	b := m.Join(2, Position{X: 10, Y: 0})

	if err := a.Configure(1); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := b.Configure(2); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	a.SetDelay(0)
	if err := a.Send([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for i := 0; i < 1000; i++ {
		m.Advance(1000)
		if _, _, ok := b.PollReceived(); ok {
			return
		}
	}
	t.Fatal("node 2 never received node 1's frame")
}

func TestPropagationDelayScalesWithDistance(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})
	b := m.Join(2, Position{X: 300, Y: 0}) // ~1 microsecond of flight time

	a.SetDelay(0)
	if err := a.Send([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	const tickIncrement = 10000 // far fewer ticks than a microsecond of flight time
	for i := 0; i < 5; i++ {
		m.Advance(tickIncrement)
		if _, _, ok := b.PollReceived(); ok {
			t.Fatalf("frame arrived too early, after only %d ticks", (i+1)*tickIncrement)
		}
	}

	for i := 0; i < 100000; i++ {
		m.Advance(tickIncrement)
		if _, _, ok := b.PollReceived(); ok {
			return
		}
	}
	t.Fatal("frame never arrived even after a generous number of ticks")
}

func TestPollSendCompleteFiresOnceAtScheduledTick(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})
	m.Join(2, Position{X: 5, Y: 0})

	a.SetDelay(0)
	if err := a.Send([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	m.Advance(1)
	if !a.PollSendComplete() {
		t.Fatal("PollSendComplete() = false, want true on first poll after the scheduled tick")
	}
	if a.PollSendComplete() {
		t.Fatal("PollSendComplete() = true on second poll, want the flag to have cleared")
	}
}

func TestSendWithoutSetDelayFails(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})

	if err := a.Send([]byte{1, 2, 3, 4, 5, 6}); err != ErrNoSendScheduled {
		t.Fatalf("Send() error = %v, want ErrNoSendScheduled", err)
	}
}

func TestDiscardPendingReceiveDropsOneFrame(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})
	b := m.Join(2, Position{X: 1, Y: 0})

	a.SetDelay(0)
	_ = a.Send([]byte{1, 2, 3, 4, 5, 6})
	for i := 0; i < 1000; i++ {
		m.Advance(1000)
	}

	b.DiscardPendingReceive()
	if _, _, ok := b.PollReceived(); ok {
		t.Fatal("PollReceived() returned a frame after DiscardPendingReceive consumed the only queued one")
	}
}

func TestInjectedErrorsSurfaceOnce(t *testing.T) {
	m := NewMedium()
	a := m.Join(1, Position{X: 0, Y: 0})

	a.InjectHardwareError()
	a.InjectReceiveFailure()

	hw, rx := a.PollErrors()
	if !hw || !rx {
		t.Fatalf("PollErrors() = (%v, %v), want (true, true)", hw, rx)
	}

	hw, rx = a.PollErrors()
	if hw || rx {
		t.Fatalf("PollErrors() = (%v, %v) on second call, want both cleared", hw, rx)
	}
}
