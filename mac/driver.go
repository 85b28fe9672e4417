package mac

import "time"

// RadioDriver is the interface the MAC layer drives; it is the black-box
// UWB radio contract. Error and receive-failed conditions are surfaced
// through PollErrors and are logged by the caller, never propagated as a
// Go error: transient radio errors are always discarded after logging.
type RadioDriver interface {
	// Configure sets device addressing and puts the radio into
	// receive-permanently mode: once called, the radio keeps listening
	// without any further per-frame re-arming.
	Configure(ourID uint8) error

	// SetDelay schedules a transmission delta in the future
	// and returns the absolute 40-bit tick count the outbound frame should
	// carry as its own send timestamp.
	SetDelay(delta time.Duration) uint64

	// Send hands off a frame for transmission at the instant previously
	// committed to by SetDelay. Non-blocking: the actual radio transmit
	// happens at the scheduled tick, not synchronously with this call.
	Send(data []byte) error

	// PollReceived reports whether a frame has finished arriving since the
	// last call, clearing the flag either way. ts is the 40-bit receive
	// timestamp, in the same tick base as SetDelay's return value.
	PollReceived() (data []byte, ts uint64, ok bool)

	// DiscardPendingReceive clears any pending received-frame flag without
	// returning its data. Called immediately after a transmit begins: a
	// receive completing mid-assembly would otherwise corrupt the shared
	// frame buffer, so one reception is sacrificed rather than risk that
	// corruption.
	DiscardPendingReceive()

	// PollSendComplete reports whether a previously scheduled transmission
	// has completed since the last call, clearing the flag.
	PollSendComplete() bool

	// PollErrors reports transient hardware-error and receive-failed
	// interrupts since the last call, clearing both flags.
	PollErrors() (hwError, rxFailed bool)
}
