package mac

import "errors"

var (
	// ErrSelfLoopback is returned (and only logged) when a received frame
	// claims our own ID as its sender — a frame-level error per the error
	// taxonomy, dropped without mutating any state.
	ErrSelfLoopback = errors.New("received frame addressed from our own id")

	// ErrShortFrame mirrors the codec's length rejection for callers that
	// want a named error rather than a bare bool.
	ErrShortFrame = errors.New("frame shorter than the minimum header size")
)
