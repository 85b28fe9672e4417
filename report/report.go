// Package report implements the line-oriented reporting channel: a small
// set of machine-readable lines interleaved with free-form diagnostic
// text on a single serial/stdout stream.
package report

import (
	"fmt"
	"io"
	"sync"
)

// Reporter writes the three recognized machine-readable line kinds to an
// underlying writer. It is safe for concurrent use: on real hardware the
// reporting channel is a single UART written by a single-threaded main
// loop, but on the host several Node instances may share one process-wide
// writer (a terminal, a log file), and writers on separate goroutines must
// not interleave partial lines.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps w as a Reporter. w is typically os.Stdout on a real device and
// an in-memory buffer in tests.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Range emits "!range <from_id> <to_id> <meters>" — one line per observed
// pairwise range, whether computed locally or extracted from a peer's
// report about a third node.
func (r *Reporter) Range(fromID, toID uint8, meters float64) {
	r.writeLine("!range %d %d %.4f", fromID, toID, meters)
}

// ID emits "!id <our_id>", sent once per transmission by tag-role nodes.
func (r *Reporter) ID(ourID uint8) {
	r.writeLine("!id %d", ourID)
}

// Remove emits "!remove <peer_id>" on eviction.
func (r *Reporter) Remove(peerID uint8) {
	r.writeLine("!remove %d", peerID)
}

// Diagnostic writes a free-form line that is not part of the
// machine-readable grammar; callers typically reach for a *log.Logger
// instead, but this exists for cases that want it on the same stream.
func (r *Reporter) Diagnostic(format string, args ...any) {
	r.writeLine(format, args...)
}

func (r *Reporter) writeLine(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format+"\n", args...)
}
