// Package wire implements the broadcast frame codec described in the
// external interfaces of the ranging protocol. Encode and Decode are pure
// functions over a byte buffer: Decode allocates only the returned Frame
// and its Reports slice, and Encode writes into a caller-owned buffer.
package wire

import (
	"encoding/binary"
	"math"
)

const (
	// SenderIDSize, SendTimestampSize are the fixed header fields that
	// precede the per-peer reports.
	SenderIDSize      = 1
	SendTimestampSize = 5
	HeaderSize        = SenderIDSize + SendTimestampSize

	// ReportSize is the size in bytes of one per-peer report tuple:
	// peer_id(1) + tx_count(1) + last_recv_ts(5) + last_range_m(4).
	ReportSize = 1 + 1 + 5 + 4

	// MaxFrameSize bounds the total encoded length; callers must supply a
	// buffer at least this large to Encode.
	MaxFrameSize = 256

	// MinFrameSize is the smallest a well-formed frame can be: the header
	// with zero reports.
	MinFrameSize = HeaderSize
)

// MaxReports returns how many per-peer reports fit in a frame without
// exceeding MaxFrameSize.
func MaxReports() int {
	return (MaxFrameSize - HeaderSize) / ReportSize
}

// PeerReport is one entry in a Frame's per-peer report list: what the
// sender currently knows about peer_id.
type PeerReport struct {
	PeerID  uint8
	TxCount uint8

	// LastRecvTicks holds the low 40 bits of the sender's last-receive
	// timestamp from PeerID, in the sender's own clock.
	LastRecvTicks uint64

	LastRangeM float32
}

// Frame is the decoded form of one broadcast transmission.
type Frame struct {
	SenderID uint8

	// SendTicks holds the low 40 bits of the sender's send timestamp. On
	// encode this is usually a placeholder the radio driver overwrites once
	// it knows the scheduled transmit instant; on decode it is the value
	// the peer actually reported.
	SendTicks uint64

	Reports []PeerReport
}

// Encode serializes f into buf, returning the number of bytes written. buf
// must be at least MaxFrameSize bytes; Encode never allocates. Reports
// beyond MaxReports() are silently dropped, mirroring the frame's hard
// on-air size ceiling.
func Encode(f *Frame, buf []byte) int {
	n := len(f.Reports)
	if max := MaxReports(); n > max {
		n = max
	}

	buf[0] = f.SenderID
	putUint40(buf[SenderIDSize:HeaderSize], f.SendTicks)

	off := HeaderSize
	for i := 0; i < n; i++ {
		r := f.Reports[i]
		buf[off+0] = r.PeerID
		buf[off+1] = r.TxCount
		putUint40(buf[off+2:off+7], r.LastRecvTicks)
		binary.LittleEndian.PutUint32(buf[off+7:off+11], math.Float32bits(r.LastRangeM))
		off += ReportSize
	}

	return off
}

// Decode parses buf into a Frame. It rejects frames shorter than
// MinFrameSize (6 bytes) per the codec's stated contract, and truncates a
// trailing partial report rather than failing the whole frame: a radio
// glitch that drops the tail of a transmission should not discard the
// sender ID and send timestamp that did arrive intact.
func Decode(buf []byte) (*Frame, bool) {
	if len(buf) < MinFrameSize {
		return nil, false
	}

	f := &Frame{
		SenderID:  buf[0],
		SendTicks: getUint40(buf[SenderIDSize:HeaderSize]),
	}

	remaining := buf[HeaderSize:]
	count := len(remaining) / ReportSize
	if count == 0 {
		return f, true
	}

	f.Reports = make([]PeerReport, count)
	off := 0
	for i := 0; i < count; i++ {
		chunk := remaining[off : off+ReportSize]
		f.Reports[i] = PeerReport{
			PeerID:        chunk[0],
			TxCount:       chunk[1],
			LastRecvTicks: getUint40(chunk[2:7]),
			LastRangeM:    math.Float32frombits(binary.LittleEndian.Uint32(chunk[7:11])),
		}
		off += ReportSize
	}

	return f, true
}

func putUint40(b []byte, v uint64) {
	for i := 0; i < 5; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint40(b []byte) uint64 {
	var v uint64
	for i := 0; i < 5; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
