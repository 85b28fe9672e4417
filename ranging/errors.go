package ranging

import "errors"

var (
	// ErrTableFull names the condition of a frame from a previously unseen
	// peer arriving when the table already holds NumDevices entries.
	// ObserveFrame reports it through Outcome.Rejected rather than returning
	// this error.
	ErrTableFull = errors.New("peer table full")

	// ErrUnknownPeer names an operation on a peer ID that has no entry in
	// the table. Get and Remove report it through their bool results rather
	// than returning this error.
	ErrUnknownPeer = errors.New("unknown peer id")

	// ErrSentinelID names an attempt to address the reserved sentinel ID as
	// if it were a real peer. No function in this package returns it.
	ErrSentinelID = errors.New("255 is the reserved sentinel id")
)
