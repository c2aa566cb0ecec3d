package core

import "errors"

var (
	// ErrBackpressure means the outbound queue is full; the frame was dropped.
	ErrBackpressure = errors.New("backpressure")
	// ErrClosed means the channel is gone; nothing will be delivered again.
	ErrClosed = errors.New("connection closed")
)

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts the per-participant messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks. It returns ErrBackpressure or ErrClosed.
	TrySend(Frame) error
	Close()
}
