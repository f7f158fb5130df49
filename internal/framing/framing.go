// Package framing splits the collector's byte stream into length-delimited
// frames. A frame is a protobuf-style varint byte length followed by exactly
// that many payload bytes; the payload carries no type tag.
package framing

import (
	"errors"
)

var (
	// ErrInsufficientData reports that the buffered bytes do not yet hold a
	// complete frame. It is resolved by feeding more input.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidLength reports a length prefix that cannot describe a frame:
	// it overflows 64 bits or exceeds the reader's maximum frame size.
	ErrInvalidLength = errors.New("invalid frame length")
)

// DefaultMaxFrameSize bounds the payload length a Reader accepts.
const DefaultMaxFrameSize = 64 << 20

// Frame is one complete frame extracted from a Buffer.
type Frame struct {
	// Offset is the absolute stream offset of the length prefix.
	Offset int64
	// Payload aliases the Buffer's storage and is only valid until the next
	// call to Buffer.Feed.
	Payload []byte
}

// Pending describes the unconsumed bytes left in a Buffer.
type Pending struct {
	// Offset is the absolute stream offset of the first unconsumed byte.
	Offset int64
	// PrefixComplete is set when the length prefix could be read in full.
	PrefixComplete bool
	// Declared is the payload length named by the prefix. Only meaningful
	// when PrefixComplete is set.
	Declared uint64
	// Payload holds the payload bytes that are available. Empty when the
	// prefix is incomplete.
	Payload []byte
	// Available is the total number of unconsumed bytes, prefix included.
	Available int
}
