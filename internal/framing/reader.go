package framing

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Reader extracts frames from a Buffer.
type Reader struct {
	buf          *Buffer
	maxFrameSize uint64
}

// NewReader returns a Reader consuming from buf. A maxFrameSize of zero
// selects DefaultMaxFrameSize.
func NewReader(buf *Buffer, maxFrameSize uint64) *Reader {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reader{buf: buf, maxFrameSize: maxFrameSize}
}

// Next returns the next complete frame and advances the cursor past it.
//
// If the length prefix is incomplete, or the payload it announces is not yet
// fully buffered, Next returns ErrInsufficientData and leaves the cursor
// before the prefix so that it is re-read once more bytes arrive.
func (r *Reader) Next() (Frame, error) {
	unread := r.buf.Unread()
	offset := r.buf.Offset()
	length, n, err := r.readPrefix(unread)
	if err != nil {
		return Frame{}, err
	}
	if uint64(len(unread)-n) < length {
		return Frame{}, ErrInsufficientData
	}
	end := n + int(length)
	r.buf.MarkConsumedUpTo(end)
	return Frame{
		Offset:  offset,
		Payload: unread[n:end:end],
	}, nil
}

// Pending describes the bytes left after the last complete frame. It does
// not move the cursor.
func (r *Reader) Pending() Pending {
	unread := r.buf.Unread()
	p := Pending{
		Offset:    r.buf.Offset(),
		Available: len(unread),
	}
	length, n, err := r.readPrefix(unread)
	if err != nil {
		return p
	}
	p.PrefixComplete = true
	p.Declared = length
	p.Payload = unread[n:]
	if uint64(len(p.Payload)) > length {
		p.Payload = p.Payload[:length]
	}
	return p
}

func (r *Reader) readPrefix(unread []byte) (length uint64, n int, err error) {
	if len(unread) == 0 {
		return 0, 0, ErrInsufficientData
	}
	length, n = protowire.ConsumeVarint(unread)
	if n < 0 {
		perr := protowire.ParseError(n)
		if errors.Is(perr, io.ErrUnexpectedEOF) {
			return 0, 0, ErrInsufficientData
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidLength, perr)
	}
	if length > r.maxFrameSize {
		return 0, 0, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrInvalidLength, length, r.maxFrameSize)
	}
	return length, n, nil
}
