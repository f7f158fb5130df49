package framing

// Buffer accumulates stream bytes that have arrived but not been consumed.
//
// Only the unconsumed tail survives a Feed; the consumed prefix is dropped
// before new bytes are appended, so memory is bounded by the largest frame
// plus one chunk rather than by the stream length.
type Buffer struct {
	buf []byte
	// pos is the read cursor, relative to buf.
	pos int
	// base is the absolute stream offset of buf[0].
	base int64
}

// Feed appends chunk after the unconsumed tail. The chunk is copied; the
// caller may reuse it.
func (b *Buffer) Feed(chunk []byte) {
	if b.pos > 0 {
		n := copy(b.buf, b.buf[b.pos:])
		b.base += int64(b.pos)
		b.buf = b.buf[:n]
		b.pos = 0
	}
	b.buf = append(b.buf, chunk...)
}

// MarkConsumedUpTo moves the read cursor to pos, which is relative to the
// slice returned by Unread at the time of the call's matching read. Bytes
// before the cursor are released on the next Feed.
func (b *Buffer) MarkConsumedUpTo(pos int) {
	if pos < 0 || pos > len(b.buf)-b.pos {
		panic("framing: consumed position out of range")
	}
	b.pos += pos
}

// Unread returns the unconsumed bytes. The slice aliases the Buffer.
func (b *Buffer) Unread() []byte {
	return b.buf[b.pos:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.pos
}

// Offset returns the absolute stream offset of the read cursor.
func (b *Buffer) Offset() int64 {
	return b.base + int64(b.pos)
}

// Reset drops all buffered bytes and releases the storage.
func (b *Buffer) Reset() {
	b.base = b.Offset() + int64(b.Len())
	b.buf = nil
	b.pos = 0
}
