package perfrecord

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes the payload of rec with the schema of its kind.
func Marshal(rec Record) ([]byte, error) {
	switch r := rec.(type) {
	case *Header:
		return MarshalHeader(r), nil
	case *Timeslice:
		return MarshalTimeslice(r), nil
	case *Warning:
		return MarshalWarning(r)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// AppendFrame appends rec to b as a length-prefixed frame.
func AppendFrame(b []byte, rec Record) ([]byte, error) {
	payload, err := Marshal(rec)
	if err != nil {
		return b, err
	}
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...), nil
}

// Encoder writes records as a capture stream. It does not enforce record
// order; writing a Header, then Timeslices, then Warnings is up to the
// caller.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes rec as one frame.
func (e *Encoder) Encode(rec Record) error {
	var err error
	e.buf, err = AppendFrame(e.buf[:0], rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.Kind(), err)
	}
	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", rec.Kind(), err)
	}
	return nil
}
