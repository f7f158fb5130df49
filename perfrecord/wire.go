package perfrecord

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrSchemaMismatch is returned when a payload does not conform to the
// schema it is decoded with.
//
// Decoding is strict: unknown fields, wire-type mismatches and truncated
// values are all rejected. The stream carries no type tag, so strictness is
// what makes a failed trial decode a reliable signal.
var ErrSchemaMismatch = errors.New("payload does not match schema")

func mismatch(msg string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, msg, fmt.Sprintf(format, args...))
}

// fieldFunc consumes the value of one field from b and returns the number of
// bytes it used.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(msg string, b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return mismatch(msg, "bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func unknownField(msg string, num protowire.Number) error {
	return mismatch(msg, "unknown field %d", num)
}

func expectType(msg, field string, got, want protowire.Type) error {
	if got != want {
		return mismatch(msg, "field %s has wire type %d, want %d", field, got, want)
	}
	return nil
}

func consumeVarint(msg, field string, typ protowire.Type, b []byte) (uint64, int, error) {
	if err := expectType(msg, field, typ, protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, mismatch(msg, "field %s: %v", field, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeUint32(msg, field string, typ protowire.Type, b []byte) (uint32, int, error) {
	v, n, err := consumeVarint(msg, field, typ, b)
	if err != nil {
		return 0, 0, err
	}
	if v > math.MaxUint32 {
		return 0, 0, mismatch(msg, "field %s: value %d overflows uint32", field, v)
	}
	return uint32(v), n, nil
}

func consumeBytes(msg, field string, typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := expectType(msg, field, typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, mismatch(msg, "field %s: %v", field, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeString(msg, field string, typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := consumeBytes(msg, field, typ, b)
	if err != nil {
		return "", 0, err
	}
	// The conversion copies, so the result does not alias the payload.
	return string(v), n, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
