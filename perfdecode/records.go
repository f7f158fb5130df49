package perfdecode

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/DataExMachina-dev/perfview-go/perfrecord"
)

// DefaultChunkSize is the read size used by Chunks when none is given.
const DefaultChunkSize = 64 << 10

// Records decodes the stream delivered by chunks and yields its records in
// order: the Header, then Timeslices, then Warnings.
//
// The sequence is lazy: a chunk is only pulled once every record decoded
// from the previous ones has been yielded. It ends when chunks ends, after
// the end-of-input flush, or at the first error, which is yielded with a nil
// record. The sequence is single-pass; ranging over it again starts a new
// decoder over whatever chunks yields next.
func Records(chunks iter.Seq2[[]byte, error], opts ...Option) iter.Seq2[perfrecord.Record, error] {
	return func(yield func(perfrecord.Record, error) bool) {
		d := New(opts...)
		drain := func() bool {
			for {
				rec, ok := d.Pop()
				if !ok {
					return true
				}
				if !yield(rec, nil) {
					return false
				}
			}
		}
		for chunk, err := range chunks {
			if err != nil {
				yield(nil, fmt.Errorf("failed to read input: %w", err))
				return
			}
			feedErr := d.Feed(chunk)
			if !drain() {
				return
			}
			if feedErr != nil {
				yield(nil, feedErr)
				return
			}
		}
		finishErr := d.Finish()
		if !drain() {
			return
		}
		if finishErr != nil {
			yield(nil, finishErr)
		}
	}
}

// Chunks reads r in pieces of up to size bytes. A size of zero selects
// DefaultChunkSize. The yielded slice is reused between iterations.
func Chunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// ReadRecords decodes the stream read from r, chunkSize bytes at a time.
func ReadRecords(r io.Reader, chunkSize int, opts ...Option) iter.Seq2[perfrecord.Record, error] {
	return Records(Chunks(r, chunkSize), opts...)
}

// DecodeAll decodes a complete in-memory stream. Records decoded before a
// failure are returned along with the error.
func DecodeAll(stream []byte, opts ...Option) ([]perfrecord.Record, error) {
	d := New(opts...)
	err := d.Feed(stream)
	if err == nil {
		err = d.Finish()
	}
	var recs []perfrecord.Record
	for {
		rec, ok := d.Pop()
		if !ok {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
