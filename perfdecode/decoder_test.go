package perfdecode

import (
	"bytes"
	"errors"
	"iter"
	"math/rand"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/DataExMachina-dev/perfview-go/perfrecord"
)

func quiet() Option {
	l, _ := logtest.NewNullLogger()
	return WithLogger(l)
}

func encode(t *testing.T, recs ...perfrecord.Record) []byte {
	t.Helper()
	var b []byte
	for _, rec := range recs {
		var err error
		b, err = perfrecord.AppendFrame(b, rec)
		require.NoError(t, err)
	}
	return b
}

// rawFrame frames an arbitrary payload.
func rawFrame(payload []byte) []byte {
	return append(protowire.AppendVarint(nil, uint64(len(payload))), payload...)
}

func chunksOf(parts ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func split(b []byte, size int) [][]byte {
	var parts [][]byte
	for len(b) > size {
		parts = append(parts, b[:size])
		b = b[size:]
	}
	return append(parts, b)
}

func collect(seq iter.Seq2[perfrecord.Record, error]) ([]perfrecord.Record, error) {
	var recs []perfrecord.Record
	for rec, err := range seq {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func scenario() []perfrecord.Record {
	return []perfrecord.Record{
		&perfrecord.Header{Name: "prog", Version: "1.0", Presets: map[string]map[string][]string{}},
		&perfrecord.Timeslice{CPUTime: 100, PID: 1, TID: 1, NumTicks: 1, Events: map[string]uint64{}},
		&perfrecord.Timeslice{CPUTime: 200, PID: 1, TID: 1, NumTicks: 1, Events: map[string]uint64{}},
		&perfrecord.Warning{Type: perfrecord.WarningLost, Time: 250, Lost: 5},
	}
}

func TestTwoChunksSplitMidFrame(t *testing.T) {
	want := scenario()
	data := encode(t, want...)
	for at := 1; at < len(data); at++ {
		got, err := collect(Records(chunksOf(data[:at], data[at:]), quiet()))
		require.NoError(t, err, "split at %d", at)
		require.Equal(t, want, got, "split at %d", at)
	}
}

func richStream() []perfrecord.Record {
	recs := []perfrecord.Record{&perfrecord.Header{
		Name:    "prog",
		Version: "2.3",
		Presets: map[string]map[string][]string{
			"default": {"cycles": {"cpu-cycles"}, "mem": {"cache-misses", "cache-references"}},
		},
	}}
	for i := 0; i < 50; i++ {
		recs = append(recs, &perfrecord.Timeslice{
			CPUTime:  uint64(1000 * i),
			PID:      7,
			TID:      uint32(7 + i%3),
			NumTicks: uint64(i),
			Events:   map[string]uint64{"cpu-cycles": uint64(i * 97), "cache-misses": uint64(i)},
			Frames: []perfrecord.StackFrame{
				{Address: 0x1000 + uint64(i), Symbol: "leaf", File: "/bin/prog", Section: perfrecord.SectionText},
				{Address: 0x7f00, Section: perfrecord.SectionVDSO},
				{Address: 0x2000, Symbol: "main"},
			},
		})
	}
	recs = append(recs,
		&perfrecord.Warning{Type: perfrecord.WarningThrottle, Time: 50000, Period: 4000},
		&perfrecord.Warning{Type: perfrecord.WarningUnthrottle, Time: 50010, Period: 1000},
		&perfrecord.Warning{Type: perfrecord.WarningLost, Time: 50020, Lost: 12},
	)
	return recs
}

func TestChunkBoundaryInvariance(t *testing.T) {
	want := richStream()
	data := encode(t, want...)

	whole, err := collect(Records(chunksOf(data), quiet()))
	require.NoError(t, err)
	require.Equal(t, want, whole)

	bytewise, err := collect(Records(chunksOf(split(data, 1)...), quiet()))
	require.NoError(t, err)
	require.Equal(t, whole, bytewise)

	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 20; round++ {
		var parts [][]byte
		rest := data
		for len(rest) > 0 {
			n := 1 + rng.Intn(300)
			if n > len(rest) {
				n = len(rest)
			}
			parts = append(parts, rest[:n])
			rest = rest[n:]
		}
		got, err := collect(Records(chunksOf(parts...), quiet()))
		require.NoError(t, err)
		require.Equal(t, whole, got, "round %d", round)
	}
}

func TestEmptyChunksAreHarmless(t *testing.T) {
	data := encode(t, scenario()...)
	got, err := collect(Records(chunksOf(nil, data[:3], []byte{}, data[3:], nil), quiet()))
	require.NoError(t, err)
	assert.Equal(t, scenario(), got)
}

func TestHeaderOnly(t *testing.T) {
	h := scenario()[0]
	d := New(quiet())
	require.NoError(t, d.Feed(encode(t, h)))
	require.NoError(t, d.Finish())
	rec, ok := d.Pop()
	require.True(t, ok)
	assert.Equal(t, h, rec)
	_, ok = d.Pop()
	assert.False(t, ok)
	assert.Equal(t, DecodingTimeslices, d.Phase())
}

func TestMalformedHeader(t *testing.T) {
	payload := perfrecord.MarshalHeader(&perfrecord.Header{Name: "prog", Version: "1.0"})
	full := rawFrame(payload)

	tests := map[string][]byte{
		// The prefix announces the full payload but the last byte never arrives.
		"stream truncated": full[:len(full)-1],
		// The frame is complete but its payload lost its last byte.
		"payload truncated": rawFrame(payload[:len(payload)-1]),
		"not a header":      encode(t, &perfrecord.Warning{Type: perfrecord.WarningLost, Lost: 1}),
		"empty stream":      nil,
		"partial prefix":    {0x80},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			recs, err := DecodeAll(data, quiet())
			require.ErrorIs(t, err, ErrMalformedHeader)
			assert.Empty(t, recs)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, AwaitingHeader, de.Phase)
			assert.Equal(t, int64(0), de.Offset)
		})
	}
}

func TestPivotAcceptsOnlyWarnings(t *testing.T) {
	want := []perfrecord.Record{
		scenario()[0],
		scenario()[1],
		&perfrecord.Warning{Type: perfrecord.WarningThrottle, Time: 120, Period: 8000},
	}
	data := encode(t, want...)
	// A well-formed Timeslice after the pivot is not a Warning.
	tailOffset := int64(len(data))
	data = append(data, encode(t, scenario()[2])...)

	d := New(quiet())
	err := d.Feed(data)
	require.ErrorIs(t, err, ErrMalformedWarning)
	require.ErrorIs(t, err, perfrecord.ErrSchemaMismatch)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DecodingWarnings, de.Phase)
	assert.Equal(t, tailOffset, de.Offset)

	var got []perfrecord.Record
	for rec, ok := d.Pop(); ok; rec, ok = d.Pop() {
		got = append(got, rec)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, DecodingWarnings, d.Phase())
}

func TestPhaseTransitionFailure(t *testing.T) {
	data := encode(t, scenario()[:2]...)
	badOffset := int64(len(data))
	// Field 9 is unknown to both the Timeslice and the Warning schema.
	bad := protowire.AppendTag(nil, 9, protowire.VarintType)
	bad = protowire.AppendVarint(bad, 1)
	data = append(data, rawFrame(bad)...)
	data = append(data, encode(t, scenario()[2])...)

	recs, err := collect(Records(chunksOf(split(data, 5)...), quiet()))
	require.ErrorIs(t, err, ErrPhaseTransition)
	assert.Equal(t, scenario()[:2], recs)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DecodingTimeslices, de.Phase)
	assert.Equal(t, badOffset, de.Offset)
	assert.Contains(t, de.Error(), "phase transition failure while decoding timeslices")
}

func TestTrailingMalformedFrame(t *testing.T) {
	data := encode(t, scenario()...)
	next, err := perfrecord.AppendFrame(nil, &perfrecord.Warning{Type: perfrecord.WarningLost, Time: 300, Lost: 1})
	require.NoError(t, err)

	tests := map[string][]byte{
		"truncated payload": next[:len(next)-1],
		"prefix only":       next[:1],
		"partial prefix":    {0xff},
	}
	for name, tail := range tests {
		t.Run(name, func(t *testing.T) {
			stream := append(append([]byte{}, data...), tail...)
			recs, err := collect(Records(chunksOf(stream), quiet()))
			require.ErrorIs(t, err, ErrTrailingMalformedFrame)
			assert.Equal(t, scenario(), recs)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, int64(len(data)), de.Offset)
		})
	}
}

func TestLenientFlush(t *testing.T) {
	data := encode(t, scenario()...)
	last, err := perfrecord.MarshalWarning(&perfrecord.Warning{Type: perfrecord.WarningLost, Time: 300, Lost: 1})
	require.NoError(t, err)

	t.Run("decodable tail", func(t *testing.T) {
		// The prefix claims more bytes than were written.
		stream := append(append([]byte{}, data...), protowire.AppendVarint(nil, uint64(len(last)+4))...)
		stream = append(stream, last...)

		logger, hook := logtest.NewNullLogger()
		recs, err := collect(Records(chunksOf(stream), WithLogger(logger), WithLenientFlush()))
		require.NoError(t, err)
		require.Len(t, recs, 5)
		assert.Equal(t, &perfrecord.Warning{Type: perfrecord.WarningLost, Time: 300, Lost: 1}, recs[4])

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, log.WarnLevel, entry.Level)
		assert.Contains(t, entry.Message, "truncated warning")
	})

	t.Run("undecodable tail", func(t *testing.T) {
		stream := append(append([]byte{}, data...), protowire.AppendVarint(nil, uint64(len(last)+4))...)
		stream = append(stream, last[:len(last)-1]...)
		recs, err := collect(Records(chunksOf(stream), quiet(), WithLenientFlush()))
		require.ErrorIs(t, err, ErrTrailingMalformedFrame)
		assert.Equal(t, scenario(), recs)
	})

	t.Run("strict by default", func(t *testing.T) {
		stream := append(append([]byte{}, data...), protowire.AppendVarint(nil, uint64(len(last)+4))...)
		stream = append(stream, last...)
		_, err := collect(Records(chunksOf(stream), quiet()))
		require.ErrorIs(t, err, ErrTrailingMalformedFrame)
	})
}

func TestMaxFrameSize(t *testing.T) {
	data := encode(t, richStream()...)
	d := New(quiet(), WithMaxFrameSize(8))
	err := d.Feed(data)
	require.ErrorIs(t, err, ErrInvalidLength)
	_, ok := d.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, d.Buffered())

	t.Setenv(ENV_MAX_FRAME_SIZE, "8")
	_, err = DecodeAll(data, quiet())
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = DecodeAll(data, quiet(), WithMaxFrameSize(1<<20))
	require.NoError(t, err)
}

func TestFeedAfterFailureOrFinish(t *testing.T) {
	d := New(quiet())
	require.Error(t, d.Feed([]byte{0x01, 0x48}))
	err := d.Feed(encode(t, scenario()[0]))
	require.ErrorIs(t, err, ErrFinished)
	require.ErrorIs(t, err, ErrMalformedHeader)
	require.ErrorIs(t, d.Finish(), ErrMalformedHeader)
	require.ErrorIs(t, d.Err(), ErrMalformedHeader)

	d = New(quiet())
	require.NoError(t, d.Feed(encode(t, scenario()[0])))
	require.NoError(t, d.Finish())
	require.NoError(t, d.Finish())
	require.ErrorIs(t, d.Feed(nil), ErrFinished)
}

func TestIndependentDecoders(t *testing.T) {
	data := encode(t, scenario()...)
	a, b := New(quiet()), New(quiet())
	for i := range data {
		require.NoError(t, a.Feed(data[i:i+1]))
		if i < len(data)/2 {
			require.NoError(t, b.Feed(data[i:i+1]))
		}
	}
	require.NoError(t, a.Finish())
	assert.Equal(t, DecodingWarnings, a.Phase())
	assert.NotEqual(t, DecodingWarnings, b.Phase())
	assert.Greater(t, b.Buffered(), 0)
}

func TestStats(t *testing.T) {
	data := encode(t, richStream()...)
	d := New(quiet())
	for _, part := range split(data, 17) {
		require.NoError(t, d.Feed(part))
	}
	require.NoError(t, d.Finish())
	assert.Equal(t, Stats{
		Frames:     54,
		Bytes:      int64(len(data)),
		Headers:    1,
		Timeslices: 50,
		Warnings:   3,
	}, d.Stats())
}

func TestRecordsIsLazy(t *testing.T) {
	data := encode(t, scenario()...)
	pulled := 0
	chunks := func(yield func([]byte, error) bool) {
		for _, p := range split(data, 1) {
			pulled++
			if !yield(p, nil) {
				return
			}
		}
	}
	for rec := range Records(chunks, quiet()) {
		require.Equal(t, perfrecord.KindHeader, rec.Kind())
		break
	}
	headerLen := len(encode(t, scenario()[0]))
	assert.Equal(t, headerLen, pulled)
}

func TestRecordsPropagatesReadError(t *testing.T) {
	boom := errors.New("boom")
	data := encode(t, scenario()...)
	chunks := func(yield func([]byte, error) bool) {
		if !yield(data[:len(data)/2], nil) {
			return
		}
		yield(nil, boom)
	}
	recs, err := collect(Records(chunks, quiet()))
	require.ErrorIs(t, err, boom)
	assert.NotEmpty(t, recs)
}

type oneByteReader struct{ r *bytes.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestReadRecords(t *testing.T) {
	want := richStream()
	data := encode(t, want...)
	for name, chunkSize := range map[string]int{"default": 0, "tiny": 3, "odd": 1021} {
		t.Run(name, func(t *testing.T) {
			got, err := collect(ReadRecords(bytes.NewReader(data), chunkSize, quiet()))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
	got, err := collect(ReadRecords(oneByteReader{bytes.NewReader(data)}, 64, quiet()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
