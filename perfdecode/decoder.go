// Package perfdecode turns the collector's capture stream into records.
//
// The stream is a sequence of varint length-prefixed frames with no type
// tag. The first frame is a Header. Every following frame is decoded as a
// Timeslice until one fails to decode; that frame is retried once as a
// Warning, and from then on only Warnings are accepted. This trial order is
// part of the format and must not be extended with further fallbacks.
//
// A Decoder is fed chunks of any size in stream order and yields the same
// records however the stream is split.
package perfdecode

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/DataExMachina-dev/perfview-go/internal/fifo"
	"github.com/DataExMachina-dev/perfview-go/internal/framing"
	"github.com/DataExMachina-dev/perfview-go/perfrecord"
)

// Stats counts what a Decoder has processed.
type Stats struct {
	Frames     uint64
	Bytes      int64
	Headers    uint64
	Timeslices uint64
	Warnings   uint64
}

// Decoder decodes one capture stream. It is not safe for concurrent use;
// independent streams need independent decoders.
type Decoder struct {
	cfg    config
	log    log.FieldLogger
	buf    framing.Buffer
	frames *framing.Reader
	phase  Phase
	queue  fifo.Queue[perfrecord.Record]
	stats  Stats

	finished bool
	err      error
}

// New returns a Decoder awaiting the Header.
func New(opts ...Option) *Decoder {
	cfg := makeDefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	d := &Decoder{
		cfg:   cfg,
		log:   cfg.logger.WithField("decode_id", uuid.NewString()),
		phase: AwaitingHeader,
	}
	d.frames = framing.NewReader(&d.buf, cfg.maxFrameSize)
	return d
}

// Phase returns the current decode phase.
func (d *Decoder) Phase() Phase {
	return d.phase
}

// Stats returns the decoder's counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Buffered returns the number of bytes received but not yet decoded.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Err returns the fatal error that stopped the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Feed appends chunk to the stream and decodes every frame it completes.
// The decoded records are queued for Pop. The chunk may be reused by the
// caller once Feed returns.
//
// A fatal error stops the decoder: records decoded before the failing frame
// remain available from Pop, nothing after it is decoded, and later calls to
// Feed fail with ErrFinished.
func (d *Decoder) Feed(chunk []byte) error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrFinished, d.err)
	}
	if d.finished {
		return ErrFinished
	}
	d.buf.Feed(chunk)
	for {
		f, err := d.frames.Next()
		if errors.Is(err, framing.ErrInsufficientData) {
			return nil
		}
		if err != nil {
			return d.fail(ErrInvalidLength, d.buf.Offset(), err)
		}
		rec, err := d.decode(f.Payload, f.Offset)
		if err != nil {
			return d.stop(err)
		}
		d.emit(rec, d.buf.Offset()-f.Offset)
	}
}

// Finish signals the end of input. Bytes left over after the last complete
// frame are an error: ErrMalformedHeader if no Header was decoded yet,
// ErrTrailingMalformedFrame otherwise. A stream that ends without any Header
// also fails with ErrMalformedHeader.
//
// With WithLenientFlush, a final frame that is shorter than its declared
// length is decoded from the bytes that did arrive.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.finished {
		return nil
	}
	d.finished = true
	defer d.buf.Reset()

	kind := ErrTrailingMalformedFrame
	if d.phase == AwaitingHeader {
		kind = ErrMalformedHeader
	}
	if d.buf.Len() == 0 {
		if d.phase == AwaitingHeader {
			return d.fail(kind, d.buf.Offset(), errors.New("stream ended before the header"))
		}
		d.log.Debugf("Decoded %d frames (%d bytes): %d timeslices, %d warnings",
			d.stats.Frames, d.stats.Bytes, d.stats.Timeslices, d.stats.Warnings)
		return nil
	}

	p := d.frames.Pending()
	if !p.PrefixComplete {
		return d.fail(kind, p.Offset,
			fmt.Errorf("%d trailing bytes do not hold a complete length prefix", p.Available))
	}
	truncated := fmt.Errorf("frame declares %d bytes but only %d arrived", p.Declared, len(p.Payload))
	if !d.cfg.lenientFlush {
		return d.fail(kind, p.Offset, truncated)
	}
	rec, err := d.decode(p.Payload, p.Offset)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			err = de.Err
		}
		return d.fail(kind, p.Offset, errors.Join(truncated, err))
	}
	d.log.Warnf("Decoded truncated %s at offset %d: %v", rec.Kind(), p.Offset, truncated)
	d.emit(rec, int64(p.Available))
	return nil
}

// Pop returns the next decoded record. ok is false when no record is queued.
func (d *Decoder) Pop() (rec perfrecord.Record, ok bool) {
	return d.queue.PopFront()
}

// decode interprets one payload according to the current phase, advancing
// the phase on success. Failures are returned as a *DecodeError.
func (d *Decoder) decode(payload []byte, offset int64) (perfrecord.Record, error) {
	switch d.phase {
	case AwaitingHeader:
		h, err := perfrecord.UnmarshalHeader(payload)
		if err != nil {
			return nil, d.newError(ErrMalformedHeader, offset, err)
		}
		d.log.Debugf("Decoded header for %s %s with %d presets", h.Name, h.Version, len(h.Presets))
		d.advance(DecodingTimeslices)
		return h, nil

	case DecodingTimeslices:
		ts, tsErr := perfrecord.UnmarshalTimeslice(payload)
		if tsErr == nil {
			return ts, nil
		}
		// A frame that is not a Timeslice marks the start of the warnings.
		// It gets exactly one retry with the Warning schema.
		w, wErr := perfrecord.UnmarshalWarning(payload)
		if wErr != nil {
			return nil, d.newError(ErrPhaseTransition, offset, errors.Join(
				fmt.Errorf("as timeslice: %w", tsErr),
				fmt.Errorf("as warning: %w", wErr)))
		}
		d.log.Debugf("Switching to warnings at offset %d after %d timeslices",
			offset, d.stats.Timeslices)
		d.advance(DecodingWarnings)
		return w, nil

	case DecodingWarnings:
		w, err := perfrecord.UnmarshalWarning(payload)
		if err != nil {
			return nil, d.newError(ErrMalformedWarning, offset, err)
		}
		return w, nil

	default:
		panic(fmt.Sprintf("unexpected phase: %v", d.phase))
	}
}

func (d *Decoder) advance(next Phase) {
	if next <= d.phase {
		panic(fmt.Sprintf("phase cannot move from %v to %v", d.phase, next))
	}
	d.phase = next
}

func (d *Decoder) emit(rec perfrecord.Record, frameLen int64) {
	d.stats.Frames++
	d.stats.Bytes += frameLen
	switch rec.Kind() {
	case perfrecord.KindHeader:
		d.stats.Headers++
	case perfrecord.KindTimeslice:
		d.stats.Timeslices++
	case perfrecord.KindWarning:
		d.stats.Warnings++
	}
	d.queue.PushBack(rec)
}

func (d *Decoder) newError(kind error, offset int64, cause error) error {
	return &DecodeError{
		Kind:   kind,
		Phase:  d.phase,
		Offset: offset,
		Err:    cause,
	}
}

func (d *Decoder) fail(kind error, offset int64, cause error) error {
	return d.stop(d.newError(kind, offset, cause))
}

// stop records err as the decoder's fatal error and releases the buffer.
func (d *Decoder) stop(err error) error {
	d.err = err
	d.buf.Reset()
	d.log.Debugf("Decode failed: %v", d.err)
	return d.err
}
