package perfdecode

import (
	"errors"
	"fmt"

	"github.com/DataExMachina-dev/perfview-go/internal/framing"
)

// Error kinds. A fatal decode error is a *DecodeError whose Kind is one of
// these; match it with errors.Is.
var (
	// ErrMalformedHeader: the first frame is not a Header, or the stream
	// ended before a complete Header arrived.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrPhaseTransition: a frame in the timeslice phase decodes neither as
	// a Timeslice nor as a Warning.
	ErrPhaseTransition = errors.New("phase transition failure")
	// ErrMalformedWarning: a frame after the first Warning is not a Warning.
	ErrMalformedWarning = errors.New("malformed warning")
	// ErrTrailingMalformedFrame: the bytes left at end of input do not form
	// a complete frame.
	ErrTrailingMalformedFrame = errors.New("trailing malformed frame")
	// ErrInvalidLength: a length prefix overflows or exceeds the maximum
	// frame size.
	ErrInvalidLength = framing.ErrInvalidLength
	// ErrFinished is returned when feeding a decoder that has already been
	// finished or has failed.
	ErrFinished = errors.New("decoder finished")
)

// DecodeError describes a fatal decode failure.
type DecodeError struct {
	// Kind is one of the Err* kinds above.
	Kind error
	// Phase is the phase the decoder was in when the frame failed.
	Phase Phase
	// Offset is the absolute stream offset of the failing frame's length
	// prefix.
	Offset int64
	// Err is the underlying cause, usually a perfrecord.ErrSchemaMismatch.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v while %s at offset %d: %v", e.Kind, e.Phase, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
