package perfdecode

import "fmt"

// Phase is the decoder's expectation of which schema the next frame follows.
// Phases only ever advance.
type Phase uint8

const (
	AwaitingHeader Phase = iota
	DecodingTimeslices
	DecodingWarnings
)

func (p Phase) String() string {
	switch p {
	case AwaitingHeader:
		return "awaiting header"
	case DecodingTimeslices:
		return "decoding timeslices"
	case DecodingWarnings:
		return "decoding warnings"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}
