package perfrecord

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Timeslice field numbers.
const (
	timesliceCPUTime  protowire.Number = 1
	timeslicePID      protowire.Number = 2
	timesliceTID      protowire.Number = 3
	timesliceNumTicks protowire.Number = 4
	timesliceEvents   protowire.Number = 5
	timesliceFrames   protowire.Number = 6

	frameAddress protowire.Number = 1
	frameSymbol  protowire.Number = 2
	frameFile    protowire.Number = 3
	frameSection protowire.Number = 4
)

// UnmarshalTimeslice decodes a Timeslice payload. The returned Events map is
// never nil.
func UnmarshalTimeslice(b []byte) (*Timeslice, error) {
	ts := Timeslice{Events: make(map[string]uint64)}
	err := walkFields("Timeslice", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case timesliceCPUTime:
			v, n, err := consumeVarint("Timeslice", "cpu_time", typ, b)
			ts.CPUTime = v
			return n, err
		case timeslicePID:
			v, n, err := consumeUint32("Timeslice", "pid", typ, b)
			ts.PID = v
			return n, err
		case timesliceTID:
			v, n, err := consumeUint32("Timeslice", "tid", typ, b)
			ts.TID = v
			return n, err
		case timesliceNumTicks:
			v, n, err := consumeVarint("Timeslice", "num_ticks", typ, b)
			ts.NumTicks = v
			return n, err
		case timesliceEvents:
			entry, n, err := consumeBytes("Timeslice", "events", typ, b)
			if err != nil {
				return 0, err
			}
			name, count, err := unmarshalEventEntry(entry)
			if err != nil {
				return 0, err
			}
			ts.Events[name] = count
			return n, nil
		case timesliceFrames:
			v, n, err := consumeBytes("Timeslice", "frames", typ, b)
			if err != nil {
				return 0, err
			}
			f, err := unmarshalStackFrame(v)
			if err != nil {
				return 0, err
			}
			ts.Frames = append(ts.Frames, f)
			return n, nil
		default:
			return 0, unknownField("Timeslice", num)
		}
	})
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func unmarshalEventEntry(b []byte) (string, uint64, error) {
	var name string
	var count uint64
	err := walkFields("Timeslice.EventsEntry", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case mapKey:
			v, n, err := consumeString("Timeslice.EventsEntry", "key", typ, b)
			name = v
			return n, err
		case mapValue:
			v, n, err := consumeVarint("Timeslice.EventsEntry", "value", typ, b)
			count = v
			return n, err
		default:
			return 0, unknownField("Timeslice.EventsEntry", num)
		}
	})
	return name, count, err
}

func unmarshalStackFrame(b []byte) (StackFrame, error) {
	var f StackFrame
	err := walkFields("StackFrame", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case frameAddress:
			v, n, err := consumeVarint("StackFrame", "address", typ, b)
			f.Address = v
			return n, err
		case frameSymbol:
			v, n, err := consumeString("StackFrame", "symbol", typ, b)
			f.Symbol = v
			return n, err
		case frameFile:
			v, n, err := consumeString("StackFrame", "file", typ, b)
			f.File = v
			return n, err
		case frameSection:
			v, n, err := consumeVarint("StackFrame", "section", typ, b)
			if err != nil {
				return 0, err
			}
			// Enums are int32 on the wire.
			if v > math.MaxInt32 {
				return 0, mismatch("StackFrame", "section %d out of range", v)
			}
			f.Section = Section(v)
			return n, nil
		default:
			return 0, unknownField("StackFrame", num)
		}
	})
	return f, err
}

// MarshalTimeslice encodes ts. Events are written in name order.
func MarshalTimeslice(ts *Timeslice) []byte {
	var b []byte
	b = appendVarintField(b, timesliceCPUTime, ts.CPUTime)
	b = appendVarintField(b, timeslicePID, uint64(ts.PID))
	b = appendVarintField(b, timesliceTID, uint64(ts.TID))
	b = appendVarintField(b, timesliceNumTicks, ts.NumTicks)
	for _, name := range sortedKeys(ts.Events) {
		var entry []byte
		entry = appendBytesField(entry, mapKey, []byte(name))
		entry = appendVarintField(entry, mapValue, ts.Events[name])
		b = appendBytesField(b, timesliceEvents, entry)
	}
	for _, f := range ts.Frames {
		var frame []byte
		frame = appendVarintField(frame, frameAddress, f.Address)
		frame = appendStringField(frame, frameSymbol, f.Symbol)
		frame = appendStringField(frame, frameFile, f.File)
		frame = appendVarintField(frame, frameSection, uint64(f.Section))
		b = appendBytesField(b, timesliceFrames, frame)
	}
	return b
}
