package perfrecord

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Warning field numbers.
const (
	warningType     protowire.Number = 1
	warningTime     protowire.Number = 2
	warningThrottle protowire.Number = 3
	warningLost     protowire.Number = 4

	throttlePeriod protowire.Number = 1
	lostCount      protowire.Number = 1
)

// UnmarshalWarning decodes a Warning payload. The type must be known and the
// payload must be the one the type calls for: a throttle payload for
// throttle and unthrottle warnings, a lost payload for lost warnings.
func UnmarshalWarning(b []byte) (*Warning, error) {
	var w Warning
	var hasThrottle, hasLost bool
	err := walkFields("Warning", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case warningType:
			v, n, err := consumeUint32("Warning", "type", typ, b)
			w.Type = WarningType(v)
			return n, err
		case warningTime:
			v, n, err := consumeVarint("Warning", "time", typ, b)
			w.Time = v
			return n, err
		case warningThrottle:
			v, n, err := consumeBytes("Warning", "throttle", typ, b)
			if err != nil {
				return 0, err
			}
			hasThrottle = true
			w.Period, err = unmarshalSingleVarint("Warning.Throttle", "period", throttlePeriod, v)
			return n, err
		case warningLost:
			v, n, err := consumeBytes("Warning", "lost", typ, b)
			if err != nil {
				return 0, err
			}
			hasLost = true
			w.Lost, err = unmarshalSingleVarint("Warning.Lost", "count", lostCount, v)
			return n, err
		default:
			return 0, unknownField("Warning", num)
		}
	})
	if err != nil {
		return nil, err
	}
	switch w.Type {
	case WarningThrottle, WarningUnthrottle:
		if !hasThrottle || hasLost {
			return nil, mismatch("Warning", "%s requires exactly a throttle payload", w.Type)
		}
	case WarningLost:
		if !hasLost || hasThrottle {
			return nil, mismatch("Warning", "%s requires exactly a lost payload", w.Type)
		}
	default:
		return nil, mismatch("Warning", "unknown type %d", uint32(w.Type))
	}
	return &w, nil
}

func unmarshalSingleVarint(msg, field string, want protowire.Number, b []byte) (uint64, error) {
	var v uint64
	err := walkFields(msg, b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != want {
			return 0, unknownField(msg, num)
		}
		var n int
		var err error
		v, n, err = consumeVarint(msg, field, typ, b)
		return n, err
	})
	return v, err
}

// MarshalWarning encodes w. It fails for an unknown warning type.
func MarshalWarning(w *Warning) ([]byte, error) {
	var payload []byte
	var num protowire.Number
	switch w.Type {
	case WarningThrottle, WarningUnthrottle:
		num = warningThrottle
		payload = appendVarintField(nil, throttlePeriod, w.Period)
	case WarningLost:
		num = warningLost
		payload = appendVarintField(nil, lostCount, w.Lost)
	default:
		return nil, fmt.Errorf("cannot marshal warning of unknown type %d", uint32(w.Type))
	}
	var b []byte
	b = appendVarintField(b, warningType, uint64(w.Type))
	b = appendVarintField(b, warningTime, w.Time)
	b = appendBytesField(b, num, payload)
	return b, nil
}
