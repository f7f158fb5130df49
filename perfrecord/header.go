package perfrecord

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Header field numbers.
const (
	headerName    protowire.Number = 1
	headerVersion protowire.Number = 2
	headerPresets protowire.Number = 3

	presetGroups protowire.Number = 1
	groupEvents  protowire.Number = 1

	mapKey   protowire.Number = 1
	mapValue protowire.Number = 2
)

// WirePreset is a preset as it is encoded on the wire: every event group is
// wrapped in an EventGroup message.
type WirePreset struct {
	Groups map[string]EventGroup
}

// EventGroup is the wire wrapper around the events of one group.
type EventGroup struct {
	Events []string
}

// FlattenPresets drops the EventGroup wrappers, hoisting each group's events
// directly under the group name. The result is never nil.
func FlattenPresets(wire map[string]WirePreset) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(wire))
	for preset, p := range wire {
		groups := make(map[string][]string, len(p.Groups))
		for name, g := range p.Groups {
			groups[name] = g.Events
		}
		out[preset] = groups
	}
	return out
}

// wrapPresets is the inverse of FlattenPresets.
func wrapPresets(presets map[string]map[string][]string) map[string]WirePreset {
	out := make(map[string]WirePreset, len(presets))
	for preset, groups := range presets {
		p := WirePreset{Groups: make(map[string]EventGroup, len(groups))}
		for name, events := range groups {
			p.Groups[name] = EventGroup{Events: events}
		}
		out[preset] = p
	}
	return out
}

// UnmarshalHeader decodes a Header payload and flattens its presets.
func UnmarshalHeader(b []byte) (*Header, error) {
	var h Header
	wire := make(map[string]WirePreset)
	err := walkFields("Header", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case headerName:
			v, n, err := consumeString("Header", "name", typ, b)
			h.Name = v
			return n, err
		case headerVersion:
			v, n, err := consumeString("Header", "version", typ, b)
			h.Version = v
			return n, err
		case headerPresets:
			entry, n, err := consumeBytes("Header", "presets", typ, b)
			if err != nil {
				return 0, err
			}
			name, p, err := unmarshalPresetEntry(entry)
			if err != nil {
				return 0, err
			}
			wire[name] = p
			return n, nil
		default:
			return 0, unknownField("Header", num)
		}
	})
	if err != nil {
		return nil, err
	}
	h.Presets = FlattenPresets(wire)
	return &h, nil
}

func unmarshalPresetEntry(b []byte) (string, WirePreset, error) {
	var name string
	p := WirePreset{Groups: make(map[string]EventGroup)}
	err := walkFields("Header.PresetsEntry", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case mapKey:
			v, n, err := consumeString("Header.PresetsEntry", "key", typ, b)
			name = v
			return n, err
		case mapValue:
			v, n, err := consumeBytes("Header.PresetsEntry", "value", typ, b)
			if err != nil {
				return 0, err
			}
			return n, unmarshalPreset(v, &p)
		default:
			return 0, unknownField("Header.PresetsEntry", num)
		}
	})
	return name, p, err
}

func unmarshalPreset(b []byte, p *WirePreset) error {
	return walkFields("Preset", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != presetGroups {
			return 0, unknownField("Preset", num)
		}
		entry, n, err := consumeBytes("Preset", "groups", typ, b)
		if err != nil {
			return 0, err
		}
		name, g, err := unmarshalGroupEntry(entry)
		if err != nil {
			return 0, err
		}
		p.Groups[name] = g
		return n, nil
	})
}

func unmarshalGroupEntry(b []byte) (string, EventGroup, error) {
	var name string
	var g EventGroup
	err := walkFields("Preset.GroupsEntry", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case mapKey:
			v, n, err := consumeString("Preset.GroupsEntry", "key", typ, b)
			name = v
			return n, err
		case mapValue:
			v, n, err := consumeBytes("Preset.GroupsEntry", "value", typ, b)
			if err != nil {
				return 0, err
			}
			g = EventGroup{}
			return n, unmarshalEventGroup(v, &g)
		default:
			return 0, unknownField("Preset.GroupsEntry", num)
		}
	})
	return name, g, err
}

func unmarshalEventGroup(b []byte, g *EventGroup) error {
	return walkFields("EventGroup", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != groupEvents {
			return 0, unknownField("EventGroup", num)
		}
		v, n, err := consumeString("EventGroup", "events", typ, b)
		if err != nil {
			return 0, err
		}
		g.Events = append(g.Events, v)
		return n, nil
	})
}

// MarshalHeader encodes h. Map entries are written in key order so that the
// encoding is deterministic.
func MarshalHeader(h *Header) []byte {
	var b []byte
	b = appendStringField(b, headerName, h.Name)
	b = appendStringField(b, headerVersion, h.Version)
	wire := wrapPresets(h.Presets)
	for _, name := range sortedKeys(wire) {
		var preset []byte
		p := wire[name]
		for _, group := range sortedKeys(p.Groups) {
			var events []byte
			for _, ev := range p.Groups[group].Events {
				events = appendBytesField(events, groupEvents, []byte(ev))
			}
			var entry []byte
			entry = appendBytesField(entry, mapKey, []byte(group))
			entry = appendBytesField(entry, mapValue, events)
			preset = appendBytesField(preset, presetGroups, entry)
		}
		var entry []byte
		entry = appendBytesField(entry, mapKey, []byte(name))
		entry = appendBytesField(entry, mapValue, preset)
		b = appendBytesField(b, headerPresets, entry)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
