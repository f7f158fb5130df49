// Package perfrecord defines the records produced by the native profiling
// collector and the schemas used to encode them on the wire.
//
// A capture stream holds exactly one Header, followed by any number of
// Timeslices, followed by any number of Warnings. Records are immutable once
// decoded.
package perfrecord

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the type of a Record.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindHeader
	KindTimeslice
	KindWarning
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindTimeslice:
		return "timeslice"
	case KindWarning:
		return "warning"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Record is one decoded message: a *Header, *Timeslice or *Warning.
type Record interface {
	Kind() Kind
	record()
}

// Header describes the profiled program and the event presets the collector
// was able to program. It is always the first record of a stream.
type Header struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Presets maps a preset name to its event groups, and each event group to
	// the ordered low-level events it is made of.
	Presets map[string]map[string][]string `json:"presets"`
}

func (*Header) Kind() Kind { return KindHeader }
func (*Header) record()    {}

// PresetNames returns the preset names in sorted order.
func (h *Header) PresetNames() []string {
	names := make([]string, 0, len(h.Presets))
	for name := range h.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns the low-level events of a preset across all of its groups,
// ordered by group name and deduplicated. It returns nil for an unknown
// preset.
func (h *Header) Events(preset string) []string {
	groups, ok := h.Presets[preset]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	seen := make(map[string]struct{})
	events := []string{}
	for _, name := range names {
		for _, ev := range groups[name] {
			if _, ok := seen[ev]; ok {
				continue
			}
			seen[ev] = struct{}{}
			events = append(events, ev)
		}
	}
	return events
}

// Timeslice is one periodic sample of a thread.
type Timeslice struct {
	// CPUTime is the sample timestamp. It is non-decreasing across a stream.
	CPUTime  uint64 `json:"cpu_time"`
	PID      uint32 `json:"pid"`
	TID      uint32 `json:"tid"`
	NumTicks uint64 `json:"num_ticks"`
	// Events maps an event name to its count over the slice.
	Events map[string]uint64 `json:"events"`
	// Frames is the call stack, innermost frame first.
	Frames []StackFrame `json:"frames,omitempty"`
}

func (*Timeslice) Kind() Kind { return KindTimeslice }
func (*Timeslice) record()    {}

// StackFrame is one entry of a Timeslice call stack.
type StackFrame struct {
	Address uint64  `json:"address"`
	Symbol  string  `json:"symbol,omitempty"`
	File    string  `json:"file,omitempty"`
	Section Section `json:"section"`
}

// Location returns the file the frame belongs to, falling back to the label
// of its binary section when the file is unknown.
func (f StackFrame) Location() string {
	if f.File != "" {
		return f.File
	}
	return f.Section.String()
}

// Label returns a display name for the frame: its symbol when known,
// otherwise its location and address.
func (f StackFrame) Label() string {
	if f.Symbol != "" {
		return f.Symbol
	}
	return fmt.Sprintf("%s+0x%x", f.Location(), f.Address)
}

// Section is the region of the address space a frame address falls into.
type Section uint32

const (
	SectionUnknown Section = iota
	SectionText
	SectionData
	SectionBSS
	SectionPLT
	SectionHeap
	SectionStack
	SectionVDSO
	SectionVsyscall
	SectionKernel
	SectionAnonymous
	SectionJIT
)

var sectionLabels = [...]string{
	SectionUnknown:   "[unknown]",
	SectionText:      "[text]",
	SectionData:      "[data]",
	SectionBSS:       "[bss]",
	SectionPLT:       "[plt]",
	SectionHeap:      "[heap]",
	SectionStack:     "[stack]",
	SectionVDSO:      "[vdso]",
	SectionVsyscall:  "[vsyscall]",
	SectionKernel:    "[kernel]",
	SectionAnonymous: "[anon]",
	SectionJIT:       "[jit]",
}

func (s Section) String() string {
	if int(s) < len(sectionLabels) {
		return sectionLabels[s]
	}
	return fmt.Sprintf("[section %d]", uint32(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Section) MarshalText() ([]byte, error) {
	return []byte(strings.Trim(s.String(), "[]")), nil
}

// Warning is a diagnostic emitted by the collector once sampling has ended.
type Warning struct {
	Type WarningType `json:"type"`
	Time uint64      `json:"time"`
	// Period is the new sampling period of a throttle or unthrottle warning.
	Period uint64 `json:"period,omitempty"`
	// Lost is the number of samples dropped, for WarningLost.
	Lost uint64 `json:"lost,omitempty"`
}

func (*Warning) Kind() Kind { return KindWarning }
func (*Warning) record()    {}

// WarningType is the kind of a Warning.
type WarningType uint32

const (
	WarningUnspecified WarningType = iota
	WarningThrottle
	WarningUnthrottle
	WarningLost
)

var warningTypeNames = map[WarningType]string{
	WarningThrottle:   "PERF_RECORD_THROTTLE",
	WarningUnthrottle: "PERF_RECORD_UNTHROTTLE",
	WarningLost:       "PERF_RECORD_LOST",
}

func (t WarningType) String() string {
	if name, ok := warningTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("WARNING_TYPE_%d", uint32(t))
}

// Valid reports whether t names a known warning type.
func (t WarningType) Valid() bool {
	_, ok := warningTypeNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t WarningType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseWarningType returns the type named by s, as printed by String.
func ParseWarningType(s string) (WarningType, error) {
	for t, name := range warningTypeNames {
		if name == s {
			return t, nil
		}
	}
	return WarningUnspecified, fmt.Errorf("unknown warning type: %q", s)
}
