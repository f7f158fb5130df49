// Package perfstats summarizes a decoded capture stream.
package perfstats

import (
	"encoding/binary"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/DataExMachina-dev/perfview-go/perfrecord"
)

// DefaultTopStacks is the number of stacks kept in Summary.TopStacks unless
// configured otherwise.
const DefaultTopStacks = 10

// Summary describes a whole capture.
type Summary struct {
	Program string   `json:"program"`
	Version string   `json:"version"`
	Presets []string `json:"presets"`

	Timeslices uint64 `json:"timeslices"`
	Warnings   uint64 `json:"warnings"`
	// FirstTime and LastTime bound the timeslice timestamps.
	FirstTime  uint64            `json:"first_time"`
	LastTime   uint64            `json:"last_time"`
	TotalTicks uint64            `json:"total_ticks"`
	Threads    int               `json:"threads"`
	Events     map[string]uint64 `json:"events"`

	Throttles   uint64 `json:"throttles"`
	Unthrottles uint64 `json:"unthrottles"`
	// LastPeriod is the sampling period named by the last throttle or
	// unthrottle warning.
	LastPeriod  uint64 `json:"last_period,omitempty"`
	LostSamples uint64 `json:"lost_samples"`

	DistinctStacks int     `json:"distinct_stacks"`
	TopStacks      []Stack `json:"top_stacks,omitempty"`
}

// Stack is one distinct call stack and how often it was sampled.
type Stack struct {
	Hash    uint64 `json:"hash"`
	Samples uint64 `json:"samples"`
	Ticks   uint64 `json:"ticks"`
	// Frames holds the frame labels, innermost first.
	Frames []string `json:"frames"`
}

type threadKey struct {
	pid, tid uint32
}

// Aggregator accumulates records into a Summary. It is not safe for
// concurrent use.
type Aggregator struct {
	topN    int
	summary Summary
	threads map[threadKey]struct{}
	stacks  map[uint64]*Stack
	scratch []byte
}

// NewAggregator returns an Aggregator keeping the topN most sampled stacks.
// A topN of zero selects DefaultTopStacks; a negative topN keeps none.
func NewAggregator(topN int) *Aggregator {
	if topN == 0 {
		topN = DefaultTopStacks
	}
	return &Aggregator{
		topN:    topN,
		summary: Summary{Events: make(map[string]uint64)},
		threads: make(map[threadKey]struct{}),
		stacks:  make(map[uint64]*Stack),
	}
}

// Add folds rec into the summary.
func (a *Aggregator) Add(rec perfrecord.Record) {
	switch r := rec.(type) {
	case *perfrecord.Header:
		a.summary.Program = r.Name
		a.summary.Version = r.Version
		a.summary.Presets = r.PresetNames()
	case *perfrecord.Timeslice:
		a.addTimeslice(r)
	case *perfrecord.Warning:
		a.summary.Warnings++
		switch r.Type {
		case perfrecord.WarningThrottle:
			a.summary.Throttles++
			a.summary.LastPeriod = r.Period
		case perfrecord.WarningUnthrottle:
			a.summary.Unthrottles++
			a.summary.LastPeriod = r.Period
		case perfrecord.WarningLost:
			a.summary.LostSamples += r.Lost
		}
	}
}

func (a *Aggregator) addTimeslice(ts *perfrecord.Timeslice) {
	s := &a.summary
	if s.Timeslices == 0 || ts.CPUTime < s.FirstTime {
		s.FirstTime = ts.CPUTime
	}
	if ts.CPUTime > s.LastTime {
		s.LastTime = ts.CPUTime
	}
	s.Timeslices++
	s.TotalTicks += ts.NumTicks
	a.threads[threadKey{pid: ts.PID, tid: ts.TID}] = struct{}{}
	for name, count := range ts.Events {
		s.Events[name] += count
	}
	if len(ts.Frames) == 0 {
		return
	}

	h := a.hashStack(ts.Frames)
	st, ok := a.stacks[h]
	if !ok {
		st = &Stack{Hash: h, Frames: make([]string, len(ts.Frames))}
		for i, f := range ts.Frames {
			st.Frames[i] = f.Label()
		}
		a.stacks[h] = st
	}
	st.Samples++
	st.Ticks += ts.NumTicks
}

func (a *Aggregator) hashStack(frames []perfrecord.StackFrame) uint64 {
	b := a.scratch[:0]
	for _, f := range frames {
		b = binary.LittleEndian.AppendUint64(b, f.Address)
		b = append(b, f.Symbol...)
		b = append(b, 0)
		b = append(b, f.File...)
		b = append(b, 0)
		b = binary.LittleEndian.AppendUint32(b, uint32(f.Section))
	}
	a.scratch = b
	return xxh3.Hash(b)
}

// Summary returns the summary of the records added so far.
func (a *Aggregator) Summary() Summary {
	s := a.summary
	s.Threads = len(a.threads)
	s.DistinctStacks = len(a.stacks)
	s.Events = make(map[string]uint64, len(a.summary.Events))
	for k, v := range a.summary.Events {
		s.Events[k] = v
	}
	s.TopStacks = a.topStacks()
	return s
}

func (a *Aggregator) topStacks() []Stack {
	if a.topN < 0 || len(a.stacks) == 0 {
		return nil
	}
	all := make([]*Stack, 0, len(a.stacks))
	for _, st := range a.stacks {
		all = append(all, st)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Samples != all[j].Samples {
			return all[i].Samples > all[j].Samples
		}
		return all[i].Hash < all[j].Hash
	})
	if len(all) > a.topN {
		all = all[:a.topN]
	}
	out := make([]Stack, len(all))
	for i, st := range all {
		out[i] = *st
		out[i].Frames = append([]string(nil), st.Frames...)
	}
	return out
}
