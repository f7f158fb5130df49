package perfstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/perfview-go/perfrecord"
)

var (
	hot = []perfrecord.StackFrame{
		{Address: 0x10, Symbol: "spin"},
		{Address: 0x20, Symbol: "main"},
	}
	cold = []perfrecord.StackFrame{
		{Address: 0x7f00, Section: perfrecord.SectionVDSO},
		{Address: 0x20, Symbol: "main"},
	}
)

func records() []perfrecord.Record {
	return []perfrecord.Record{
		&perfrecord.Header{Name: "prog", Version: "1.0", Presets: map[string]map[string][]string{
			"b": {}, "a": {"g": {"cycles"}},
		}},
		&perfrecord.Timeslice{CPUTime: 100, PID: 1, TID: 1, NumTicks: 2, Events: map[string]uint64{"cycles": 10}, Frames: hot},
		&perfrecord.Timeslice{CPUTime: 200, PID: 1, TID: 2, NumTicks: 3, Events: map[string]uint64{"cycles": 5}, Frames: hot},
		&perfrecord.Timeslice{CPUTime: 300, PID: 1, TID: 1, NumTicks: 1, Events: map[string]uint64{"misses": 1}, Frames: cold},
		&perfrecord.Timeslice{CPUTime: 400, PID: 1, TID: 1, Events: map[string]uint64{}},
		&perfrecord.Warning{Type: perfrecord.WarningThrottle, Time: 410, Period: 4000},
		&perfrecord.Warning{Type: perfrecord.WarningUnthrottle, Time: 420, Period: 1000},
		&perfrecord.Warning{Type: perfrecord.WarningLost, Time: 430, Lost: 5},
		&perfrecord.Warning{Type: perfrecord.WarningLost, Time: 440, Lost: 2},
	}
}

func TestAggregator(t *testing.T) {
	a := NewAggregator(0)
	for _, rec := range records() {
		a.Add(rec)
	}
	s := a.Summary()

	assert.Equal(t, "prog", s.Program)
	assert.Equal(t, "1.0", s.Version)
	assert.Equal(t, []string{"a", "b"}, s.Presets)
	assert.Equal(t, uint64(4), s.Timeslices)
	assert.Equal(t, uint64(4), s.Warnings)
	assert.Equal(t, uint64(100), s.FirstTime)
	assert.Equal(t, uint64(400), s.LastTime)
	assert.Equal(t, uint64(6), s.TotalTicks)
	assert.Equal(t, 2, s.Threads)
	assert.Equal(t, map[string]uint64{"cycles": 15, "misses": 1}, s.Events)
	assert.Equal(t, uint64(1), s.Throttles)
	assert.Equal(t, uint64(1), s.Unthrottles)
	assert.Equal(t, uint64(1000), s.LastPeriod)
	assert.Equal(t, uint64(7), s.LostSamples)
	assert.Equal(t, 2, s.DistinctStacks)

	require.Len(t, s.TopStacks, 2)
	assert.Equal(t, uint64(2), s.TopStacks[0].Samples)
	assert.Equal(t, uint64(5), s.TopStacks[0].Ticks)
	assert.Equal(t, []string{"spin", "main"}, s.TopStacks[0].Frames)
	assert.Equal(t, []string{"[vdso]+0x7f00", "main"}, s.TopStacks[1].Frames)
}

func TestAggregatorTopN(t *testing.T) {
	a := NewAggregator(1)
	for _, rec := range records() {
		a.Add(rec)
	}
	s := a.Summary()
	require.Len(t, s.TopStacks, 1)
	assert.Equal(t, []string{"spin", "main"}, s.TopStacks[0].Frames)

	a = NewAggregator(-1)
	for _, rec := range records() {
		a.Add(rec)
	}
	assert.Nil(t, a.Summary().TopStacks)
	assert.Equal(t, 2, a.Summary().DistinctStacks)
}

func TestSummaryIsASnapshot(t *testing.T) {
	a := NewAggregator(0)
	recs := records()
	a.Add(recs[0])
	a.Add(recs[1])
	s := a.Summary()
	s.Events["cycles"] = 0
	s.TopStacks[0].Frames[0] = "changed"

	again := a.Summary()
	assert.Equal(t, uint64(10), again.Events["cycles"])
	assert.Equal(t, "spin", again.TopStacks[0].Frames[0])
}

func TestStackHashDistinguishesFrames(t *testing.T) {
	a := NewAggregator(0)
	h1 := a.hashStack(hot)
	h2 := a.hashStack(cold)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, h1, a.hashStack(hot))
}
