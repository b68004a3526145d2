package timetag

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagBurstsFlagsHotWindow(t *testing.T) {
	// 100 s exposure at 1 count/s baseline, with a 10 s burst at 100
	// counts/s in the middle.
	times := []float64{}
	for i := 0; i < 100; i++ {
		times = append(times, float64(i)+0.5)
	}
	for i := 0; i < 1000; i++ {
		times = append(times, 40.+10.*float64(i)/1000.)
	}
	sort.Float64s(times)

	events := NewEventTable(len(times), false)
	copy(events.Time, times)
	active := make([]bool, len(times))
	for i := range active {
		active[i] = true
	}

	report := FlagBursts(events, active, 100., 10.)
	require.NotEmpty(t, report.Intervals)
	assert.Equal(t, Interval{Start: 40., Stop: 50.}, report.Intervals[0])
	assert.GreaterOrEqual(t, report.NFlagged, 1000)

	for i := range events.Time {
		inBurst := events.Time[i] >= 40. && events.Time[i] < 50.
		assert.Equal(t, inBurst, events.DQ[i]&DQBurst != 0, "event at %f", events.Time[i])
	}
}

func TestFlagBurstsQuietExposure(t *testing.T) {
	events := NewEventTable(100, false)
	active := make([]bool, 100)
	for i := range events.Time {
		events.Time[i] = float64(i)
		active[i] = true
	}
	report := FlagBursts(events, active, 100., 10.)
	assert.Zero(t, report.NFlagged)
	assert.Empty(t, report.Intervals)
}

func TestFilterByPulseHeight(t *testing.T) {
	events := NewEventTable(4, true)
	copy(events.Pha, []int16{1, 10, 30, 30})
	active := []bool{true, true, true, false}

	report := FilterByPulseHeight(events, active, PulseHeightLimits{Low: 2, High: 23})
	assert.Equal(t, 1, report.NLow)
	assert.Equal(t, 1, report.NHigh)
	assert.Equal(t, DQPHLow, events.DQ[0])
	assert.Zero(t, events.DQ[1])
	assert.Equal(t, DQPHHigh, events.DQ[2])
	assert.Zero(t, events.DQ[3]) // outside the active area, not tested
}

func TestFilterByPulseHeightNoColumn(t *testing.T) {
	events := NewEventTable(3, false)
	active := []bool{true, true, true}
	report := FilterByPulseHeight(events, active, PulseHeightLimits{Low: 2, High: 23})
	assert.Zero(t, report.NLow)
	assert.Zero(t, report.NHigh)
}
