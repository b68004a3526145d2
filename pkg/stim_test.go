package timetag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stimTestRef = BaselineRef{
	SX1: 1000., SY1: 100.,
	SX2: 15000., SY2: 900.,
	XWidth: 25., YWidth: 25.,
	BLow: 0., BHigh: 1023., BLeft: 0., BRight: 16383.,
}

// stimEvents builds a table from (time, x, y) triples, which must be
// ordered by time.
func stimEvents(positions [][3]float64) *EventTable {
	events := NewEventTable(len(positions), false)
	for i, p := range positions {
		events.Time[i] = p[0]
		events.RawX[i] = float32(p[1])
		events.RawY[i] = float32(p[2])
		events.XCorr[i] = float32(p[1])
		events.YCorr[i] = float32(p[2])
	}
	return events
}

func TestFindStimCentroid(t *testing.T) {
	events := stimEvents([][3]float64{
		{0.1, 1002., 101.},
		{0.2, 1004., 103.},
		{0.3, 500., 500.}, // outside the search box
	})
	pos := findStim(events, 0, events.NEvents(), 1000., 100., 25., 25.)
	require.True(t, pos.Found)
	assert.Equal(t, 2, pos.Counts)
	assert.InDelta(t, 1003., pos.X, 1e-9)
	assert.InDelta(t, 102., pos.Y, 1e-9)
}

func TestFindStimNotFound(t *testing.T) {
	events := stimEvents([][3]float64{{0.1, 500., 500.}})
	pos := findStim(events, 0, events.NEvents(), 1000., 100., 25., 25.)
	assert.False(t, pos.Found)
	assert.Zero(t, pos.Counts)
}

func TestThermalParamIdentity(t *testing.T) {
	// Measured centroids exactly at the reference positions give the
	// identity transform.
	s1 := StimPosition{Found: true, X: stimTestRef.SX1, Y: stimTestRef.SY1}
	s2 := StimPosition{Found: true, X: stimTestRef.SX2, Y: stimTestRef.SY2}
	param := thermalParam(s1, s2, stimTestRef)
	assert.True(t, param.IsIdentity())
}

func TestThermalParamMissingStimIsIdentity(t *testing.T) {
	s2 := StimPosition{Found: true, X: stimTestRef.SX2, Y: stimTestRef.SY2}
	param := thermalParam(StimPosition{}, s2, stimTestRef)
	assert.True(t, param.IsIdentity())
}

func TestThermalOffsetRecovery(t *testing.T) {
	// Both stims measured offset by a known (dx, dy); the derived map
	// must remove exactly that offset from an event at the stim
	// location.
	dx, dy := 3., -2.
	events := stimEvents([][3]float64{
		{0.1, stimTestRef.SX1 + dx, stimTestRef.SY1 + dy},
		{0.2, stimTestRef.SX1 + dx, stimTestRef.SY1 + dy},
		{0.3, stimTestRef.SX2 + dx, stimTestRef.SY2 + dy},
		{0.4, stimTestRef.SX2 + dx, stimTestRef.SY2 + dy},
	})
	summary := TrackStims(events, stimTestRef, 1., nil)
	require.Len(t, summary.Windows, 1)
	param := summary.Windows[0].Param
	require.False(t, param.IsIdentity())

	atX := stimTestRef.SX1 + dx
	atY := stimTestRef.SY1 + dy
	assert.InDelta(t, stimTestRef.SX1, param.XIntercept+param.XSlope*atX, 1e-6)
	assert.InDelta(t, stimTestRef.SY1, param.YIntercept+param.YSlope*atY, 1e-6)

	applied := ApplyThermalDistortion(events, summary)
	assert.True(t, applied)
	assert.InDelta(t, stimTestRef.SX1, float64(events.XCorr[0]), 1e-3)
	assert.InDelta(t, stimTestRef.SY1, float64(events.YCorr[0]), 1e-3)
	assert.InDelta(t, stimTestRef.SX2, float64(events.XCorr[2]), 1e-3)
	assert.InDelta(t, stimTestRef.SY2, float64(events.YCorr[2]), 1e-3)
}

func TestTrackStimsHoldLastValue(t *testing.T) {
	// The stims appear only in the first of two windows; the second
	// window reuses the held centroids with zero counts.
	ref := stimTestRef
	ref.Timestep = 10.
	events := stimEvents([][3]float64{
		{1., ref.SX1, ref.SY1},
		{2., ref.SX2, ref.SY2},
		{15., 5000., 500.},
	})
	summary := TrackStims(events, ref, 20., nil)
	require.Len(t, summary.Windows, 2)

	second := summary.Windows[1]
	assert.True(t, second.Stim1.Found)
	assert.True(t, second.Stim2.Found)
	assert.Zero(t, second.Stim1.Counts)
	assert.InDelta(t, ref.SX1, second.Stim1.X, 1e-9)
}

func TestTrackStimsSeedsHeldPositionsFromReference(t *testing.T) {
	// Stim 1 is never detected; the held position starts at the
	// reference, so a window with only stim 2 measured still gets a
	// partial correction instead of the identity.
	events := stimEvents([][3]float64{
		{0.1, stimTestRef.SX2 + 4., stimTestRef.SY2 + 4.},
		{0.2, stimTestRef.SX2 + 4., stimTestRef.SY2 + 4.},
	})
	summary := TrackStims(events, stimTestRef, 1., nil)
	require.Len(t, summary.Windows, 1)
	win := summary.Windows[0]
	assert.True(t, win.Stim1.Found)
	assert.Zero(t, win.Stim1.Counts)
	assert.InDelta(t, stimTestRef.SX1, win.Stim1.X, 1e-9)
	require.False(t, win.Param.IsIdentity())
	// The derived map still takes the measured stim 2 back to its
	// reference position.
	assert.InDelta(t, stimTestRef.SX2,
		win.Param.XIntercept+win.Param.XSlope*(stimTestRef.SX2+4.), 1e-6)
}

func TestTrackStimsDiagnosticsIndef(t *testing.T) {
	events := stimEvents([][3]float64{{0.5, 5000., 500.}})
	var log bytes.Buffer
	TrackStims(events, stimTestRef, 1., &log)
	line := strings.TrimSpace(log.String())
	assert.Contains(t, line, "INDEF")
}

func TestStimSummaryAverages(t *testing.T) {
	ref := stimTestRef
	ref.Timestep = 10.
	events := stimEvents([][3]float64{
		{1., ref.SX1 + 1., ref.SY1},
		{2., ref.SX2, ref.SY2},
		{11., ref.SX1 + 3., ref.SY1},
		{12., ref.SX2, ref.SY2},
	})
	summary := TrackStims(events, ref, 20., nil)
	require.True(t, summary.Found1)
	// Equal weights in both windows: the average splits the offsets.
	assert.InDelta(t, ref.SX1+2., summary.AvgX1, 1e-9)
	assert.InDelta(t, ref.SY1, summary.AvgY1, 1e-9)
}
