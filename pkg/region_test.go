package timetag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveAreaFUV(t *testing.T) {
	ref := BaselineRef{BLeft: 100., BRight: 16000., BLow: 10., BHigh: 1000.}
	events := NewEventTable(4, false)
	events.XCorr[0], events.YCorr[0] = 5000., 500. // inside
	events.XCorr[1], events.YCorr[1] = 101., 11.   // just inside the margin boundary
	events.XCorr[2], events.YCorr[2] = 100., 500.  // on the border, inside margin
	events.XCorr[3], events.YCorr[3] = 16500., 500.

	active := ActiveArea(events, "FUV", ref)
	assert.True(t, active[0])
	assert.False(t, active[1]) // margin excludes the first two pixels
	assert.False(t, active[2])
	assert.False(t, active[3])
}

func TestActiveAreaTracksCorrectedCoordinates(t *testing.T) {
	// The mask classifies the corrected position, so recomputing it
	// after a correction moved an event out of the active area must
	// reflect the move.
	ref := BaselineRef{BLeft: 100., BRight: 16000., BLow: 10., BHigh: 1000.}
	events := NewEventTable(1, false)
	events.XCorr[0], events.YCorr[0] = 5000., 500.
	require.True(t, ActiveArea(events, "FUV", ref)[0])

	events.XCorr[0] = 50.
	assert.False(t, ActiveArea(events, "FUV", ref)[0])
}

func TestActiveAreaNUV(t *testing.T) {
	events := NewEventTable(2, false)
	events.XCorr[1], events.YCorr[1] = 2000., 2000.
	active := ActiveArea(events, "NUV", BaselineRef{})
	assert.True(t, active[0])
	assert.True(t, active[1])
}

func TestComputeRegionsFUV(t *testing.T) {
	refs := &stubRefTables{traces: map[string]TracePosition{
		"FUVA/PSA": {BSpec: 400.},
		"FUVA/WCA": {BSpec: 560.},
	}}
	cfg := &Configuration{Detector: "FUV", Segment: "FUVA", OptElem: "G130M", CenWave: 1309}
	regions, err := ComputeRegions(refs, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 480., regions.FUVBoundary, 1e-9)

	_, sci := regions.InScience(479.)
	assert.True(t, sci)
	_, sci = regions.InScience(480.)
	assert.False(t, sci)
	_, wca := regions.InWavecal(480.)
	assert.True(t, wca)
}

func TestComputeRegionsNUVStripes(t *testing.T) {
	refs := &stubRefTables{traces: map[string]TracePosition{
		"NUVA/PSA": {BSpec: 100.},
		"NUVB/PSA": {BSpec: 200.},
		"NUVC/PSA": {BSpec: 300.},
		"NUVA/WCA": {BSpec: 600.},
		"NUVB/WCA": {BSpec: 700.},
		"NUVC/WCA": {BSpec: 800.},
	}}
	cfg := &Configuration{Detector: "NUV", Segment: "NUV", OptElem: "G230L", CenWave: 2950}
	regions, err := ComputeRegions(refs, cfg)
	require.NoError(t, err)

	// The lowest wavecal stripe starts where the highest science
	// stripe ends: the PSA-C/WCA-A midpoint.
	assert.InDelta(t, 450., regions.ScienceHigh[2], 1e-9)
	assert.InDelta(t, 450., regions.WavecalLow[0], 1e-9)

	stripe, ok := regions.InScience(120.)
	require.True(t, ok)
	assert.Equal(t, 0, stripe)
	stripe, ok = regions.InScience(250.)
	require.True(t, ok)
	assert.Equal(t, 2, stripe)

	stripe, ok = regions.InWavecal(620.)
	require.True(t, ok)
	assert.Equal(t, 0, stripe)
	stripe, ok = regions.InWavecal(1000.)
	require.True(t, ok)
	assert.Equal(t, 2, stripe)

	// Science and wavecal regions never overlap.
	for y := 0.; y < float64(NUVY); y += 7. {
		_, inSci := regions.InScience(y)
		_, inWca := regions.InWavecal(y)
		assert.False(t, inSci && inWca, "y = %f", y)
	}
}
