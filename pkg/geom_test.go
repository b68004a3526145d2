package timetag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRandomDitherBounded(t *testing.T) {
	events := NewEventTable(100, false)
	for i := range events.RawX {
		events.RawX[i] = 50.
		events.RawY[i] = 60.
		events.XCorr[i] = 50.
		events.YCorr[i] = 60.
	}
	active := make([]bool, 100)
	for i := range active {
		active[i] = i%2 == 0
	}

	seed := ApplyRandomDither(events, active, 42)
	assert.Equal(t, int64(42), seed)
	for i := range events.XCorr {
		if active[i] {
			assert.InDelta(t, 50., float64(events.XCorr[i]), 0.5)
			assert.InDelta(t, 60., float64(events.YCorr[i]), 0.5)
		} else {
			assert.Equal(t, float32(50.), events.XCorr[i])
			assert.Equal(t, float32(60.), events.YCorr[i])
		}
	}
}

func TestApplyRandomDitherReproducible(t *testing.T) {
	make2 := func() *EventTable {
		events := NewEventTable(10, false)
		active := make([]bool, 10)
		for i := range active {
			active[i] = true
		}
		ApplyRandomDither(events, active, 7)
		return events
	}
	a, b := make2(), make2()
	assert.Equal(t, a.XCorr, b.XCorr)
	assert.Equal(t, a.YCorr, b.YCorr)
}

func TestApplyRandomDitherPicksSeed(t *testing.T) {
	events := NewEventTable(1, false)
	seed := ApplyRandomDither(events, []bool{true}, -1)
	assert.GreaterOrEqual(t, seed, int64(0))
}

func uniformGrid(nx, ny int, binx, biny, dx, dy float64) DistortionGrid {
	grid := DistortionGrid{
		NX: nx, NY: ny, BinX: binx, BinY: biny,
		DX: make([]float64, nx*ny),
		DY: make([]float64, nx*ny),
	}
	for i := range grid.DX {
		grid.DX[i] = dx
		grid.DY[i] = dy
	}
	return grid
}

func TestGeometricCorrectionConstantOffset(t *testing.T) {
	events := NewEventTable(2, false)
	events.XCorr[0], events.YCorr[0] = 100., 100.
	events.XCorr[1], events.YCorr[1] = 900., 500.

	grid := uniformGrid(5, 5, 256., 256., 2.5, -1.5)
	require.NoError(t, ApplyGeometricCorrection(events, grid))
	assert.InDelta(t, 97.5, float64(events.XCorr[0]), 1e-4)
	assert.InDelta(t, 101.5, float64(events.YCorr[0]), 1e-4)
	assert.InDelta(t, 897.5, float64(events.XCorr[1]), 1e-4)
}

func TestGeometricCorrectionBilinear(t *testing.T) {
	// Gradient in x only: dx = gx (grid units), so an event midway
	// between the first two columns gets the midpoint offset.
	grid := uniformGrid(3, 3, 100., 100., 0., 0.)
	for iy := 0; iy < 3; iy++ {
		for ix := 0; ix < 3; ix++ {
			grid.DX[iy*3+ix] = float64(ix)
		}
	}
	events := NewEventTable(1, false)
	events.XCorr[0], events.YCorr[0] = 50., 0.

	require.NoError(t, ApplyGeometricCorrection(events, grid))
	assert.InDelta(t, 49.5, float64(events.XCorr[0]), 1e-4)
}

func TestGeometricCorrectionRejectsTinyGrid(t *testing.T) {
	events := NewEventTable(1, false)
	err := ApplyGeometricCorrection(events, uniformGrid(1, 1, 100., 100., 0., 0.))
	assert.Error(t, err)
}
