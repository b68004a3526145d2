package timetag

import (
	"fmt"
	"math/rand"
	"time"
)

// ApplyRandomDither adds a uniform random offset in (-0.5, 0.5) to both
// corrected coordinates of every active-area event, de-quantizing the
// integer-valued raw positions before geometric interpolation.  When
// seed is negative a clock-derived seed is chosen; the seed actually
// used is returned so it can be recorded in the output metadata.
func ApplyRandomDither(events *EventTable, active []bool, seed int64) int64 {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range events.XCorr {
		if !active[i] {
			continue
		}
		events.XCorr[i] += float32(rng.Float64() - 0.5)
		events.YCorr[i] += float32(rng.Float64() - 0.5)
	}
	message := fmt.Sprintf("Random dither applied with seed %d", seed)
	logger.Info(message, "geom")
	return seed
}

// interpolateGrid evaluates the distortion grid at a detector position
// by bilinear interpolation between the four surrounding grid nodes,
// clamping positions outside the grid to its edge.
func (g DistortionGrid) interpolate(x, y float64) (float64, float64) {
	gx := x / g.BinX
	gy := y / g.BinY
	if gx < 0. {
		gx = 0.
	}
	if gy < 0. {
		gy = 0.
	}
	maxX := float64(g.NX - 1)
	maxY := float64(g.NY - 1)
	if gx > maxX {
		gx = maxX
	}
	if gy > maxY {
		gy = maxY
	}

	ix := int(gx)
	iy := int(gy)
	if ix >= g.NX-1 {
		ix = g.NX - 2
	}
	if iy >= g.NY-1 {
		iy = g.NY - 2
	}
	if ix < 0 {
		ix = 0
	}
	if iy < 0 {
		iy = 0
	}
	fx := gx - float64(ix)
	fy := gy - float64(iy)

	node := func(i, j int) int { return j*g.NX + i }
	dx := g.DX[node(ix, iy)]*(1.-fx)*(1.-fy) +
		g.DX[node(ix+1, iy)]*fx*(1.-fy) +
		g.DX[node(ix, iy+1)]*(1.-fx)*fy +
		g.DX[node(ix+1, iy+1)]*fx*fy
	dy := g.DY[node(ix, iy)]*(1.-fx)*(1.-fy) +
		g.DY[node(ix+1, iy)]*fx*(1.-fy) +
		g.DY[node(ix, iy+1)]*(1.-fx)*fy +
		g.DY[node(ix+1, iy+1)]*fx*fy
	return dx, dy
}

// ApplyGeometricCorrection removes the detector geometric distortion
// from the corrected coordinates of every event.  The grid stores the
// distortion as offsets to subtract.
func ApplyGeometricCorrection(events *EventTable, grid DistortionGrid) error {
	if grid.NX < 2 || grid.NY < 2 {
		return fmt.Errorf("distortion grid is %dx%d, need at least 2x2", grid.NX, grid.NY)
	}
	for i := range events.XCorr {
		dx, dy := grid.interpolate(float64(events.XCorr[i]), float64(events.YCorr[i]))
		events.XCorr[i] -= float32(dx)
		events.YCorr[i] -= float32(dy)
	}
	return nil
}
