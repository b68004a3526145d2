package timetag

import "math"

// FlagBadPixels sets, for every event, the data-quality flags of the
// bad-pixel regions its corrected position falls in.  Events outside
// the detector bounds get the out-of-bounds flag.
func FlagBadPixels(events *EventTable, regions []BadPixelRegion, nx, ny int) int {
	flagged := 0
	for i := range events.XCorr {
		x := float64(events.XCorr[i])
		y := float64(events.YCorr[i])
		if x < 0. || x >= float64(nx) || y < 0. || y >= float64(ny) {
			events.DQ[i] |= DQOutOfBounds
			flagged++
			continue
		}
		hit := false
		for _, region := range regions {
			if x >= float64(region.LX) && x < float64(region.LX+region.DX) &&
				y >= float64(region.LY) && y < float64(region.LY+region.DY) {
				events.DQ[i] |= region.DQ
				hit = true
			}
		}
		if hit {
			flagged++
		}
	}
	return flagged
}

// BuildDQPlane paints the bad-pixel regions into a 2-D data-quality
// image in the final coordinate frame.  Each region is widened along
// the dispersion axis by the range of Doppler and wavecal shifts that
// events may have received, so a region flags every output pixel any of
// its detector pixels could land on.
func BuildDQPlane(nx, ny int, regions []BadPixelRegion, doppler DopplerReport, wavecal WavecalReport) []uint16 {
	plane := make([]uint16, nx*ny)

	padLow := 0.
	padHigh := 0.
	if doppler.Applied {
		padLow += doppler.MinShift
		padHigh += doppler.MaxShift
	}
	if wavecal.Applied {
		padLow += wavecal.MinShift1
		padHigh += wavecal.MaxShift1
	}
	// Shifts are subtracted from event coordinates, so a shift range
	// of [lo, hi] smears a detector pixel over [x-hi, x-lo].
	expandLow := int(math.Ceil(padHigh))
	expandHigh := int(math.Floor(padLow))

	for _, region := range regions {
		x0 := region.LX - expandLow
		x1 := region.LX + region.DX - expandHigh
		y0 := region.LY
		y1 := region.LY + region.DY
		if x0 < 0 {
			x0 = 0
		}
		if y0 < 0 {
			y0 = 0
		}
		if x1 > nx {
			x1 = nx
		}
		if y1 > ny {
			y1 = ny
		}
		for y := y0; y < y1; y++ {
			row := y * nx
			for x := x0; x < x1; x++ {
				plane[row+x] |= region.DQ
			}
		}
	}
	return plane
}
