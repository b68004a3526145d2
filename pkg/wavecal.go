package timetag

import (
	"fmt"
	"math"
)

// WavecalReport summarizes the wavelength-calibration shifts actually
// applied, for output metadata and data-quality padding.
type WavecalReport struct {
	Applied bool

	// Average dispersion-axis shift over events, and the mean
	// fractional-pixel residual after the shift.
	AvgShift1 float64
	AvgShift2 float64
	DPixel1   float64

	// Extremes of the applied dispersion-axis shift over time, used
	// to pad the data-quality plane.
	MinShift1 float64
	MaxShift1 float64
}

// shiftKey names the per-stripe wavecal entry in the configuration.
func shiftKey(detector, segment string, stripe int) string {
	if detector == "FUV" {
		return segment
	}
	return nuvSegments[stripe]
}

// ApplyWavecalShifts moves events into the final frame by subtracting
// the linear shift-versus-time model for their stripe: shift(t) = zero
// + slope*t, independently per axis.  For FUV the shift applies to
// every active-area event; for NUV to every event in a classified
// science or wavecal stripe.  All other events keep their
// Doppler-corrected coordinates.
func ApplyWavecalShifts(events *EventTable, active []bool, regions Regions, cfg *Configuration) WavecalReport {
	report := WavecalReport{}
	if len(cfg.WavecalShifts) == 0 {
		logger.Warning("No wavecal shifts supplied; events keep Doppler-corrected coordinates", "wavecal")
		return report
	}

	var sumShift1, sumShift2, sumFrac float64
	var nShifted int
	first := true
	for i := range events.XFull {
		var stripe int
		if cfg.Detector == "FUV" {
			if !active[i] {
				continue
			}
		} else {
			y := float64(events.YCorr[i])
			s, ok := regions.InScience(y)
			if !ok {
				s, ok = regions.InWavecal(y)
			}
			if !ok {
				continue
			}
			stripe = s
		}
		shifts, found := cfg.WavecalShifts[shiftKey(cfg.Detector, cfg.Segment, stripe)]
		if !found {
			continue
		}
		t := events.Time[i]
		shift1 := shifts.Shift1Zero + shifts.Shift1Slope*t
		shift2 := shifts.Shift2Zero + shifts.Shift2Slope*t
		events.XFull[i] = events.XDopp[i] - float32(shift1)
		events.YFull[i] = events.YDopp[i] - float32(shift2)

		sumShift1 += shift1
		sumShift2 += shift2
		sumFrac += shift1 - math.Round(shift1)
		nShifted++
		if first || shift1 < report.MinShift1 {
			report.MinShift1 = shift1
		}
		if first || shift1 > report.MaxShift1 {
			report.MaxShift1 = shift1
		}
		first = false
	}

	if nShifted > 0 {
		report.Applied = true
		report.AvgShift1 = sumShift1 / float64(nShifted)
		report.AvgShift2 = sumShift2 / float64(nShifted)
		report.DPixel1 = sumFrac / float64(nShifted)
		message := fmt.Sprintf("Wavecal shifts applied to %d events, average shift1 %.3f pixels",
			nShifted, report.AvgShift1)
		logger.Info(message, "wavecal")
	}
	return report
}
