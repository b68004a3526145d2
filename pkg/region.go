package timetag

import "math"

// activeAreaMargin shrinks the FUV active area to keep events right on
// the electronic boundary out of the stim and pulse-height statistics.
const activeAreaMargin = 2.

// ActiveArea reports, per event, whether the corrected position lies
// inside the detector active area.  It is classified on XCorr/YCorr so
// that recomputing it after a correction moved events gives the current
// mask.  The NUV detector has no stim pulses or electronic border, so
// every event counts as active.
func ActiveArea(events *EventTable, detector string, ref BaselineRef) []bool {
	active := make([]bool, events.NEvents())
	if detector == "NUV" {
		for i := range active {
			active[i] = true
		}
		return active
	}
	xLow := float32(ref.BLeft + activeAreaMargin)
	xHigh := float32(ref.BRight - activeAreaMargin)
	yLow := float32(ref.BLow + activeAreaMargin)
	yHigh := float32(ref.BHigh - activeAreaMargin)
	for i := range active {
		active[i] = events.XCorr[i] >= xLow && events.XCorr[i] <= xHigh &&
			events.YCorr[i] >= yLow && events.YCorr[i] <= yHigh
	}
	return active
}

// Regions partitions the detector along the cross-dispersion axis into
// the science and wavecal regions.  For FUV there is one boundary; for
// NUV each of the three stripes gets its own science/wavecal pair.
type Regions struct {
	Detector string

	// FUV: events with YCorr below this belong to the science
	// aperture, at or above to the wavecal aperture.
	FUVBoundary float64

	// NUV: stripe boundaries along the cross-dispersion axis.  An
	// event in [ScienceLow[s], ScienceHigh[s]) belongs to science
	// stripe s, and likewise for the wavecal stripes.
	ScienceLow  []float64
	ScienceHigh []float64
	WavecalLow  []float64
	WavecalHigh []float64
}

// NUVStripes is the number of NUV spectral stripes.
const NUVStripes = 3

var nuvSegments = [NUVStripes]string{"NUVA", "NUVB", "NUVC"}

// ComputeRegions derives region boundaries from the trace positions of
// the science and wavecal apertures.  Boundaries sit at the midpoint of
// adjacent traces, evaluated at the middle of the dispersion axis.
func ComputeRegions(refs RefTables, cfg *Configuration) (Regions, error) {
	regions := Regions{Detector: cfg.Detector}

	if cfg.Detector == "FUV" {
		middle := float64(FUVX) / 2.
		sci, err := refs.Trace(cfg.OptElem, cfg.CenWave, cfg.Segment, "PSA")
		if err != nil {
			return regions, err
		}
		wca, err := refs.Trace(cfg.OptElem, cfg.CenWave, cfg.Segment, "WCA")
		if err != nil {
			return regions, err
		}
		ySci := sci.BSpec + sci.Slope*middle
		yWca := wca.BSpec + wca.Slope*middle
		regions.FUVBoundary = math.Round((ySci + yWca) / 2.)
		return regions, nil
	}

	middle := float64(NUVX) / 2.
	ySci := make([]float64, NUVStripes)
	yWca := make([]float64, NUVStripes)
	for s, segment := range nuvSegments {
		sci, err := refs.Trace(cfg.OptElem, cfg.CenWave, segment, "PSA")
		if err != nil {
			return regions, err
		}
		wca, err := refs.Trace(cfg.OptElem, cfg.CenWave, segment, "WCA")
		if err != nil {
			return regions, err
		}
		ySci[s] = sci.BSpec + sci.Slope*middle
		yWca[s] = wca.BSpec + wca.Slope*middle
	}

	regions.ScienceLow = make([]float64, NUVStripes)
	regions.ScienceHigh = make([]float64, NUVStripes)
	regions.WavecalLow = make([]float64, NUVStripes)
	regions.WavecalHigh = make([]float64, NUVStripes)
	// Science stripes sit below the wavecal stripes on the detector;
	// each boundary is the midpoint to the nearest neighbouring trace.
	// The science bounds come first because the lowest wavecal stripe
	// starts where the highest science stripe ends.
	for s := 0; s < NUVStripes; s++ {
		if s == 0 {
			regions.ScienceLow[s] = 0.
		} else {
			regions.ScienceLow[s] = math.Round((ySci[s-1] + ySci[s]) / 2.)
		}
		if s == NUVStripes-1 {
			regions.ScienceHigh[s] = math.Round((ySci[s] + yWca[0]) / 2.)
		} else {
			regions.ScienceHigh[s] = math.Round((ySci[s] + ySci[s+1]) / 2.)
		}
	}
	for s := 0; s < NUVStripes; s++ {
		if s == 0 {
			regions.WavecalLow[s] = regions.ScienceHigh[NUVStripes-1]
		} else {
			regions.WavecalLow[s] = math.Round((yWca[s-1] + yWca[s]) / 2.)
		}
		if s == NUVStripes-1 {
			regions.WavecalHigh[s] = float64(NUVY)
		} else {
			regions.WavecalHigh[s] = math.Round((yWca[s] + yWca[s+1]) / 2.)
		}
	}
	return regions, nil
}

// InScience reports whether the cross-dispersion coordinate y belongs
// to the science region and, for NUV, which stripe.  FUV always returns
// stripe 0.
func (r Regions) InScience(y float64) (int, bool) {
	if r.Detector == "FUV" {
		if y < r.FUVBoundary {
			return 0, true
		}
		return 0, false
	}
	for s := 0; s < NUVStripes; s++ {
		if y >= r.ScienceLow[s] && y < r.ScienceHigh[s] {
			return s, true
		}
	}
	return 0, false
}

// InWavecal reports whether y belongs to the wavecal region and, for
// NUV, which stripe.
func (r Regions) InWavecal(y float64) (int, bool) {
	if r.Detector == "FUV" {
		if y >= r.FUVBoundary {
			return 0, true
		}
		return 0, false
	}
	for s := 0; s < NUVStripes; s++ {
		if y >= r.WavecalLow[s] && y < r.WavecalHigh[s] {
			return s, true
		}
	}
	return 0, false
}
