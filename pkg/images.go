package timetag

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SeriousDQ accumulates the data-quality flags that exclude an event
// from the output images.  Flags join the set as the corresponding
// corrections are enabled.
type SeriousDQ struct {
	mask uint16
}

func (s *SeriousDQ) Add(flag uint16) {
	s.mask |= flag
}

func (s SeriousDQ) Mask() uint16 {
	return s.mask
}

func (s SeriousDQ) Excludes(dq uint16) bool {
	return dq&s.mask != 0
}

// ImageSet holds the binned output planes: raw counts, count rate and
// its error, flat-fielded (effective) rate and its error.  All planes
// share the same nx*ny row-major layout.
type ImageSet struct {
	NX, NY  int
	Counts  []float64
	CRate   []float64
	CError  []float64
	ERate   []float64
	EError  []float64
	ExpTime float64
}

// NewImageSet allocates zero-valued planes, the degenerate but valid
// output for an empty exposure.
func NewImageSet(nx, ny int) *ImageSet {
	n := nx * ny
	return &ImageSet{
		NX:     nx,
		NY:     ny,
		Counts: make([]float64, n),
		CRate:  make([]float64, n),
		CError: make([]float64, n),
		ERate:  make([]float64, n),
		EError: make([]float64, n),
	}
}

// TotalCounts sums the count plane.
func (im *ImageSet) TotalCounts() float64 {
	return floats.Sum(im.Counts)
}

// BinEvents accumulates the unweighted and weighted histograms over
// final pixel coordinates, excluding events carrying any serious
// data-quality flag.  xOffset maps detector coordinates to image
// coordinates.  It returns the number of events binned.
func BinEvents(events *EventTable, im *ImageSet, serious SeriousDQ, xOffset int) int {
	binned := 0
	for i := range events.XFull {
		if serious.Excludes(events.DQ[i]) {
			continue
		}
		x := int(math.Round(float64(events.XFull[i]))) + xOffset
		y := int(math.Round(float64(events.YFull[i])))
		if x < 0 || x >= im.NX || y < 0 || y >= im.NY {
			continue
		}
		k := y*im.NX + x
		im.Counts[k]++
		im.ERate[k] += float64(events.Epsilon[i])
		binned++
	}
	return binned
}

// FinishImages converts the accumulated histograms into rate and error
// planes.  When exptime is not positive every plane is left (or reset
// to) zero; that is a valid terminal state for an empty exposure.
//
// The error planes follow Poisson statistics: the count-rate error is
// sqrt(counts)/exptime, and the effective-rate error scales it by the
// mean event weight in the pixel, with a zero count-rate error replaced
// by 1 before dividing.
func FinishImages(im *ImageSet, exptime float64) {
	im.ExpTime = exptime
	if exptime <= 0. {
		for k := range im.Counts {
			im.Counts[k] = 0.
			im.CRate[k] = 0.
			im.CError[k] = 0.
			im.ERate[k] = 0.
			im.EError[k] = 0.
		}
		return
	}
	for k := range im.Counts {
		counts := im.Counts[k]
		weighted := im.ERate[k]
		im.CRate[k] = counts / exptime
		im.CError[k] = math.Sqrt(counts) / exptime
		im.ERate[k] = weighted / exptime
		cErr := im.CError[k]
		if cErr == 0. {
			cErr = 1.
		}
		im.EError[k] = im.ERate[k] / cErr / exptime
	}
}

// CumulativeImage is the optional cumulative-sum product: a 2-D count
// image, or 3-D when additionally binned by pulse height.
type CumulativeImage struct {
	NX, NY, NZ int // NZ is 1 for 2-D, PHARange for 3-D
	Data       []float64
}

// BinCumulative accumulates every event's Epsilon weight (no
// data-quality exclusion) at its corrected position, binned by pulse
// height when the table has a pulse-height column and byPha is set.
func BinCumulative(events *EventTable, nx, ny int, byPha bool) *CumulativeImage {
	nz := 1
	if byPha && events.HasPha {
		nz = PHARange
	}
	csum := &CumulativeImage{NX: nx, NY: ny, NZ: nz, Data: make([]float64, nx*ny*nz)}
	for i := range events.XCorr {
		x := int(math.Round(float64(events.XCorr[i])))
		y := int(math.Round(float64(events.YCorr[i])))
		if x < 0 || x >= nx || y < 0 || y >= ny {
			continue
		}
		z := 0
		if nz > 1 {
			z = int(events.Pha[i])
			if z < 0 {
				z = 0
			}
			if z >= nz {
				z = nz - 1
			}
		}
		csum.Data[(z*ny+y)*nx+x] += float64(events.Epsilon[i])
	}
	return csum
}
