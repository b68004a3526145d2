package timetag

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Valid range of detector lines for the stim search boxes.  The first
// and last detector lines are excluded.
const (
	stimYMin = 1.
	stimYMax = 1022.
)

// StimPosition is a measured stim centroid for one time window.
type StimPosition struct {
	Found  bool
	X      float64
	Y      float64
	Counts int
	SumSqX float64 // sample variance accumulators, offsets from centroid
	SumSqY float64
}

// StimWindow holds both stim measurements for one time slice together
// with the thermal-correction coefficients derived from them.
type StimWindow struct {
	T0, T1 float64
	Stim1  StimPosition
	Stim2  StimPosition
	Param  ThermalParam
}

// ThermalParam is an independent affine map per axis, applied as
// x' = XIntercept + XSlope*x.
type ThermalParam struct {
	XIntercept float64
	XSlope     float64
	YIntercept float64
	YSlope     float64
}

// IdentityThermalParam maps every coordinate to itself.
func IdentityThermalParam() ThermalParam {
	return ThermalParam{XSlope: 1., YSlope: 1.}
}

func (p ThermalParam) IsIdentity() bool {
	return p.XIntercept == 0. && p.XSlope == 1. && p.YIntercept == 0. && p.YSlope == 1.
}

// StimSummary collects the per-exposure stim diagnostics reported in
// the output metadata.
type StimSummary struct {
	Windows []StimWindow

	// Weighted averages over windows, weight = counts in window.
	AvgX1, AvgY1 float64
	AvgX2, AvgY2 float64
	RMSX1, RMSY1 float64
	RMSX2, RMSY2 float64
	Found1       bool
	Found2       bool

	// Total stim counts and the implied count rate.
	TotalCounts int
	CountRate   float64
}

// findStim measures the centroid of events inside a rectangular search
// box centered on a stim's reference position.  The box is clamped to
// the valid detector line range.  Offsets from the reference position
// are accumulated instead of absolute coordinates so the mean does not
// lose precision to cancellation.
func findStim(events *EventTable, i, j int, refX, refY, xWidth, yWidth float64) StimPosition {
	xLow := refX - xWidth
	xHigh := refX + xWidth
	yLow := math.Max(refY-yWidth, stimYMin)
	yHigh := math.Min(refY+yWidth, stimYMax)

	var sumDX, sumDY float64
	var n int
	for k := i; k < j; k++ {
		x := float64(events.RawX[k])
		y := float64(events.RawY[k])
		if x < xLow || x > xHigh || y < yLow || y > yHigh {
			continue
		}
		sumDX += x - refX
		sumDY += y - refY
		n++
	}
	if n == 0 {
		return StimPosition{}
	}
	meanDX := sumDX / float64(n)
	meanDY := sumDY / float64(n)

	var sumSqX, sumSqY float64
	for k := i; k < j; k++ {
		x := float64(events.RawX[k])
		y := float64(events.RawY[k])
		if x < xLow || x > xHigh || y < yLow || y > yHigh {
			continue
		}
		dx := (x - refX) - meanDX
		dy := (y - refY) - meanDY
		sumSqX += dx * dx
		sumSqY += dy * dy
	}

	return StimPosition{
		Found:  true,
		X:      refX + meanDX,
		Y:      refY + meanDY,
		Counts: n,
		SumSqX: sumSqX,
		SumSqY: sumSqY,
	}
}

// thermalParam derives the affine map taking measured stim positions to
// their reference positions.  When either stim is missing or the
// measured positions are degenerate, the map is identity and the caller
// should treat the window as uncorrected.
func thermalParam(s1, s2 StimPosition, ref BaselineRef) ThermalParam {
	if !s1.Found || !s2.Found {
		return IdentityThermalParam()
	}
	dx := s2.X - s1.X
	dy := s2.Y - s1.Y
	if dx == 0. || dy == 0. {
		return IdentityThermalParam()
	}
	xSlope := (ref.SX2 - ref.SX1) / dx
	ySlope := (ref.SY2 - ref.SY1) / dy
	return ThermalParam{
		XIntercept: ref.SX1 - s1.X*xSlope,
		XSlope:     xSlope,
		YIntercept: ref.SY1 - s1.Y*ySlope,
		YSlope:     ySlope,
	}
}

// TrackStims partitions the exposure into windows of the reference
// timestep, measures both stim positions in each window with a
// hold-last-value policy for windows where a stim is not detected, and
// derives per-window thermal-correction coefficients.  diagnostics, if
// non-nil, receives one line per window.
func TrackStims(events *EventTable, ref BaselineRef, expTime float64, diagnostics io.Writer) StimSummary {
	summary := StimSummary{}
	n := events.NEvents()

	nWindows := 1
	if ref.Timestep > 0. && expTime > ref.Timestep {
		nWindows = int(expTime / ref.Timestep)
	}
	dt := expTime
	if nWindows > 0 {
		dt = expTime / float64(nWindows)
	}

	// The hold-last-value state starts at the reference positions, so
	// a window before the first detection of one stim still gets a
	// partial correction from the other.
	last1 := StimPosition{Found: true, X: ref.SX1, Y: ref.SY1}
	last2 := StimPosition{Found: true, X: ref.SX2, Y: ref.SY2}
	for w := 0; w < nWindows; w++ {
		t0 := float64(w) * dt
		t1 := t0 + dt
		if w == nWindows-1 {
			t1 = expTime
		}
		i, j := timeRange(events.Time, t0, t1)
		if w == nWindows-1 {
			j = n
		}

		m1 := findStim(events, i, j, ref.SX1, ref.SY1, ref.XWidth, ref.YWidth)
		m2 := findStim(events, i, j, ref.SX2, ref.SY2, ref.XWidth, ref.YWidth)

		s1, s2 := m1, m2
		if m1.Found {
			last1 = m1
		} else {
			s1 = last1
			s1.Counts = 0
		}
		if m2.Found {
			last2 = m2
		} else {
			s2 = last2
			s2.Counts = 0
		}

		window := StimWindow{T0: t0, T1: t1, Stim1: s1, Stim2: s2}
		window.Param = thermalParam(s1, s2, ref)
		summary.Windows = append(summary.Windows, window)

		if diagnostics != nil {
			// The diagnostic file records what each window actually
			// measured, not the held substitute.
			fmt.Fprintf(diagnostics, "%.6f %.6f %s %s %s %s\n",
				t0, t1,
				formatStimCoord(m1, m1.X), formatStimCoord(m1, m1.Y),
				formatStimCoord(m2, m2.X), formatStimCoord(m2, m2.Y))
		}
	}

	summary.summarize()

	if !summary.Found1 || !summary.Found2 {
		logger.Warning("One or both stims were not found; thermal correction will be skipped", "stim")
	}
	return summary
}

// formatStimCoord renders a stim coordinate for the diagnostic log,
// using INDEF when the stim was not found.
func formatStimCoord(s StimPosition, v float64) string {
	if !s.Found {
		return "INDEF"
	}
	return fmt.Sprintf("%.3f", v)
}

// summarize computes the count-weighted average position and RMS of
// each stim over all windows in which it was directly measured.
func (s *StimSummary) summarize() {
	var x1, y1, w1 []float64
	var x2, y2, w2 []float64
	var sumSq1X, sumSq1Y, sumSq2X, sumSq2Y float64
	for _, win := range s.Windows {
		if win.Stim1.Found && win.Stim1.Counts > 0 {
			x1 = append(x1, win.Stim1.X)
			y1 = append(y1, win.Stim1.Y)
			w1 = append(w1, float64(win.Stim1.Counts))
			sumSq1X += win.Stim1.SumSqX
			sumSq1Y += win.Stim1.SumSqY
			s.TotalCounts += win.Stim1.Counts
		}
		if win.Stim2.Found && win.Stim2.Counts > 0 {
			x2 = append(x2, win.Stim2.X)
			y2 = append(y2, win.Stim2.Y)
			w2 = append(w2, float64(win.Stim2.Counts))
			sumSq2X += win.Stim2.SumSqX
			sumSq2Y += win.Stim2.SumSqY
			s.TotalCounts += win.Stim2.Counts
		}
	}
	if len(x1) > 0 {
		s.Found1 = true
		s.AvgX1 = stat.Mean(x1, w1)
		s.AvgY1 = stat.Mean(y1, w1)
		total := sumWeights(w1)
		s.RMSX1 = math.Sqrt(sumSq1X / total)
		s.RMSY1 = math.Sqrt(sumSq1Y / total)
	}
	if len(x2) > 0 {
		s.Found2 = true
		s.AvgX2 = stat.Mean(x2, w2)
		s.AvgY2 = stat.Mean(y2, w2)
		total := sumWeights(w2)
		s.RMSX2 = math.Sqrt(sumSq2X / total)
		s.RMSY2 = math.Sqrt(sumSq2Y / total)
	}
}

func sumWeights(w []float64) float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// ApplyThermalDistortion applies each window's affine map to the
// corrected coordinates of the events in that window.  It reports
// whether any window was actually corrected; when no window had both
// stims the coordinates are untouched and the correction should be
// recorded as skipped.
func ApplyThermalDistortion(events *EventTable, summary StimSummary) bool {
	applied := false
	n := events.NEvents()
	for w, win := range summary.Windows {
		if win.Param.IsIdentity() {
			continue
		}
		i, j := timeRange(events.Time, win.T0, win.T1)
		if w == len(summary.Windows)-1 {
			j = n
		}
		for k := i; k < j; k++ {
			events.XCorr[k] = float32(win.Param.XIntercept + win.Param.XSlope*float64(events.XCorr[k]))
			events.YCorr[k] = float32(win.Param.YIntercept + win.Param.YSlope*float64(events.YCorr[k]))
		}
		applied = true
	}
	return applied
}

// StimLivetime estimates the livetime factor from the observed stim
// count rate against the nominal commanded rate.  Both stims pulse at
// the same commanded rate, so the observed rate counts both.
func StimLivetime(summary *StimSummary, expTime, nominalRate float64) (float64, bool) {
	if expTime <= 0. || nominalRate <= 0. {
		return 1., false
	}
	summary.CountRate = float64(summary.TotalCounts) / expTime / 2.
	return summary.CountRate / nominalRate, true
}
