package timetag

import (
	"fmt"
	"io"
)

// livetimeCriterion is the relative disagreement between the measured
// count rate and the hardware-counter rate beyond which the two
// estimates are considered inconsistent.
const livetimeCriterion = 0.1

// DetermineLivetime interpolates the livetime factor for an observed
// count rate.  Below the lowest sampled rate the factor is 1; at or
// above the highest it is the last tabulated factor; between samples it
// is linear.
func DetermineLivetime(rate float64, table DeadtimeTable) float64 {
	n := len(table.ObsRate)
	if n == 0 || rate <= 0. {
		return 1.
	}
	if n == 1 {
		return table.Livetime[0]
	}
	if rate < table.ObsRate[0] {
		return 1.
	}
	if rate >= table.ObsRate[n-1] {
		return table.Livetime[n-1]
	}
	k := 1
	for k < n && table.ObsRate[k] < rate {
		k++
	}
	r0, r1 := table.ObsRate[k-1], table.ObsRate[k]
	f0, f1 := table.Livetime[k-1], table.Livetime[k]
	return f0 + (rate-r0)*(f1-f0)/(r1-r0)
}

// DeadtimeReport records which rate estimate drove the correction.
type DeadtimeReport struct {
	Applied bool

	// Method names the rate source: "DATA" for the measured event
	// rate, or the hardware counter keyword name when the fallback
	// was taken.
	Method string
	Rate   float64

	// Global factors from both estimates, for output metadata.
	LivetimeMeasured float64
	LivetimeCounter  float64
}

// ApplyDeadtimeCorrection divides every event's weight by the local
// livetime factor.  The measured event rate is checked against the
// hardware-counter rate; when they disagree beyond the criterion and
// the exposure used a detector subarray, a single global factor from
// the counter rate is used instead of the time-resolved estimate.
// livetimeFile, if non-nil, receives one line per time window.
func ApplyDeadtimeCorrection(events *EventTable, table DeadtimeTable, cfg *Configuration, expTime float64, livetimeFile io.Writer) DeadtimeReport {
	report := DeadtimeReport{Method: "DATA"}
	n := events.NEvents()
	if n == 0 || expTime <= 0. {
		return report
	}

	measuredRate := float64(n) / expTime
	report.LivetimeMeasured = DetermineLivetime(measuredRate, table)
	report.LivetimeCounter = DetermineLivetime(cfg.DECCountRate, table)
	report.Rate = measuredRate

	consistent := true
	if cfg.DECCountRate > 0. {
		diff := measuredRate - cfg.DECCountRate
		if diff < 0. {
			diff = -diff
		}
		if diff > livetimeCriterion*cfg.DECCountRate {
			consistent = false
			message := fmt.Sprintf("Measured count rate %.3f and hardware counter rate %.3f disagree by more than %.0f%%",
				measuredRate, cfg.DECCountRate, livetimeCriterion*100.)
			logger.Warning(message, "deadtime")
		}
	}

	if !consistent && cfg.Subarray {
		// With a reduced detector region the event rate undercounts
		// the true detector load; trust the hardware counter.
		if cfg.Detector == "FUV" {
			report.Method = "DEVENT"
		} else {
			report.Method = "MEVENTS"
		}
		report.Rate = cfg.DECCountRate
		factor := report.LivetimeCounter
		if factor > 0. {
			for i := range events.Epsilon {
				events.Epsilon[i] /= float32(factor)
			}
			report.Applied = true
		}
		if livetimeFile != nil {
			fmt.Fprintf(livetimeFile, "%.6f %.6f %.6f %.6f\n", 0., expTime, report.Rate, factor)
		}
		return report
	}

	dt := table.Timestep
	if dt <= 0. || dt >= expTime {
		dt = expTime
	}
	nWindows := int(expTime / dt)
	if float64(nWindows)*dt < expTime {
		nWindows++ // trailing partial window
	}
	if nWindows < 1 {
		nWindows = 1
	}

	lastFactor := 1.
	for w := 0; w < nWindows; w++ {
		t0 := float64(w) * dt
		t1 := t0 + dt
		short := false
		if w == nWindows-1 {
			t1 = expTime
			short = (t1 - t0) < 0.5*dt
		}
		i, j := timeRange(events.Time, t0, t1)
		if w == nWindows-1 {
			j = n
		}

		var factor float64
		if short && w > 0 {
			// Too few events for a stable local estimate.
			factor = lastFactor
		} else {
			localRate := float64(j-i) / (t1 - t0)
			factor = DetermineLivetime(localRate, table)
		}
		if factor > 0. {
			for k := i; k < j; k++ {
				events.Epsilon[k] /= float32(factor)
			}
			report.Applied = true
		}
		lastFactor = factor

		if livetimeFile != nil {
			localRate := float64(j-i) / (t1 - t0)
			fmt.Fprintf(livetimeFile, "%.6f %.6f %.6f %.6f\n", t0, t1, localRate, factor)
		}
	}
	return report
}
