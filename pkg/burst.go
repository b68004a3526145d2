package timetag

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// burstTimestep is the width in seconds of the local count-rate windows
// scanned for bursts.
const burstTimestep = 10.

// BurstReport summarizes the burst search over one exposure.
type BurstReport struct {
	NFlagged  int
	Intervals []Interval
}

// FlagBursts scans the exposure in fixed windows, compares each
// window's active-area count rate against the median rate over all
// windows, and flags every event in windows exceeding medianFactor
// times the median.  Flagged windows are reported as bad intervals so
// the good time intervals can be recomputed.
func FlagBursts(events *EventTable, active []bool, expTime, medianFactor float64) BurstReport {
	report := BurstReport{}
	n := events.NEvents()
	if n == 0 || expTime <= 0. || medianFactor <= 0. {
		return report
	}

	nWindows := int(expTime / burstTimestep)
	if nWindows < 1 {
		nWindows = 1
	}
	dt := expTime / float64(nWindows)

	counts := make([]float64, nWindows)
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		w := int(events.Time[i] / dt)
		if w < 0 {
			w = 0
		}
		if w >= nWindows {
			w = nWindows - 1
		}
		counts[w]++
	}

	rates := make([]float64, nWindows)
	for w, c := range counts {
		rates[w] = c / dt
	}
	sorted := append([]float64(nil), rates...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if median <= 0. {
		return report
	}
	threshold := medianFactor * median

	for w := 0; w < nWindows; w++ {
		if rates[w] <= threshold {
			continue
		}
		t0 := float64(w) * dt
		t1 := t0 + dt
		i, j := timeRange(events.Time, t0, t1)
		for k := i; k < j; k++ {
			events.DQ[k] |= DQBurst
			report.NFlagged++
		}
		// Merge with the previous interval when windows are adjacent.
		m := len(report.Intervals)
		if m > 0 && report.Intervals[m-1].Stop == t0 {
			report.Intervals[m-1].Stop = t1
		} else {
			report.Intervals = append(report.Intervals, Interval{Start: t0, Stop: t1})
		}
	}

	if report.NFlagged > 0 {
		message := fmt.Sprintf("Burst search flagged %d events in %d intervals (median rate %.3f counts/s)",
			report.NFlagged, len(report.Intervals), median)
		logger.Info(message, "burst")
	}
	return report
}
