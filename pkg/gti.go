package timetag

import (
	"fmt"
	"sort"
)

// SmallTimeIncrement nudges interval edges when flagging events so that
// an event exactly on a boundary lands on the intended side.
const SmallTimeIncrement = 0.02

// ExptimeTolerance is the largest difference, in seconds, between the
// header exposure time and the sum of good time intervals that passes
// without a warning.
const ExptimeTolerance = 1.

// Interval is a half-open time span [Start, Stop) in seconds from the
// exposure start.
type Interval struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

func (iv Interval) Duration() float64 {
	return iv.Stop - iv.Start
}

// GTISet is a list of good time intervals, kept sorted by start time and
// pairwise disjoint.
type GTISet struct {
	Intervals []Interval
}

// NewGTISet builds a set from arbitrary intervals, dropping empty ones
// and merging overlaps.
func NewGTISet(intervals []Interval) GTISet {
	kept := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Stop > iv.Start {
			kept = append(kept, iv)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	merged := make([]Interval, 0, len(kept))
	for _, iv := range kept {
		n := len(merged)
		if n > 0 && iv.Start <= merged[n-1].Stop {
			if iv.Stop > merged[n-1].Stop {
				merged[n-1].Stop = iv.Stop
			}
			continue
		}
		merged = append(merged, iv)
	}
	return GTISet{Intervals: merged}
}

// Duration returns the summed length of all intervals.
func (g GTISet) Duration() float64 {
	var total float64
	for _, iv := range g.Intervals {
		total += iv.Duration()
	}
	return total
}

// Subtract removes a bad interval from every good interval, splitting
// intervals that straddle it.  Subtracting from an empty set leaves it
// empty.
func (g GTISet) Subtract(bad Interval) GTISet {
	if bad.Stop <= bad.Start {
		return g
	}
	out := make([]Interval, 0, len(g.Intervals)+1)
	for _, iv := range g.Intervals {
		if bad.Stop <= iv.Start || bad.Start >= iv.Stop {
			out = append(out, iv)
			continue
		}
		if bad.Start > iv.Start {
			out = append(out, Interval{Start: iv.Start, Stop: bad.Start})
		}
		if bad.Stop < iv.Stop {
			out = append(out, Interval{Start: bad.Stop, Stop: iv.Stop})
		}
	}
	return GTISet{Intervals: out}
}

// SubtractAll removes every bad interval in turn.
func (g GTISet) SubtractAll(bad []Interval) GTISet {
	out := g
	for _, iv := range bad {
		out = out.Subtract(iv)
	}
	return out
}

// RecomputeExposure returns the exposure time implied by the good time
// intervals and warns when it disagrees with the nominal value by more
// than the tolerance.
func (g GTISet) RecomputeExposure(nominal float64) float64 {
	exptime := g.Duration()
	diff := exptime - nominal
	if diff > ExptimeTolerance || diff < -ExptimeTolerance {
		message := fmt.Sprintf("Exposure time from good time intervals is %.3f s, header says %.3f s",
			exptime, nominal)
		logger.Warning(message, "gti")
	}
	return exptime
}

// FlagBadTime sets the bad-time flag on every event outside the good
// time intervals and returns how many events were flagged.  Interval
// edges are nudged inward by SmallTimeIncrement so events recorded
// exactly on a boundary stay good.
func FlagBadTime(events *EventTable, gti GTISet) int {
	if len(gti.Intervals) == 0 {
		for i := range events.DQ {
			events.DQ[i] |= DQBadTime
		}
		return events.NEvents()
	}
	flagged := 0
	k := 0
	intervals := gti.Intervals
	for i, t := range events.Time {
		for k < len(intervals) && t >= intervals[k].Stop+SmallTimeIncrement {
			k++
		}
		good := k < len(intervals) &&
			t >= intervals[k].Start-SmallTimeIncrement &&
			t < intervals[k].Stop+SmallTimeIncrement
		if !good {
			events.DQ[i] |= DQBadTime
			flagged++
		}
	}
	return flagged
}

// BadTimesToIntervals converts bad-time reference rows from MJD to
// seconds relative to the exposure start, keeping only rows that
// overlap the exposure.
func BadTimesToIntervals(rows []BadTimeRow, expStart, expTime float64) []Interval {
	intervals := make([]Interval, 0, len(rows))
	for _, row := range rows {
		start := (row.Start - expStart) * SecPerDay
		stop := (row.Stop - expStart) * SecPerDay
		if stop <= 0. || start >= expTime {
			continue
		}
		if start < 0. {
			start = 0.
		}
		if stop > expTime {
			stop = expTime
		}
		intervals = append(intervals, Interval{Start: start, Stop: stop})
	}
	return intervals
}
