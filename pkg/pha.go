package timetag

import "fmt"

// PHARange is the number of distinct pulse-height values.
const PHARange = 32

// PHAReport counts events rejected by the pulse-height filter.
type PHAReport struct {
	NLow  int
	NHigh int
}

// FilterByPulseHeight flags events whose pulse height falls outside the
// allowed range.  Only events inside the active area are tested; events
// outside carry no physical pulse height.
func FilterByPulseHeight(events *EventTable, active []bool, limits PulseHeightLimits) PHAReport {
	report := PHAReport{}
	if !events.HasPha {
		return report
	}
	for i := range events.Pha {
		if !active[i] {
			continue
		}
		if events.Pha[i] < limits.Low {
			events.DQ[i] |= DQPHLow
			report.NLow++
		} else if events.Pha[i] > limits.High {
			events.DQ[i] |= DQPHHigh
			report.NHigh++
		}
	}
	if report.NLow > 0 || report.NHigh > 0 {
		message := fmt.Sprintf("Pulse-height filter rejected %d events below %d and %d above %d",
			report.NLow, limits.Low, report.NHigh, limits.High)
		logger.Info(message, "pha")
	}
	return report
}
