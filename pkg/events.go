package timetag

import (
	"encoding/binary"
	"io"
)

// Detector dimensions in pixels.
const (
	FUVX = 16384
	FUVY = 1024
	NUVX = 1024
	NUVY = 1024
)

// Data quality flags.  Flags accumulate in the DQ column via bitwise OR.
const (
	DQBurst       uint16 = 64
	DQBadTime     uint16 = 128
	DQPHLow       uint16 = 256
	DQPHHigh      uint16 = 512
	DQBadPixel    uint16 = 2
	DQOutOfBounds uint16 = 4
)

// EventRecord is the on-disk layout of one raw event, little endian.
type EventRecord struct {
	Time float64
	X    float32
	Y    float32
	Pha  int16
}

// EventTable holds the columns of the time-tag event list.  The table is
// exclusively owned by one pipeline run.  Columns are mutated in place by
// the calibration stages; the Time column is read-only after ingestion.
type EventTable struct {
	Time    []float64
	RawX    []float32
	RawY    []float32
	XCorr   []float32
	YCorr   []float32
	XDopp   []float32
	YDopp   []float32
	XFull   []float32
	YFull   []float32
	Pha     []int16
	DQ      []uint16
	Epsilon []float32

	HasPha bool
}

func (e *EventTable) NEvents() int {
	return len(e.Time)
}

// NewEventTable allocates all columns for n events, with epsilon
// initialized to 1.
func NewEventTable(n int, hasPha bool) *EventTable {
	events := &EventTable{
		Time:    make([]float64, n),
		RawX:    make([]float32, n),
		RawY:    make([]float32, n),
		XCorr:   make([]float32, n),
		YCorr:   make([]float32, n),
		XDopp:   make([]float32, n),
		YDopp:   make([]float32, n),
		XFull:   make([]float32, n),
		YFull:   make([]float32, n),
		DQ:      make([]uint16, n),
		Epsilon: make([]float32, n),
		HasPha:  hasPha,
	}
	if hasPha {
		events.Pha = make([]int16, n)
	}
	for i := range events.Epsilon {
		events.Epsilon[i] = 1.
	}
	return events
}

// ReadEvents ingests raw event records from r, up to maxEvents.  The raw
// coordinates are also copied into the corrected-coordinate columns as
// starting values.  The time column must be non-decreasing.
func ReadEvents(r io.Reader, maxEvents int, hasPha bool) (*EventTable, error) {
	records := make([]EventRecord, 0, 4096)
	for len(records) < maxEvents {
		var rec EventRecord
		err := binary.Read(r, binary.LittleEndian, &rec)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, &ErrBadEventTable{Reason: "truncated event record"}
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	events := NewEventTable(len(records), hasPha)
	for i, rec := range records {
		if i > 0 && rec.Time < records[i-1].Time {
			return nil, &ErrBadEventTable{Reason: "time column is not sorted"}
		}
		events.Time[i] = rec.Time
		events.RawX[i] = rec.X
		events.RawY[i] = rec.Y
		events.XCorr[i] = rec.X
		events.YCorr[i] = rec.Y
		if hasPha {
			events.Pha[i] = rec.Pha
		}
	}
	return events, nil
}

// CopyColumns copies XCorr and YCorr to XDopp, YDopp, XFull and YFull as
// default values, in case the Doppler or wavecal stages are omitted.
func (e *EventTable) CopyColumns() {
	copy(e.XDopp, e.XCorr)
	copy(e.YDopp, e.YCorr)
	copy(e.XFull, e.XCorr)
	copy(e.YFull, e.YCorr)
}

// timeRange returns the half-open index slice [i, j) of events whose times
// fall in [t0, t1).  The time column is sorted, so binary search is used.
// The range is empty (i == j) when no event time falls in the window.
func timeRange(time []float64, t0, t1 float64) (int, int) {
	i := searchTimes(time, t0)
	j := searchTimes(time, t1)
	return i, j
}

// searchTimes returns the smallest index whose time is >= t.
func searchTimes(time []float64, t float64) int {
	lo, hi := 0, len(time)
	for lo < hi {
		mid := (lo + hi) / 2
		if time[mid] < t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
