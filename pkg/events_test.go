package timetag

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRecords(t *testing.T, records []EventRecord) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	for _, rec := range records {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, &rec))
	}
	return buf
}

func TestReadEvents(t *testing.T) {
	buf := encodeRecords(t, []EventRecord{
		{Time: 0.5, X: 100., Y: 200., Pha: 7},
		{Time: 1.5, X: 101., Y: 201., Pha: 8},
	})
	events, err := ReadEvents(buf, 10, true)
	require.NoError(t, err)
	require.Equal(t, 2, events.NEvents())
	assert.Equal(t, []float64{0.5, 1.5}, events.Time)
	assert.Equal(t, float32(100.), events.RawX[0])
	assert.Equal(t, float32(100.), events.XCorr[0]) // seeded from raw
	assert.Equal(t, int16(8), events.Pha[1])
	assert.Equal(t, float32(1.), events.Epsilon[0])
}

func TestReadEventsMaxEvents(t *testing.T) {
	buf := encodeRecords(t, []EventRecord{
		{Time: 0.5}, {Time: 1.5}, {Time: 2.5},
	})
	events, err := ReadEvents(buf, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, events.NEvents())
}

func TestReadEventsRejectsUnsortedTimes(t *testing.T) {
	buf := encodeRecords(t, []EventRecord{
		{Time: 1.5}, {Time: 0.5},
	})
	_, err := ReadEvents(buf, 10, false)
	var badTable *ErrBadEventTable
	require.ErrorAs(t, err, &badTable)
}

func TestReadEventsRejectsTruncatedRecord(t *testing.T) {
	buf := encodeRecords(t, []EventRecord{{Time: 0.5}})
	buf.Truncate(buf.Len() - 3)
	_, err := ReadEvents(buf, 10, false)
	var badTable *ErrBadEventTable
	require.ErrorAs(t, err, &badTable)
}

func TestTimeRange(t *testing.T) {
	time := []float64{0., 1., 2., 3., 4.}
	i, j := timeRange(time, 1., 3.)
	assert.Equal(t, 1, i)
	assert.Equal(t, 3, j)

	// Empty range when no event time falls in the window.
	i, j = timeRange(time, 10., 20.)
	assert.Equal(t, i, j)

	i, j = timeRange(nil, 0., 1.)
	assert.Equal(t, 0, i)
	assert.Equal(t, 0, j)
}

func TestCopyColumns(t *testing.T) {
	events := NewEventTable(2, false)
	events.XCorr[0] = 12.
	events.YCorr[1] = 7.
	events.CopyColumns()
	assert.Equal(t, float32(12.), events.XDopp[0])
	assert.Equal(t, float32(12.), events.XFull[0])
	assert.Equal(t, float32(7.), events.YFull[1])
}
