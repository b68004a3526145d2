package timetag

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// eventWriteChunk is how many corrected event rows are appended per
// HDF5 write.
const eventWriteChunk = 32768

// Writer assembles the corrected-event product: the event table, the
// recomputed good time intervals, switch states and numeric keywords,
// the binned image planes and the optional extras.
type Writer struct {
	File        *hdf5.File
	Filename    string
	EventsGroup *hdf5.Group
	ImagesGroup *hdf5.Group
	HeaderGroup *hdf5.Group

	EventTable   *hdf5.Dataset
	GTITable     *hdf5.Dataset
	SwitchTable  *hdf5.Dataset
	KeywordTable *hdf5.Dataset

	RowCounter int
}

func NewWriter(filename string) *Writer {
	// Set string size for HDF5
	hdf5.SetStringLength(STRLEN)

	writer := &Writer{}
	fmt.Println("hdf5writer: Creating file: ", filename)
	writer.File = openFile(filename)
	writer.Filename = filename
	writer.EventsGroup = createGroup(writer.File, "Events")
	writer.ImagesGroup = createGroup(writer.File, "Images")
	writer.HeaderGroup = createGroup(writer.File, "Header")
	writer.EventTable = createTable(writer.EventsGroup, "events", CorrectedEventHDF5{})
	writer.GTITable = createTable(writer.EventsGroup, "gti", GTIHDF5{})
	writer.SwitchTable = createTable(writer.HeaderGroup, "switches", SwitchHDF5{})
	writer.KeywordTable = createTable(writer.HeaderGroup, "keywords", KeywordHDF5{})
	writer.RowCounter = 0
	return writer
}

// WriteEvents appends the whole corrected event table in chunks.
func (w *Writer) WriteEvents(events *EventTable) {
	n := events.NEvents()
	for start := 0; start < n; start += eventWriteChunk {
		end := start + eventWriteChunk
		if end > n {
			end = n
		}
		rows := make([]CorrectedEventHDF5, end-start)
		for i := start; i < end; i++ {
			row := CorrectedEventHDF5{
				time:    events.Time[i],
				rawx:    events.RawX[i],
				rawy:    events.RawY[i],
				xcorr:   events.XCorr[i],
				ycorr:   events.YCorr[i],
				xdopp:   events.XDopp[i],
				ydopp:   events.YDopp[i],
				xfull:   events.XFull[i],
				yfull:   events.YFull[i],
				dq:      int16(events.DQ[i]),
				epsilon: events.Epsilon[i],
			}
			if events.HasPha {
				row.pha = events.Pha[i]
			}
			rows[i-start] = row
		}
		writeArrayToTable(w.EventTable, &rows, w.RowCounter)
		w.RowCounter += len(rows)
	}
}

// WriteGTI records the recomputed good time intervals.
func (w *Writer) WriteGTI(gti GTISet) {
	rows := make([]GTIHDF5, len(gti.Intervals))
	for i, iv := range gti.Intervals {
		rows[i] = GTIHDF5{start: iv.Start, stop: iv.Stop}
	}
	if len(rows) > 0 {
		writeArrayToTable(w.GTITable, &rows, 0)
	}
}

// WriteSwitches records the final state of every calibration switch.
func (w *Writer) WriteSwitches(states map[string]string) {
	names := maps.Keys(states)
	slices.Sort(names)
	rows := make([]SwitchHDF5, len(names))
	for i, name := range names {
		rows[i] = SwitchHDF5{
			name:  convertToHdf5String(name),
			state: convertToHdf5String(states[name]),
		}
	}
	writeArrayToTable(w.SwitchTable, &rows, 0)
}

// WriteKeywords records the derived numeric metadata.
func (w *Writer) WriteKeywords(results *Results) {
	entries := []struct {
		keyword string
		value   float64
	}{
		{"EXPTIME", results.ExpTime},
		{"GLOBRATE", results.GlobalRate},
		{"V_HELIO", results.VHelio},
		{"RANDSEED", float64(results.RandSeed)},
		{"NBRST", float64(results.NBurst)},
		{"NBADT", float64(results.NBadTime)},
		{"NPHA_L", float64(results.NPhaLow)},
		{"NPHA_H", float64(results.NPhaHigh)},
		{"SDQFLAGS", float64(results.SeriousDQ)},
		{"STIM1_X", results.Stims.AvgX1},
		{"STIM1_Y", results.Stims.AvgY1},
		{"STIM2_X", results.Stims.AvgX2},
		{"STIM2_Y", results.Stims.AvgY2},
		{"STIM1RMS_X", results.Stims.RMSX1},
		{"STIM1RMS_Y", results.Stims.RMSY1},
		{"STIM2RMS_X", results.Stims.RMSX2},
		{"STIM2RMS_Y", results.Stims.RMSY2},
		{"STIMRATE", results.Stims.CountRate},
		{"DEADRT", results.Deadtime.Rate},
		{"LIVETM", results.Deadtime.LivetimeMeasured},
		{"SHIFT1AVG", results.Wavecal.AvgShift1},
		{"SHIFT2AVG", results.Wavecal.AvgShift2},
		{"DPIXEL1", results.Wavecal.DPixel1},
	}
	rows := make([]KeywordHDF5, len(entries))
	for i, entry := range entries {
		rows[i] = KeywordHDF5{
			keyword: convertToHdf5String(entry.keyword),
			value:   entry.value,
		}
	}
	writeArrayToTable(w.KeywordTable, &rows, 0)
}

func (w *Writer) Close() {
	w.EventTable.Close()
	w.GTITable.Close()
	w.SwitchTable.Close()
	w.KeywordTable.Close()
	w.EventsGroup.Close()
	w.ImagesGroup.Close()
	w.HeaderGroup.Close()
	w.File.Close()
}

func writePlanes(group *hdf5.Group, im *ImageSet, planes []struct {
	name string
	data []float64
}) {
	for _, plane := range planes {
		dataset := createImage(group, plane.name, im.NX, im.NY)
		writeImage(dataset, &plane.data)
		dataset.Close()
	}
}

func writeDQPlane(group *hdf5.Group, plane []uint16, nx, ny int) {
	if plane == nil {
		return
	}
	data := make([]int16, len(plane))
	for i, v := range plane {
		data[i] = int16(v)
	}
	dataset := createShortImage(group, "dq", nx, ny)
	writeShortImage(dataset, &data)
	dataset.Close()
}

// WriteTagFile writes the corrected-event product: the event table,
// recomputed good time intervals, switch states and derived keywords.
func WriteTagFile(filename string, p *Pipeline) {
	writer := NewWriter(filename)
	defer writer.Close()

	writer.WriteEvents(p.Events)
	writer.WriteGTI(p.Results.GTI)
	writer.WriteSwitches(p.Results.StatusText())
	writer.WriteKeywords(&p.Results)
}

// WriteCountsFile writes the count image with its rate, error and
// data-quality planes.
func WriteCountsFile(filename string, p *Pipeline) {
	hdf5.SetStringLength(STRLEN)
	file := openFile(filename)
	defer file.Close()
	group := createGroup(file, "Images")
	defer group.Close()

	writePlanes(group, p.Images, []struct {
		name string
		data []float64
	}{
		{"counts", p.Images.Counts},
		{"count_rate", p.Images.CRate},
		{"count_rate_err", p.Images.CError},
	})
	nx, ny := DetectorSize(p.Config.Detector)
	writeDQPlane(group, p.DQPlane, nx, ny)
}

// WriteFltFile writes the flat-fielded ("effective") rate image with
// its error and data-quality planes.
func WriteFltFile(filename string, p *Pipeline) {
	hdf5.SetStringLength(STRLEN)
	file := openFile(filename)
	defer file.Close()
	group := createGroup(file, "Images")
	defer group.Close()

	writePlanes(group, p.Images, []struct {
		name string
		data []float64
	}{
		{"eff_rate", p.Images.ERate},
		{"eff_rate_err", p.Images.EError},
	})
	nx, ny := DetectorSize(p.Config.Detector)
	writeDQPlane(group, p.DQPlane, nx, ny)
}

// WriteCsumFile writes the cumulative-sum image, 3-D when binned by
// pulse height.
func WriteCsumFile(filename string, csum *CumulativeImage) {
	if csum == nil {
		return
	}
	file := openFile(filename)
	defer file.Close()
	group := createGroup(file, "Images")
	defer group.Close()

	var dataset *hdf5.Dataset
	if csum.NZ > 1 {
		dataset = createCube(group, "csum", csum.NX, csum.NY, csum.NZ)
	} else {
		dataset = createImage(group, "csum", csum.NX, csum.NY)
	}
	writeImage(dataset, &csum.Data)
	dataset.Close()
}

// WriteProducts writes every configured output of one pipeline run.
// Outputs are written only after the pipeline has fully succeeded.
func WriteProducts(cfg *Configuration, p *Pipeline) {
	if cfg.OutTag != "" {
		WriteTagFile(cfg.OutTag, p)
	}
	if cfg.OutCounts != "" {
		WriteCountsFile(cfg.OutCounts, p)
	}
	if cfg.OutFlt != "" {
		WriteFltFile(cfg.OutFlt, p)
	}
	if cfg.OutCsum != "" {
		WriteCsumFile(cfg.OutCsum, p.Csum)
	}
}
