package timetag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRefTables is an in-memory RefTables for tests.
type stubRefTables struct {
	baseline   BaselineRef
	badTimes   []BadTimeRow
	pha        PulseHeightLimits
	deadtime   DeadtimeTable
	dispersion DispersionRelation
	traces     map[string]TracePosition
	wavecal    WavecalParams
	badPixels  []BadPixelRegion
	distortion DistortionGrid
	flat       FlatField
}

func (r *stubRefTables) Baseline(string) (BaselineRef, error)        { return r.baseline, nil }
func (r *stubRefTables) BadTimes(string) ([]BadTimeRow, error)       { return r.badTimes, nil }
func (r *stubRefTables) PulseHeight(string) (PulseHeightLimits, error) {
	return r.pha, nil
}
func (r *stubRefTables) Deadtime(string) (DeadtimeTable, error) { return r.deadtime, nil }
func (r *stubRefTables) Dispersion(string, int, string, string, int) (DispersionRelation, error) {
	return r.dispersion, nil
}
func (r *stubRefTables) Trace(optElem string, cenwave int, segment, aperture string) (TracePosition, error) {
	return r.traces[segment+"/"+aperture], nil
}
func (r *stubRefTables) Wavecal(string) (WavecalParams, error)     { return r.wavecal, nil }
func (r *stubRefTables) BadPixels(string) ([]BadPixelRegion, error) { return r.badPixels, nil }
func (r *stubRefTables) Distortion(string) (DistortionGrid, error) { return r.distortion, nil }
func (r *stubRefTables) Flat(string) (FlatField, error)            { return r.flat, nil }

func nuvStubRefs() *stubRefTables {
	flat := FlatField{OriginX: 0, OriginY: 0, NX: NUVX, NY: NUVY}
	flat.Data = make([]float64, flat.NX*flat.NY)
	for i := range flat.Data {
		flat.Data[i] = 2.
	}
	return &stubRefTables{
		badTimes: []BadTimeRow{
			{Start: 55000. + 20./SecPerDay, Stop: 55000. + 30./SecPerDay},
		},
		pha:      PulseHeightLimits{Low: 2, High: 23},
		deadtime: DeadtimeTable{ObsRate: []float64{100., 200.}, Livetime: []float64{0.9, 0.7}, Timestep: 10.},
		dispersion: DispersionRelation{
			Coeff:       []float64{2500., 0.05},
			Delta:       0.,
			HasFPOffset: true,
		},
		traces: map[string]TracePosition{
			"NUVA/PSA": {BSpec: 100.},
			"NUVB/PSA": {BSpec: 300.},
			"NUVC/PSA": {BSpec: 500.},
			"NUVA/WCA": {BSpec: 700.},
			"NUVB/WCA": {BSpec: 800.},
			"NUVC/WCA": {BSpec: 900.},
		},
		wavecal:    WavecalParams{StepSize: 1.},
		badPixels:  []BadPixelRegion{{LX: 900, LY: 900, DX: 10, DY: 10, DQ: DQBadPixel}},
		distortion: uniformGrid(5, 5, 256., 256., 0., 0.),
		flat:       flat,
	}
}

func nuvTestConfig() *Configuration {
	return &Configuration{
		Detector:     "NUV",
		Segment:      "NUV",
		OptElem:      "G230L",
		CenWave:      2950,
		Aperture:     "PSA",
		ExpStart:     55000.,
		ExpTime:      100.,
		RATarg:       123.4,
		DecTarg:      -20.,
		DoppMagV:     7.5,
		DoppZero:     55000.,
		OrbitPer:     5760.,
		DECCountRate: 11.,
		OutCsum:      "csum.h5",
		WavecalShifts: map[string]WavecalShift{
			"NUVA": {Shift1Zero: 2.},
			"NUVB": {Shift1Zero: 2.},
			"NUVC": {Shift1Zero: 2.},
		},
		BurstMedianFactor: 10.,
		Switches: Switches{
			Burst: SwitchPerform,
			Badt:  SwitchPerform,
			Pha:   SwitchPerform,
			Temp:  SwitchPerform,
			Geo:   SwitchPerform,
			Dopp:  SwitchPerform,
			Hel:   SwitchPerform,
			Dead:  SwitchPerform,
			Flat:  SwitchPerform,
			Wave:  SwitchPerform,
			Dqi:   SwitchPerform,
		},
	}
}

func nuvTestEvents(n int) *EventTable {
	events := NewEventTable(n, false)
	for i := 0; i < n; i++ {
		events.Time[i] = 100. * float64(i) / float64(n)
		events.RawX[i] = float32(300 + i%300)
		events.RawY[i] = float32(100 + i%50)
		events.XCorr[i] = events.RawX[i]
		events.YCorr[i] = events.RawY[i]
	}
	return events
}

func TestPipelineRun(t *testing.T) {
	cfg := nuvTestConfig()
	events := nuvTestEvents(1000)
	timeBefore := append([]float64(nil), events.Time...)

	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())

	// The time column is never reordered or rewritten.
	if diff := cmp.Diff(timeBefore, events.Time); diff != "" {
		t.Errorf("time column changed (-before +after):\n%s", diff)
	}

	// The bad-time interval removes 10 s from the exposure.
	assert.InDelta(t, 90., pipeline.Results.ExpTime, 1e-6)
	assert.InDelta(t, 90., pipeline.Results.GTI.Duration(), 1e-6)

	status := pipeline.Results.StatusText()
	assert.Equal(t, "COMPLETE", status["BADTCORR"])
	assert.Equal(t, "COMPLETE", status["GEOCORR"])
	assert.Equal(t, "COMPLETE", status["DOPPCORR"])
	assert.Equal(t, "COMPLETE", status["HELCORR"])
	assert.Equal(t, "COMPLETE", status["DEADCORR"])
	assert.Equal(t, "COMPLETE", status["FLATCORR"])
	assert.Equal(t, "COMPLETE", status["WAVECORR"])
	assert.Equal(t, "COMPLETE", status["DQICORR"])
	// No stims on the NUV detector, no pulse-height column in the table.
	assert.Equal(t, "SKIPPED", status["TEMPCORR"])
	assert.Equal(t, "SKIPPED", status["PHACORR"])

	// Binning conservation: counts equal events without serious flags.
	unflagged := 0
	for _, dq := range events.DQ {
		if dq&pipeline.Results.SeriousDQ == 0 {
			unflagged++
		}
	}
	assert.InDelta(t, float64(unflagged), pipeline.Images.TotalCounts(), 0.)

	// The cumulative image counts every event regardless of flags.
	require.NotNil(t, pipeline.Csum)
	total := 0.
	for _, v := range pipeline.Csum.Data {
		total += v
	}
	assert.InDelta(t, float64(events.NEvents()), total, 0.)

	// Heliocentric velocity is bounded by Earth's orbital speed.
	assert.Less(t, pipeline.Results.VHelio, 30.5)
	assert.Greater(t, pipeline.Results.VHelio, -30.5)

	assert.InDelta(t, 10., pipeline.Results.GlobalRate, 1e-9)
}

func TestPipelineDopplerReachesFinalFrameWithoutWavecal(t *testing.T) {
	cfg := nuvTestConfig()
	cfg.Switches.Wave = SwitchOmit
	cfg.WavecalShifts = nil
	events := nuvTestEvents(1000)

	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())
	require.Equal(t, "COMPLETE", pipeline.Results.StatusText()["DOPPCORR"])

	// The Doppler shift moved events off their corrected coordinate...
	moved := 0
	for i := range events.XDopp {
		if events.XDopp[i] != events.XCorr[i] {
			moved++
		}
	}
	assert.Greater(t, moved, 0)

	// ...and the binned product sees the shifted coordinate.
	stale := 0
	for i := range events.XFull {
		if events.XFull[i] != events.XDopp[i] {
			stale++
		}
	}
	assert.Zero(t, stale)
}

func TestPipelineDeclaredGoodTimeIntervals(t *testing.T) {
	cfg := nuvTestConfig()
	cfg.Switches.Badt = SwitchOmit
	cfg.GoodTimeIntervals = []Interval{
		{Start: 0., Stop: 40.},
		{Start: 60., Stop: 100.},
	}
	events := nuvTestEvents(1000)

	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())

	assert.InDelta(t, 80., pipeline.Results.ExpTime, 1e-6)
	// Event times step by 0.1 s, so [40.02, 59.98) holds 199 events.
	assert.Equal(t, 199, pipeline.Results.NBadTime)
}

func TestPipelineFallsBackToEventSpan(t *testing.T) {
	// With no declared intervals and no exposure time, the good time
	// span is the recorded event span, not [0, duration) -- events
	// recorded after a late start must stay good.
	cfg := nuvTestConfig()
	cfg.ExpTime = 0.
	events := nuvTestEvents(1000)
	for i := range events.Time {
		events.Time[i] = 5. + 90.*float64(i)/1000.
	}

	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())

	// Span [5, 94.91] minus the bad-time interval [20, 30].
	assert.InDelta(t, 79.91, pipeline.Results.ExpTime, 1e-6)
	assert.Zero(t, events.DQ[0]&DQBadTime)
	assert.Zero(t, events.DQ[len(events.DQ)-1]&DQBadTime)
}

func TestPipelineEmptyTable(t *testing.T) {
	cfg := nuvTestConfig()
	events := NewEventTable(0, false)

	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())

	require.NotNil(t, pipeline.Images)
	assert.Equal(t, NUVX, pipeline.Images.NX)
	assert.Equal(t, NUVY, pipeline.Images.NY)
	for k := range pipeline.Images.Counts {
		assert.Zero(t, pipeline.Images.Counts[k])
		assert.Zero(t, pipeline.Images.ERate[k])
	}
	for name, state := range pipeline.Results.StatusText() {
		if state == "OMIT" {
			continue // correction was never requested
		}
		assert.Equal(t, "SKIPPED", state, name)
	}
	assert.Empty(t, pipeline.Results.GTI.Intervals)
}

func TestPipelineBadTimeFlagsAreSerious(t *testing.T) {
	cfg := nuvTestConfig()
	events := nuvTestEvents(1000)
	pipeline := NewPipeline(cfg, nuvStubRefs(), events)
	require.NoError(t, pipeline.Run())

	assert.NotZero(t, pipeline.Results.NBadTime)
	assert.NotZero(t, pipeline.Results.SeriousDQ&DQBadTime)

	// Flagged events landed outside the surviving intervals.
	for i, dq := range events.DQ {
		if dq&DQBadTime != 0 {
			tEvt := events.Time[i]
			assert.True(t, tEvt > 20.-SmallTimeIncrement && tEvt < 30.+SmallTimeIncrement,
				"event at %f flagged bad time", tEvt)
		}
	}
}
