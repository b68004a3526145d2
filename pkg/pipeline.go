package timetag

import (
	"fmt"
	"io"
	"os"
)

// Results collects per-correction outcomes and the derived scalars
// reported in the output metadata.
type Results struct {
	Status [NCorrections]CalStatus

	ExpTime    float64 // exposure time after GTI narrowing
	GTI        GTISet
	GlobalRate float64 // input events / nominal exposure time
	VHelio     float64 // km/s
	RandSeed   int64

	Stims    StimSummary
	Doppler  DopplerReport
	Deadtime DeadtimeReport
	Wavecal  WavecalReport

	NBurst   int
	NBadTime int
	NPhaLow  int
	NPhaHigh int

	SeriousDQ uint16
}

// StatusText renders the per-correction outcomes keyed by switch name.
func (r *Results) StatusText() map[string]string {
	out := make(map[string]string, int(NCorrections))
	for c := Correction(0); c < NCorrections; c++ {
		out[c.String()] = r.Status[c].String()
	}
	return out
}

// Pipeline runs the calibration stage sequence over one exposure's
// event table.  A Pipeline owns its table and results; concurrent runs
// must use separate Pipeline values.
type Pipeline struct {
	Config  *Configuration
	Refs    RefTables
	Events  *EventTable
	Results Results

	Images  *ImageSet
	Csum    *CumulativeImage
	DQPlane []uint16

	regions Regions
	active  []bool
	serious SeriousDQ
}

// NewPipeline wires a pipeline for one exposure.
func NewPipeline(cfg *Configuration, refs RefTables, events *EventTable) *Pipeline {
	p := &Pipeline{Config: cfg, Refs: refs, Events: events}
	for c := Correction(0); c < NCorrections; c++ {
		if cfg.Switches.Get(c) == SwitchPerform {
			p.Results.Status[c] = StatusPending
		}
	}
	return p
}

// DetectorSize returns the output image dimensions for the detector.
func DetectorSize(detector string) (int, int) {
	if detector == "NUV" {
		return NUVX, NUVY
	}
	return FUVX, FUVY
}

func (p *Pipeline) perform(c Correction) bool {
	return p.Config.Switches.Get(c) == SwitchPerform
}

func (p *Pipeline) setStatus(c Correction, applied bool) {
	if !p.perform(c) {
		return
	}
	if applied {
		p.Results.Status[c] = StatusComplete
	} else {
		p.Results.Status[c] = StatusSkipped
	}
}

// Run executes the full stage sequence.  On an empty event table it
// takes the null-output path: zero-valued images of the right shape,
// every requested correction marked skipped, and no error.
func (p *Pipeline) Run() error {
	cfg := p.Config
	nx, ny := DetectorSize(cfg.Detector)
	p.Images = NewImageSet(nx+cfg.XOffset, ny)

	if p.Events.NEvents() == 0 {
		logger.Warning("Event table is empty; writing null output images", "pipeline")
		p.nullOutputs(nx, ny)
		return nil
	}

	var baseline BaselineRef
	if cfg.Detector == "FUV" {
		ref, err := p.Refs.Baseline(cfg.Segment)
		if err != nil {
			return err
		}
		baseline = ref
	}
	p.active = ActiveArea(p.Events, cfg.Detector, baseline)

	if cfg.ExpTime > 0. {
		p.Results.GlobalRate = float64(p.Events.NEvents()) / cfg.ExpTime
	}

	if err := p.narrowGoodTimes(); err != nil {
		return err
	}
	p.filterPulseHeight()

	if p.perform(RandCorr) {
		p.Results.RandSeed = ApplyRandomDither(p.Events, p.active, cfg.RandSeed)
		p.setStatus(RandCorr, true)
	}
	if err := p.correctThermal(baseline); err != nil {
		return err
	}
	if err := p.correctGeometry(); err != nil {
		return err
	}
	// The thermal and geometric corrections move events, so the
	// active-area classification has to be redone.
	p.active = ActiveArea(p.Events, cfg.Detector, baseline)

	regions, err := ComputeRegions(p.Refs, cfg)
	if err != nil {
		return err
	}
	p.regions = regions

	p.Events.CopyColumns()

	if p.perform(DoppCorr) {
		report, err := ApplyOrbitalDoppler(p.Events, p.active, p.regions, p.Refs, cfg)
		if err != nil {
			return err
		}
		p.Results.Doppler = report
		p.setStatus(DoppCorr, report.Applied)
	}
	if p.perform(HelCorr) {
		mid := cfg.ExpStart + cfg.ExpTime/2./SecPerDay
		p.Results.VHelio = HeliocentricVelocity(mid, cfg.RATarg, cfg.DecTarg)
		p.setStatus(HelCorr, true)
	}

	if err := p.correctDeadtime(); err != nil {
		return err
	}

	// The cumulative image is binned before flat-fielding so that it
	// can serve as input for building flat fields.
	if cfg.OutCsum != "" {
		p.Csum = BinCumulative(p.Events, nx, ny, p.Events.HasPha)
	}

	if p.perform(FlatCorr) {
		flat, err := p.Refs.Flat(cfg.Segment)
		if err != nil {
			return err
		}
		p.setStatus(FlatCorr, ApplyFlatField(p.Events, flat))
	}
	if p.perform(WaveCorr) {
		p.Results.Wavecal = ApplyWavecalShifts(p.Events, p.active, p.regions, cfg)
		p.setStatus(WaveCorr, p.Results.Wavecal.Applied)
	}
	if err := p.flagDataQuality(nx, ny); err != nil {
		return err
	}

	BinEvents(p.Events, p.Images, p.serious, cfg.XOffset)
	FinishImages(p.Images, p.Results.ExpTime)
	p.Results.SeriousDQ = p.serious.Mask()
	return nil
}

// nullOutputs fills the degenerate products for an empty exposure.
func (p *Pipeline) nullOutputs(nx, ny int) {
	FinishImages(p.Images, 0.)
	p.Results.GTI = NewGTISet([]Interval{})
	if p.Config.OutCsum != "" {
		p.Csum = BinCumulative(p.Events, nx, ny, p.Events.HasPha)
	}
	if p.perform(DqiCorr) {
		p.DQPlane = make([]uint16, nx*ny)
	}
	for c := Correction(0); c < NCorrections; c++ {
		if p.Results.Status[c] == StatusPending {
			p.Results.Status[c] = StatusSkipped
		}
	}
}

// narrowGoodTimes starts from the exposure's declared good time
// intervals, runs burst detection and bad-time filtering, narrows the
// intervals, recomputes the exposure time and flags every event outside
// the surviving intervals.
func (p *Pipeline) narrowGoodTimes() error {
	cfg := p.Config

	expTime := cfg.ExpTime
	if expTime <= 0. {
		n := p.Events.NEvents()
		expTime = p.Events.Time[n-1] - p.Events.Time[0]
	}

	var gti GTISet
	switch {
	case len(cfg.GoodTimeIntervals) > 0:
		gti = NewGTISet(cfg.GoodTimeIntervals)
	case cfg.ExpTime > 0.:
		gti = NewGTISet([]Interval{{Start: 0., Stop: cfg.ExpTime}})
	default:
		// No declared intervals and no exposure time: the span of
		// the recorded events is the best available estimate.
		n := p.Events.NEvents()
		gti = NewGTISet([]Interval{{Start: p.Events.Time[0], Stop: p.Events.Time[n-1]}})
	}

	if p.perform(BurstCorr) {
		report := FlagBursts(p.Events, p.active, expTime, cfg.BurstMedianFactor)
		p.Results.NBurst = report.NFlagged
		gti = gti.SubtractAll(report.Intervals)
		p.setStatus(BurstCorr, true)
		p.serious.Add(DQBurst)
	}

	if p.perform(BadtCorr) {
		rows, err := p.Refs.BadTimes(cfg.Segment)
		if err != nil {
			return err
		}
		SortBadTimes(rows)
		bad := BadTimesToIntervals(rows, cfg.ExpStart, expTime)
		gti = gti.SubtractAll(bad)
		p.setStatus(BadtCorr, true)
		p.serious.Add(DQBadTime)
	}

	p.Results.ExpTime = gti.RecomputeExposure(cfg.ExpTime)
	p.Results.GTI = gti
	p.Results.NBadTime = FlagBadTime(p.Events, gti)
	return nil
}

func (p *Pipeline) filterPulseHeight() {
	if !p.perform(PhaCorr) {
		return
	}
	if !p.Events.HasPha {
		logger.Warning("Pulse-height filtering requested but the event table has no pulse-height column", "pipeline")
		p.setStatus(PhaCorr, false)
		return
	}
	limits, err := p.Refs.PulseHeight(p.Config.Segment)
	if err != nil {
		logger.Warning(err.Error(), "pipeline")
		p.setStatus(PhaCorr, false)
		return
	}
	report := FilterByPulseHeight(p.Events, p.active, limits)
	p.Results.NPhaLow = report.NLow
	p.Results.NPhaHigh = report.NHigh
	p.setStatus(PhaCorr, true)
	p.serious.Add(DQPHLow | DQPHHigh)
}

// correctThermal tracks the stim positions and applies the per-window
// affine correction.  Thermal tracking only exists for FUV.
func (p *Pipeline) correctThermal(baseline BaselineRef) error {
	if !p.perform(TempCorr) {
		return nil
	}
	if p.Config.Detector != "FUV" {
		p.setStatus(TempCorr, false)
		return nil
	}

	var diagnostics io.Writer
	if p.Config.StimFile != "" {
		f, err := os.Create(p.Config.StimFile)
		if err != nil {
			return &ErrOpenFile{Filename: p.Config.StimFile, Err: err}
		}
		defer f.Close()
		diagnostics = f
	}

	p.Results.Stims = TrackStims(p.Events, baseline, p.Results.ExpTime, diagnostics)
	applied := ApplyThermalDistortion(p.Events, p.Results.Stims)
	p.setStatus(TempCorr, applied)
	return nil
}

func (p *Pipeline) correctGeometry() error {
	if !p.perform(GeoCorr) {
		return nil
	}
	grid, err := p.Refs.Distortion(p.Config.Segment)
	if err != nil {
		return err
	}
	if err := ApplyGeometricCorrection(p.Events, grid); err != nil {
		return err
	}
	p.setStatus(GeoCorr, true)
	return nil
}

func (p *Pipeline) correctDeadtime() error {
	if !p.perform(DeadCorr) {
		return nil
	}
	table, err := p.Refs.Deadtime(p.Config.Segment)
	if err != nil {
		return err
	}

	var livetimeFile io.Writer
	if p.Config.LivetimeFile != "" {
		f, err := os.Create(p.Config.LivetimeFile)
		if err != nil {
			return &ErrOpenFile{Filename: p.Config.LivetimeFile, Err: err}
		}
		defer f.Close()
		livetimeFile = f
	}

	report := ApplyDeadtimeCorrection(p.Events, table, p.Config, p.Results.ExpTime, livetimeFile)
	p.Results.Deadtime = report

	// The stim count rate gives an independent livetime check for FUV.
	if p.Config.Detector == "FUV" && p.Config.StimRate > 0. {
		if factor, ok := StimLivetime(&p.Results.Stims, p.Results.ExpTime, p.Config.StimRate); ok {
			message := fmt.Sprintf("Livetime from stim rate is %.4f, from %s rate is %.4f",
				factor, report.Method, report.LivetimeMeasured)
			logger.Info(message, "deadtime")
		}
	}
	p.setStatus(DeadCorr, report.Applied)
	return nil
}

func (p *Pipeline) flagDataQuality(nx, ny int) error {
	if !p.perform(DqiCorr) {
		return nil
	}
	regions, err := p.Refs.BadPixels(p.Config.Segment)
	if err != nil {
		return err
	}
	FlagBadPixels(p.Events, regions, nx, ny)
	p.DQPlane = BuildDQPlane(nx, ny, regions, p.Results.Doppler, p.Results.Wavecal)
	p.setStatus(DqiCorr, true)
	p.serious.Add(DQBadPixel | DQOutOfBounds)
	return nil
}
