package timetag

import (
	"encoding/json"
	"fmt"
	"os"
)

// CalSwitch is the requested state of one calibration correction.
type CalSwitch int

const (
	SwitchOmit CalSwitch = iota
	SwitchPerform
)

func (s CalSwitch) String() string {
	if s == SwitchPerform {
		return "PERFORM"
	}
	return "OMIT"
}

func (s *CalSwitch) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	switch text {
	case "PERFORM":
		*s = SwitchPerform
	case "OMIT", "":
		*s = SwitchOmit
	default:
		return fmt.Errorf("invalid calibration switch %q", text)
	}
	return nil
}

func (s CalSwitch) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CalStatus is the final state of a correction after the run.
type CalStatus int

const (
	StatusOmit CalStatus = iota
	StatusPending
	StatusComplete
	StatusSkipped
)

func (s CalStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusComplete:
		return "COMPLETE"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "OMIT"
	}
}

// Correction identifies one calibration step.
type Correction int

const (
	BurstCorr Correction = iota
	BadtCorr
	PhaCorr
	RandCorr
	TempCorr
	GeoCorr
	DoppCorr
	HelCorr
	DeadCorr
	FlatCorr
	WaveCorr
	DqiCorr
	NCorrections
)

var correctionNames = [NCorrections]string{
	"BRSTCORR", "BADTCORR", "PHACORR", "RANDCORR", "TEMPCORR", "GEOCORR",
	"DOPPCORR", "HELCORR", "DEADCORR", "FLATCORR", "WAVECORR", "DQICORR",
}

func (c Correction) String() string { return correctionNames[c] }

// Switches holds the requested state of every correction.
type Switches struct {
	Burst CalSwitch `json:"brstcorr"`
	Badt  CalSwitch `json:"badtcorr"`
	Pha   CalSwitch `json:"phacorr"`
	Rand  CalSwitch `json:"randcorr"`
	Temp  CalSwitch `json:"tempcorr"`
	Geo   CalSwitch `json:"geocorr"`
	Dopp  CalSwitch `json:"doppcorr"`
	Hel   CalSwitch `json:"helcorr"`
	Dead  CalSwitch `json:"deadcorr"`
	Flat  CalSwitch `json:"flatcorr"`
	Wave  CalSwitch `json:"wavecorr"`
	Dqi   CalSwitch `json:"dqicorr"`
}

// Get returns the requested switch for a correction.
func (s *Switches) Get(c Correction) CalSwitch {
	switch c {
	case BurstCorr:
		return s.Burst
	case BadtCorr:
		return s.Badt
	case PhaCorr:
		return s.Pha
	case RandCorr:
		return s.Rand
	case TempCorr:
		return s.Temp
	case GeoCorr:
		return s.Geo
	case DoppCorr:
		return s.Dopp
	case HelCorr:
		return s.Hel
	case DeadCorr:
		return s.Dead
	case FlatCorr:
		return s.Flat
	case WaveCorr:
		return s.Wave
	case DqiCorr:
		return s.Dqi
	}
	return SwitchOmit
}

// WavecalShift holds the shift-vs-time parameters derived from a wavecal
// exposure: shift(t) = zero + slope*(t - t0), per axis.
type WavecalShift struct {
	Shift1Zero  float64 `json:"shift1_zero"`
	Shift1Slope float64 `json:"shift1_slope"`
	Shift2Zero  float64 `json:"shift2_zero"`
	Shift2Slope float64 `json:"shift2_slope"`
}

type Configuration struct {
	MaxEvents int    `json:"max_events"`
	Verbosity int    `json:"verbosity"`
	FileIn    string `json:"file_in"`
	OutTag    string `json:"out_tag"`
	OutCounts string `json:"out_counts"`
	OutFlt    string `json:"out_flt"`
	OutCsum   string `json:"out_csum"`

	// Optional diagnostic text files, one line per time window.
	StimFile     string `json:"stim_file"`
	LivetimeFile string `json:"livetime_file"`

	Host   string `json:"host"`
	User   string `json:"user"`
	Passwd string `json:"pass"`
	DBName string `json:"dbname"`

	// Exposure metadata.
	Detector string  `json:"detector"` // FUV or NUV
	Segment  string  `json:"segment"`  // FUVA, FUVB or NUV
	OptElem  string  `json:"opt_elem"`
	CenWave  int     `json:"cenwave"`
	Aperture string  `json:"aperture"`
	FPOffset int     `json:"fpoffset"`
	ExpStart float64 `json:"expstart"` // MJD
	ExpTime  float64 `json:"exptime"`  // seconds

	// Good time intervals declared with the exposure, seconds from the
	// exposure start.  Empty means the whole exposure is good.
	GoodTimeIntervals []Interval `json:"gti"`
	RATarg   float64 `json:"ra_targ"`  // degrees, J2000
	DecTarg  float64 `json:"dec_targ"` // degrees, J2000

	// Orbital Doppler keywords.
	DoppMagV float64 `json:"doppmagv"` // km/s
	DoppZero float64 `json:"doppzero"` // MJD when shift is zero and increasing
	OrbitPer float64 `json:"orbitper"` // seconds

	// Deadtime inputs.
	DECCountRate float64 `json:"dec_countrate"` // digital event counter rate
	StimRate     float64 `json:"stimrate"`      // input stim rate, counts/s
	Subarray     bool    `json:"subarray"`
	NSubarrays   int     `json:"nsubarry"`

	// Burst detection.
	BurstMedianFactor float64 `json:"burst_median_factor"`

	// Image assembly.
	XOffset  int   `json:"x_offset"`
	RandSeed int64 `json:"randseed"`

	// Wavecal shifts measured out-of-band, keyed by segment or stripe
	// (FUVA/FUVB or NUVA/NUVB/NUVC).  Empty means no wavecal was taken.
	WavecalShifts map[string]WavecalShift `json:"wavecal_shifts"`

	Switches Switches `json:"switches"`
}

func LoadConfiguration(filename string) (Configuration, error) {
	var config Configuration

	// Set default values
	config.MaxEvents = 1000000000
	config.Verbosity = 0
	config.Detector = "FUV"
	config.Segment = "FUVA"
	config.Aperture = "PSA"
	config.OrbitPer = 5760.
	config.BurstMedianFactor = 10.
	config.RandSeed = -1
	config.Host = "cosdb.example.edu"
	config.User = "tagreader"
	config.Passwd = "readonly"
	config.DBName = "COSCAL"

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}
