package timetag

import (
	"fmt"
	"math"
)

// Physical and calendar constants.
const (
	SecPerDay    = 86400.
	SpeedOfLight = 299792.458 // km/s

	// RefDate is MJD for 2000 Jan 1.5, the epoch of the orbital
	// elements used for the heliocentric velocity.
	RefDate = 51544.5
	KmPerAU = 1.4959787e8
)

// evalDisp evaluates the dispersion polynomial at pixel x, giving the
// wavelength in Angstroms.
func evalDisp(coeff []float64, x float64) float64 {
	var wl float64
	for i := len(coeff) - 1; i >= 0; i-- {
		wl = wl*x + coeff[i]
	}
	return wl
}

// evalDerivDisp evaluates the derivative of the dispersion polynomial
// at pixel x, giving the local dispersion in Angstroms per pixel.
func evalDerivDisp(coeff []float64, x float64) float64 {
	var d float64
	for i := len(coeff) - 1; i >= 1; i-- {
		d = d*x + float64(i)*coeff[i]
	}
	return d
}

// orbitalShift is the Doppler displacement in pixels for an event at
// wavelength wl with local dispersion disp, at time t seconds after the
// exposure start.
func orbitalShift(wl, disp, t, doppMag, doppZero, orbitPer, expStart float64) float64 {
	// t is measured from the most recent zero crossing of the orbital
	// Doppler curve.
	tSec := (expStart-doppZero)*SecPerDay + t
	return doppMag / SpeedOfLight * (wl / disp) * math.Sin(2.*math.Pi*tSec/orbitPer)
}

// DopplerReport records the range of shifts applied, used to pad the
// data-quality plane.
type DopplerReport struct {
	Applied  bool
	MinShift float64
	MaxShift float64
}

// ApplyOrbitalDoppler removes the spacecraft orbital Doppler shift from
// the dispersion-axis coordinate of every event inside a classified
// science region; for FUV the event must also lie in the active area.
// The internal wavecal lamp is not Doppler-shifted, so wavecal-region
// events pass through unshifted.  The dispersion relation is looked up
// per stripe; when the relation has no per-offset rows the evaluation
// coordinate is moved back by the configured offset times the wavecal
// step size first.  The corrected coordinate is carried forward into
// XFull so it survives even when no wavecal shift is applied later.
func ApplyOrbitalDoppler(events *EventTable, active []bool, regions Regions, refs RefTables, cfg *Configuration) (DopplerReport, error) {
	report := DopplerReport{}
	if cfg.DoppMagV <= 0. || cfg.OrbitPer <= 0. {
		logger.Warning("Orbital Doppler magnitude or period is not positive; correction skipped", "doppler")
		return report, nil
	}

	type stripeDisp struct {
		disp   DispersionRelation
		offset float64
	}
	nStripes := 1
	segments := []string{cfg.Segment}
	if cfg.Detector == "NUV" {
		nStripes = NUVStripes
		segments = nuvSegments[:]
	}

	sci := make([]stripeDisp, nStripes)
	for s := 0; s < nStripes; s++ {
		disp, err := refs.Dispersion(cfg.OptElem, cfg.CenWave, "PSA", segments[s], cfg.FPOffset)
		if err != nil {
			return report, err
		}
		sci[s].disp = disp
		if !disp.HasFPOffset && cfg.FPOffset != 0 {
			// The relation carries no per-offset rows; evaluate at
			// the coordinate the zero-offset relation applies to.
			wavecal, err := refs.Wavecal(cfg.OptElem)
			if err != nil {
				return report, err
			}
			sci[s].offset = -float64(cfg.FPOffset) * wavecal.StepSize
		}
	}

	first := true
	for i := range events.XDopp {
		if cfg.Detector == "FUV" && !active[i] {
			continue
		}
		s, ok := regions.InScience(float64(events.YCorr[i]))
		if !ok {
			continue
		}
		d := sci[s]
		x := float64(events.XDopp[i]) + d.offset
		wl := evalDisp(d.disp.Coeff, x)
		disp := evalDerivDisp(d.disp.Coeff, x)
		if disp == 0. {
			continue
		}
		shift := orbitalShift(wl, disp, events.Time[i],
			cfg.DoppMagV, cfg.DoppZero, cfg.OrbitPer, cfg.ExpStart)
		events.XDopp[i] -= float32(shift)
		if first || shift < report.MinShift {
			report.MinShift = shift
		}
		if first || shift > report.MaxShift {
			report.MaxShift = shift
		}
		first = false
		report.Applied = true
	}

	// Forward the shift to the final frame; wavecal processing
	// overwrites this only for events it classifies.
	copy(events.XFull, events.XDopp)

	if report.Applied {
		message := fmt.Sprintf("Orbital Doppler shifts applied, range [%.3f, %.3f] pixels",
			report.MinShift, report.MaxShift)
		logger.Info(message, "doppler")
	}
	return report, nil
}

func mod2Pi(x float64) float64 {
	x = math.Mod(x, 2.*math.Pi)
	if x < 0. {
		x += 2. * math.Pi
	}
	return x
}

// HeliocentricVelocity computes the component of the Earth's orbital
// velocity away from the target at time mjd, in km/s.  The sign is
// chosen so the value is the target's apparent radial velocity; it is
// recorded as metadata and never changes event coordinates.  The Earth
// orbit model is a closed-form Keplerian approximation with fixed
// elements at the reference epoch.
func HeliocentricVelocity(mjd, raTarg, decTarg float64) float64 {
	deg := math.Pi / 180.
	t := mjd - RefDate

	// Obliquity of the ecliptic and unit vector toward the target.
	eps := (23.439 - 0.0000004*t) * deg
	ra := raTarg * deg
	dec := decTarg * deg
	targ := [3]float64{
		math.Cos(dec) * math.Cos(ra),
		math.Sin(eps)*math.Sin(dec) + math.Cos(eps)*math.Cos(dec)*math.Sin(ra),
		math.Cos(eps)*math.Sin(dec) - math.Sin(eps)*math.Cos(dec)*math.Sin(ra),
	}

	// Mean anomaly and mean longitude of the Sun.
	g := mod2Pi((357.528 + 0.9856003*t) * deg)
	l := mod2Pi((280.461 + 0.9856474*t) * deg)

	// Ecliptic longitude with the equation of center, its time
	// derivative, and the eccentricity-corrected radius.
	elong := l + (1.915*math.Sin(g)+0.02*math.Sin(2.*g))*deg
	gDot := 0.9856003 * deg
	elongDot := 0.9856474*deg + (1.915*math.Cos(g)+0.02*2.*math.Cos(2.*g))*deg*gDot
	radius := 1.00014 - 0.01671*math.Cos(g) - 0.00014*math.Cos(2.*g)
	radiusDot := 0.01671*gDot*math.Sin(g) + 0.00014*2.*gDot*math.Sin(2.*g)

	// Velocity of the Earth around the Sun is the negative of the
	// apparent solar motion, in ecliptic coordinates, converted from
	// AU/day to km/s.
	scale := KmPerAU / SecPerDay
	vx := -scale * (radiusDot*math.Cos(elong) - radius*elongDot*math.Sin(elong))
	vy := -scale * (radiusDot*math.Sin(elong) + radius*elongDot*math.Cos(elong))

	vHelio := -(vx*targ[0] + vy*targ[1])
	return vHelio
}
