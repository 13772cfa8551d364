package domain

import (
	"math"
	"time"

	"github.com/mooncaker816/learnmeeus/v3/julian"
)

const (
	// j2000 is the Julian date of the J2000.0 epoch.
	j2000 = 2451545.0

	// sunriseZenith is the zenith angle of the sun's centre at apparent
	// sunrise: 90° plus atmospheric refraction and the solar disk radius.
	sunriseZenith = 90.833

	// earthPositionTolerance is the half-width, in degrees of apparent solar
	// longitude, of the band in which a solstice or equinox is reported.
	// The sun moves ~0.9856°/day, so the band is roughly two hours wide.
	earthPositionTolerance = 0.041

	minutesPerDay = 1440.0
	secondsPerDay = 86400.0
)

// Seasons in cyclic order starting at the vernal point (apparent longitude 0°).
var Seasons = [4]string{SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter}

// Season names.
const (
	SeasonSpring = "spring"
	SeasonSummer = "summer"
	SeasonFall   = "fall"
	SeasonWinter = "winter"
)

// Earth position labels.
const (
	SummerSolstice  = "summer_solstice"
	WinterSolstice  = "winter_solstice"
	VernalEquinox   = "vernal_equinox"
	AutumnalEquinox = "autumnal_equinox"
)

// Ephemeris holds the solar quantities derived for a single instant and place.
// Day fractions are in local time; sunrise and sunset are NaN when the sun
// does not cross the horizon that day (polar day or night).
type Ephemeris struct {
	JulianCentury      float64
	ApparentLongitude  float64
	Declination        float64
	EquationOfTime     float64 // minutes
	HourAngleSunrise   float64 // degrees
	DayFractionNoon    float64
	DayFractionSunrise float64
	DayFractionSunset  float64
	DayFractionNow     float64
	Nighttime          bool
	Season             string
	EarthPosition      string // empty when not near a solstice or equinox
}

// ComputeEphemeris derives sunrise, sunset, declination, season and earth
// position for the instant at, using the NOAA solar position approximation.
// tzOffsetHours is the total UTC offset (standard plus DST) in effect at the
// place, and is also used to compute the local wall-clock day fraction.
func ComputeEphemeris(at time.Time, tzOffsetHours, latitude, longitude float64) Ephemeris {
	jd := julian.TimeToJD(at.UTC())
	t := (jd - j2000) / 36525

	geomMeanLong := math.Mod(280.46646+t*(36000.76983+t*0.0003032), 360)
	geomMeanAnom := 357.52911 + t*(35999.05029-0.0001537*t)
	eccent := 0.016708634 - t*(0.000042037+0.0000001267*t)
	eqOfCenter := sinDeg(geomMeanAnom)*(1.914602-t*(0.004817+0.000014*t)) +
		sinDeg(2*geomMeanAnom)*(0.019993-0.000101*t) +
		sinDeg(3*geomMeanAnom)*0.000289
	trueLong := geomMeanLong + eqOfCenter
	omega := 125.04 - 1934.136*t
	appLong := trueLong - 0.00569 - 0.00478*sinDeg(omega)

	meanObliq := 23 + (26+(21.448-t*(46.815+t*(0.00059-t*0.001813)))/60)/60
	obliqCorr := meanObliq + 0.00256*cosDeg(omega)
	declination := asinDeg(sinDeg(obliqCorr) * sinDeg(appLong))

	y := tanDeg(obliqCorr/2) * tanDeg(obliqCorr/2)
	eqOfTime := 4 * degrees(y*sinDeg(2*geomMeanLong)-
		2*eccent*sinDeg(geomMeanAnom)+
		4*eccent*y*sinDeg(geomMeanAnom)*cosDeg(2*geomMeanLong)-
		0.5*y*y*sinDeg(4*geomMeanLong)-
		1.25*eccent*eccent*sinDeg(2*geomMeanAnom))

	haSunrise := acosDeg(cosDeg(sunriseZenith)/(cosDeg(latitude)*cosDeg(declination)) -
		tanDeg(latitude)*tanDeg(declination))
	noon := (720 - 4*longitude - eqOfTime + tzOffsetHours*60) / minutesPerDay

	e := Ephemeris{
		JulianCentury:      t,
		ApparentLongitude:  appLong,
		Declination:        declination,
		EquationOfTime:     eqOfTime,
		HourAngleSunrise:   haSunrise,
		DayFractionNoon:    noon,
		DayFractionSunrise: noon - haSunrise*4/minutesPerDay,
		DayFractionSunset:  noon + haSunrise*4/minutesPerDay,
		DayFractionNow:     localDayFraction(at, tzOffsetHours),
		Season:             seasonFor(appLong),
		EarthPosition:      earthPositionFor(appLong),
	}
	e.Nighttime = e.DayFractionNow < e.DayFractionSunrise || e.DayFractionNow > e.DayFractionSunset
	return e
}

// localDayFraction returns the fraction of the local day elapsed at whole-second
// resolution.
func localDayFraction(at time.Time, tzOffsetHours float64) float64 {
	offset := time.Duration(tzOffsetHours * float64(time.Hour))
	local := at.UTC().Add(offset)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return float64(secs) / secondsPerDay
}

func seasonFor(appLong float64) string {
	// Truncation toward zero: apparent longitude is in [0, 360) in practice
	// but may dip just below zero around the vernal equinox.
	idx := int(appLong/90) % 4
	if idx < 0 {
		idx += 4
	}
	return Seasons[idx]
}

func earthPositionFor(appLong float64) string {
	switch {
	case withinTarget(appLong, 90, earthPositionTolerance):
		return SummerSolstice
	case withinTarget(appLong, 270, earthPositionTolerance):
		return WinterSolstice
	case withinTarget(appLong, 360, earthPositionTolerance) || withinTarget(appLong, 0, earthPositionTolerance):
		return VernalEquinox
	case withinTarget(appLong, 180, earthPositionTolerance):
		return AutumnalEquinox
	default:
		return ""
	}
}

func withinTarget(x, target, tolerance float64) bool {
	return x > target-tolerance && x < target+tolerance
}

// Degree-based trig helpers. The fitted coefficients above assume degrees.

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func sinDeg(x float64) float64 { return math.Sin(radians(x)) }

func cosDeg(x float64) float64 { return math.Cos(radians(x)) }

func tanDeg(x float64) float64 { return math.Tan(radians(x)) }

func asinDeg(x float64) float64 { return degrees(math.Asin(x)) }

func acosDeg(x float64) float64 { return degrees(math.Acos(x)) }
