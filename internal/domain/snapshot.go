package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal images
)

// Default installation site: midtown Manhattan.
const (
	DefaultTimeZone  = "US/Eastern"
	DefaultLatitude  = 40.7528788
	DefaultLongitude = -73.9765096
)

// ErrInvalidLocation is returned when a timezone cannot be loaded or a
// coordinate is out of range.
var ErrInvalidLocation = errors.New("invalid location")

// Location is the place whose local time and sun position drive the
// temporal conditions.
type Location struct {
	TimeZone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultLocation returns the location used when none is configured.
func DefaultLocation() Location {
	return Location{
		TimeZone:  DefaultTimeZone,
		Latitude:  DefaultLatitude,
		Longitude: DefaultLongitude,
	}
}

// Load validates the location and returns its time zone.
func (l Location) Load() (*time.Location, error) {
	if l.TimeZone == "" {
		return nil, fmt.Errorf("%w: timezone is required", ErrInvalidLocation)
	}
	tz, err := time.LoadLocation(l.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidLocation, l.TimeZone, err)
	}
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return nil, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return nil, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, l.Longitude)
	}
	return tz, nil
}

// Snapshot is every time-derived field at one instant. It is built in a
// single pass and never mutated afterwards.
type Snapshot struct {
	Hour               int       `json:"hour"`
	Month              string    `json:"month"`
	DayOfMonth         int       `json:"day_of_month"`
	Weekday            string    `json:"weekday"`
	DayFractionSunrise float64   `json:"day_fraction_sunrise"`
	DayFractionSunset  float64   `json:"day_fraction_sunset"`
	DayFractionNow     float64   `json:"day_fraction_now"`
	Nighttime          bool      `json:"nighttime"`
	Declination        float64   `json:"declination"`
	Season             string    `json:"season"`
	EarthPosition      string    `json:"earth_position,omitempty"`
	ComputedAt         time.Time `json:"computed_at"`
}

// BuildSnapshot derives the calendar fields of now in tz and the ephemeris
// for place.
func BuildSnapshot(now time.Time, tz *time.Location, place Location) Snapshot {
	local := now.In(tz)
	_, offsetSecs := local.Zone()
	eph := ComputeEphemeris(now, float64(offsetSecs)/3600, place.Latitude, place.Longitude)

	return Snapshot{
		Hour:               local.Hour(),
		Month:              strings.ToLower(local.Month().String()),
		DayOfMonth:         local.Day(),
		Weekday:            strings.ToLower(local.Weekday().String()),
		DayFractionSunrise: eph.DayFractionSunrise,
		DayFractionSunset:  eph.DayFractionSunset,
		DayFractionNow:     eph.DayFractionNow,
		Nighttime:          eph.Nighttime,
		Declination:        eph.Declination,
		Season:             eph.Season,
		EarthPosition:      eph.EarthPosition,
		ComputedAt:         now,
	}
}

// Stale reports whether the snapshot is older than maxAge at now.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return s.ComputedAt.IsZero() || now.Sub(s.ComputedAt) > maxAge
}
