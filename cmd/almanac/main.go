// Command almanac prints a year of sunrise, sunset, declination, and season
// as the oracle computes them for one location, and validates them against
// independent astronomical references: go-sunrise for sunrise and sunset,
// and Meeus' equinox and solstice algorithms for the earth position labels.
//
// Usage:
//
//	go run ./cmd/almanac -year 2025 -tz Europe/London -lat 51.4779 -lon -0.0015 \
//	  -out almanac_2025.json -max-drift 3m
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/oracle"
	"github.com/jonboulle/clockwork"
	"github.com/mooncaker816/learnmeeus/v3/julian"
	"github.com/mooncaker816/learnmeeus/v3/solstice"
	"github.com/nathan-osman/go-sunrise"
)

// markerOffset is how far from an equinox or solstice instant the earth
// position label must already be cleared.
const markerOffset = 3 * time.Hour

// row is one day of the almanac, sampled at local noon.
type row struct {
	Date             string  `json:"date"`
	Sunrise          string  `json:"sunrise,omitempty"`
	Sunset           string  `json:"sunset,omitempty"`
	ReferenceSunrise string  `json:"reference_sunrise,omitempty"`
	ReferenceSunset  string  `json:"reference_sunset,omitempty"`
	DriftSeconds     float64 `json:"drift_seconds"`
	Declination      float64 `json:"declination"`
	Season           string  `json:"season"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	year := flag.Int("year", time.Now().Year(), "calendar year to tabulate")
	tzName := flag.String("tz", domain.DefaultTimeZone, "IANA time zone of the location")
	lat := flag.Float64("lat", domain.DefaultLatitude, "latitude in degrees, north positive")
	lon := flag.Float64("lon", domain.DefaultLongitude, "longitude in degrees, east positive")
	out := flag.String("out", "", "optional output path for the JSON almanac")
	maxDrift := flag.Duration("max-drift", 3*time.Minute, "largest tolerated sunrise/sunset difference from the reference")
	flag.Parse()

	loc := domain.Location{TimeZone: *tzName, Latitude: *lat, Longitude: *lon}
	if code := run(os.Stdout, *year, loc, *out, *maxDrift); code != 0 {
		os.Exit(code)
	}
}

func run(w io.Writer, year int, loc domain.Location, out string, maxDrift time.Duration) int {
	tz, err := loc.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	rows, days, err := tabulate(year, loc, tz, maxDrift)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	markers, err := checkMarkers(year, loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	printSummary(w, rows)

	if out != "" {
		if err := writeJSON(out, rows); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		fmt.Fprintf(w, "Wrote %d rows to %s\n", len(rows), out)
	}

	failed := false
	for _, p := range []*phase{days, markers} {
		if p.passed() {
			fmt.Fprintf(w, "PASS %s\n", p.name)
			continue
		}
		failed = true
		fmt.Fprintf(w, "FAIL %s (%d errors)\n", p.name, len(p.errors))
		for _, e := range p.errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if failed {
		return 1
	}
	return 0
}

// tabulate samples every day of year at local noon.
func tabulate(year int, loc domain.Location, tz *time.Location, maxDrift time.Duration) ([]row, *phase, error) {
	p := &phase{name: "sunrise/sunset vs go-sunrise"}
	var rows []row

	for day := time.Date(year, time.January, 1, 12, 0, 0, 0, tz); day.Year() == year; day = day.AddDate(0, 0, 1) {
		snap, err := snapshotAt(day, loc)
		if err != nil {
			return nil, nil, err
		}

		refRise, refSet := sunrise.SunriseSunset(loc.Latitude, loc.Longitude, day.Year(), day.Month(), day.Day())
		r := row{
			Date:        day.Format(time.DateOnly),
			Sunrise:     clockTime(snap.DayFractionSunrise),
			Sunset:      clockTime(snap.DayFractionSunset),
			Declination: math.Round(snap.Declination*1e4) / 1e4,
			Season:      snap.Season,
		}

		polar := math.IsNaN(snap.DayFractionSunrise)
		refPolar := refRise.IsZero() || refSet.IsZero()
		switch {
		case polar && refPolar:
		case polar != refPolar:
			p.errorf("%s: polar day/night disagreement (oracle=%v reference=%v)", r.Date, polar, refPolar)
		default:
			riseFrac, setFrac := dayFraction(refRise, tz), dayFraction(refSet, tz)
			r.ReferenceSunrise, r.ReferenceSunset = clockTime(riseFrac), clockTime(setFrac)
			drift := math.Max(math.Abs(snap.DayFractionSunrise-riseFrac), math.Abs(snap.DayFractionSunset-setFrac))
			r.DriftSeconds = math.Round(drift * 86400)
			if d := time.Duration(r.DriftSeconds) * time.Second; d > maxDrift {
				p.errorf("%s: drift %v exceeds %v (sunrise %s/%s, sunset %s/%s)",
					r.Date, d, maxDrift, r.Sunrise, r.ReferenceSunrise, r.Sunset, r.ReferenceSunset)
			}
		}
		rows = append(rows, r)
	}
	return rows, p, nil
}

// checkMarkers verifies that each equinox and solstice is labelled at its
// Meeus instant and not markerOffset either side of it.
func checkMarkers(year int, loc domain.Location) (*phase, error) {
	p := &phase{name: "earth position vs Meeus equinoxes and solstices"}

	markers := []struct {
		jde   func(int) float64
		label string
	}{
		{solstice.March, domain.VernalEquinox},
		{solstice.June, domain.SummerSolstice},
		{solstice.September, domain.AutumnalEquinox},
		{solstice.December, domain.WinterSolstice},
	}
	for _, m := range markers {
		at := julian.JDToTime(m.jde(year)).UTC()

		snap, err := snapshotAt(at, loc)
		if err != nil {
			return nil, err
		}
		if snap.EarthPosition != m.label {
			p.errorf("%s: got earth position %q, want %q", at.Format(time.RFC3339), snap.EarthPosition, m.label)
		}

		for _, off := range []time.Duration{-markerOffset, markerOffset} {
			snap, err := snapshotAt(at.Add(off), loc)
			if err != nil {
				return nil, err
			}
			if snap.EarthPosition != "" {
				p.errorf("%s: earth position %q still set %v from %s", at.Add(off).Format(time.RFC3339), snap.EarthPosition, off, m.label)
			}
		}
	}
	return p, nil
}

func snapshotAt(at time.Time, loc domain.Location) (domain.Snapshot, error) {
	o, err := oracle.New(oracle.Options{
		Location: loc,
		Clock:    clockwork.NewFakeClockAt(at),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return o.Snapshot(), nil
}

func dayFraction(t time.Time, tz *time.Location) float64 {
	local := t.In(tz)
	return float64(local.Hour()*3600+local.Minute()*60+local.Second()) / 86400
}

// clockTime renders a day fraction as HH:MM:SS, or "" when it is undefined.
func clockTime(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	secs := int(math.Round(f * 86400))
	secs = ((secs % 86400) + 86400) % 86400
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func printSummary(w io.Writer, rows []row) {
	if len(rows) == 0 {
		return
	}
	var (
		maxDrift float64
		worst    string
		seasons  = map[string]int{}
	)
	for _, r := range rows {
		seasons[r.Season]++
		if r.DriftSeconds > maxDrift {
			maxDrift, worst = r.DriftSeconds, r.Date
		}
	}

	fmt.Fprintf(w, "Days: %d (%s to %s)\n", len(rows), rows[0].Date, rows[len(rows)-1].Date)
	for _, s := range domain.Seasons {
		fmt.Fprintf(w, "  %-7s %3d days\n", s, seasons[s])
	}
	if worst != "" {
		fmt.Fprintf(w, "Largest drift: %.0fs on %s\n", maxDrift, worst)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal almanac: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
