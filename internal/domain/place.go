package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrPlaceNotFound is returned when a geocoder has no match for a place query.
var ErrPlaceNotFound = errors.New("place not found")

// ResolvePlace geocodes query into a Location. The timezone is tz when set,
// otherwise the zone of the place's country when that country has only one,
// otherwise fallbackTZ.
func ResolvePlace(ctx context.Context, geocoder Geocoder, query, tz, fallbackTZ string, logger *slog.Logger) (Location, GeocodingResult, error) {
	if geocoder == nil {
		return Location{}, GeocodingResult{}, errors.New("place lookup requires a geocoder")
	}

	result, err := geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		return Location{}, GeocodingResult{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	if !result.Found() {
		return Location{}, GeocodingResult{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, query)
	}

	zoneSource := "request"
	if tz == "" {
		if countryTZ, ok := CountryTimeZone(result.CountryCode); ok {
			tz, zoneSource = countryTZ, "country"
		} else {
			tz, zoneSource = fallbackTZ, "fallback"
		}
	}
	if tz == "" {
		return Location{}, GeocodingResult{}, fmt.Errorf("%w: no timezone for %q in %s", ErrInvalidLocation, query, result.Country)
	}

	loc := Location{TimeZone: tz, Latitude: result.Lat, Longitude: result.Lon}
	if _, err := loc.Load(); err != nil {
		return Location{}, GeocodingResult{}, err
	}

	logger.Info("place resolved",
		"query", query,
		"place", result.FormattedAddress,
		"country", result.CountryCode,
		"timezone", tz,
		"timezone_source", zoneSource,
		"confidence", result.Confidence,
	)
	return loc, result, nil
}

// DescribeLocation reverse geocodes loc for display. It degrades to a result
// carrying only the coordinates when no geocoder is configured or the lookup
// fails.
func DescribeLocation(ctx context.Context, geocoder Geocoder, loc Location, logger *slog.Logger) GeocodingResult {
	bare := GeocodingResult{Lat: loc.Latitude, Lon: loc.Longitude}
	if geocoder == nil {
		return bare
	}
	result, err := geocoder.ReverseGeocode(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", loc.Latitude,
			"lon", loc.Longitude,
			"error", err,
		)
		return bare
	}
	result.Lat, result.Lon = loc.Latitude, loc.Longitude
	return result
}
