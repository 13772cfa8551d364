package domain

import "context"

// GeocodingResult is a place as reported by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string // full display name
	PlaceName        string // name of the matched feature alone
	Region           string
	Country          string
	CountryCode      string  // ISO 3166-1 alpha-2, lower case
	Confidence       float64 // 0.0–1.0 provider relevance
}

// Found reports whether the provider matched anything.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" || r.Lat != 0 || r.Lon != 0
}

// Geocoder turns a place name into coordinates and back.
type Geocoder interface {
	// ForwardGeocode converts a free-form place query to coordinates. An
	// empty result with a nil error means no match.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)

	// ReverseGeocode names the place at a coordinate.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
