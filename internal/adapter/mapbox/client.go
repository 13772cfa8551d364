// Package mapbox resolves installation sites by name through the Mapbox
// Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

const (
	// siteTypes are precise enough to place the sun. Postcodes, districts
	// and regions are not.
	siteTypes = "poi,address,neighborhood,locality,place"

	// describeTypes name the area around a coordinate, most specific first.
	describeTypes = "neighborhood,locality,place"
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// APIError is a non-200 reply from the geocoding API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mapbox: status %d: %s", e.Status, e.Message)
}

// ForwardGeocode resolves a site such as "Grand Central Terminal, New York".
// Only the best match is returned, with its region and country.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return domain.GeocodingResult{}, nil
	}
	params := url.Values{
		"limit":        {"1"},
		"types":        {siteTypes},
		"autocomplete": {"false"},
	}
	return c.lookup(ctx, "forward", url.PathEscape(query), params)
}

// ReverseGeocode names the neighbourhood or town around a coordinate.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox orders coordinates lon,lat.
	coord := strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
	params := url.Values{"types": {describeTypes}}
	return c.lookup(ctx, "reverse", coord, params)
}

func (c *Client) lookup(ctx context.Context, op, path string, params url.Values) (domain.GeocodingResult, error) {
	var body response
	if err := c.get(ctx, op, path, params, &body); err != nil {
		return domain.GeocodingResult{}, err
	}
	if len(body.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}
	return body.Features[0].result(), nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out *response) error {
	endpoint := c.baseURL + "/" + path + ".json"
	params.Set("access_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the access token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = endpoint
		}
		return fmt.Errorf("%s geocode: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("mapbox request",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		msg = body.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// normalizeQuery collapses runs of whitespace.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string    `json:"id"`     // "<type>.<n>", e.g. "poi.42"
	Center     []float64 `json:"center"` // [lon, lat]
	PlaceName  string    `json:"place_name"`
	Text       string    `json:"text"`
	Relevance  float64   `json:"relevance"`
	Properties struct {
		ShortCode string `json:"short_code"`
	} `json:"properties"`
	Context []contextEntry `json:"context"`
}

// contextEntry is one of the enclosing areas of a feature, smallest first.
type contextEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

func (e contextEntry) kind() string {
	kind, _, _ := strings.Cut(e.ID, ".")
	return kind
}

func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		r.Lon, r.Lat = f.Center[0], f.Center[1]
	}

	// A matched region or country has no context entry for itself.
	self := contextEntry{ID: f.ID, Text: f.Text, ShortCode: f.Properties.ShortCode}
	for _, e := range append([]contextEntry{self}, f.Context...) {
		switch e.kind() {
		case "region":
			r.Region = e.Text
		case "country":
			r.Country = e.Text
			r.CountryCode = strings.ToLower(e.ShortCode)
		}
	}
	return r
}
