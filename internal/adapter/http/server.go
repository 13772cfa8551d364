// Package http serves health, metrics, and the condition query API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/expr"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecks is ready when every member is.
type ReadinessChecks []sharedobs.ReadinessChecker

// CheckReadiness returns the first member error.
func (rc ReadinessChecks) CheckReadiness(ctx context.Context) error {
	for _, c := range rc {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Conditions is the query and control surface of an oracle.
type Conditions interface {
	QueryCondition(name string) (bool, error)
	EvaluateExpression(expression string) (bool, error)
	Flags() map[string]bool
	SetFlag(name string, value bool)
	Snapshot() domain.Snapshot
	Location() domain.Location
	SetLocation(timeZone string, latitude, longitude float64) error
}

// Server exposes health, readiness, metrics, and condition endpoints.
type Server struct {
	httpServer *http.Server
	conditions Conditions
	geocoder   domain.Geocoder
	logger     *slog.Logger
}

// NewServer creates an HTTP server. geocoder may be nil, in which case
// location updates by place name are rejected.
func NewServer(addr string, ready sharedobs.ReadinessChecker, conditions Conditions, geocoder domain.Geocoder, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		conditions: conditions,
		geocoder:   geocoder,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/conditions/{name}", s.handleCondition)
	mux.HandleFunc("GET /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/flags", s.handleFlags)
	mux.HandleFunc("PUT /v1/flags/{name}", s.handleSetFlag)
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/location", s.handleLocation)
	mux.HandleFunc("PUT /v1/location", s.handleSetLocation)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type valueResponse struct {
	Name  string `json:"name,omitempty"`
	Expr  string `json:"expr,omitempty"`
	Value bool   `json:"value"`
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	v, err := s.conditions.QueryCondition(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, valueResponse{Name: name, Value: v})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	expression := r.URL.Query().Get("expr")
	v, err := s.conditions.EvaluateExpression(expression)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, valueResponse{Expr: expression, Value: v})
}

func (s *Server) handleFlags(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.conditions.Flags())
}

func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validFlagName(name) {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid flag name %q", name)})
		return
	}

	var body struct {
		Value *bool `json:"value"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Value == nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"value": true|false}`})
		return
	}

	s.conditions.SetFlag(name, *body.Value)
	s.logger.Info("flag set", "flag", name, "value", *body.Value)
	sharedobs.WriteJSON(w, http.StatusOK, valueResponse{Name: name, Value: *body.Value})
}

// snapshotResponse renders a snapshot with NaN sunrise and sunset (polar day
// or night) as null.
type snapshotResponse struct {
	domain.Snapshot
	DayFractionSunrise *float64        `json:"day_fraction_sunrise"`
	DayFractionSunset  *float64        `json:"day_fraction_sunset"`
	Location           domain.Location `json:"location"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.conditions.Snapshot()
	sharedobs.WriteJSON(w, http.StatusOK, snapshotResponse{
		Snapshot:           snap,
		DayFractionSunrise: finite(snap.DayFractionSunrise),
		DayFractionSunset:  finite(snap.DayFractionSunset),
		Location:           s.conditions.Location(),
	})
}

type locationResponse struct {
	domain.Location
	Place   string `json:"place,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

func newLocationResponse(loc domain.Location, place domain.GeocodingResult) locationResponse {
	return locationResponse{
		Location: loc,
		Place:    place.FormattedAddress,
		Region:   place.Region,
		Country:  place.Country,
	}
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	loc := s.conditions.Location()
	var place domain.GeocodingResult
	if s.geocoder != nil {
		place = domain.DescribeLocation(r.Context(), s.geocoder, loc, s.logger)
	}
	sharedobs.WriteJSON(w, http.StatusOK, newLocationResponse(loc, place))
}

// locationRequest moves the installation. Without a timezone, a place takes
// its country's zone when the country has only one, and otherwise the
// current zone is kept.
type locationRequest struct {
	TimeZone  string   `json:"timezone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Place     string   `json:"place"`
}

func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return
	}
	current := s.conditions.Location()

	var (
		loc   domain.Location
		place domain.GeocodingResult
	)
	switch {
	case req.Place != "" && (req.Latitude != nil || req.Longitude != nil):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "give either place or latitude/longitude, not both"})
		return
	case req.Place != "":
		if s.geocoder == nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "place lookup is not configured"})
			return
		}
		resolved, result, err := domain.ResolvePlace(r.Context(), s.geocoder, req.Place, req.TimeZone, current.TimeZone, s.logger)
		if err != nil {
			s.writeError(w, err)
			return
		}
		loc, place = resolved, result
	case req.Latitude != nil && req.Longitude != nil:
		tz := req.TimeZone
		if tz == "" {
			tz = current.TimeZone
		}
		loc = domain.Location{TimeZone: tz, Latitude: *req.Latitude, Longitude: *req.Longitude}
	default:
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "latitude and longitude are required"})
		return
	}

	if err := s.conditions.SetLocation(loc.TimeZone, loc.Latitude, loc.Longitude); err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newLocationResponse(loc, place))
}

type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var pe *expr.ParseError
	switch {
	case errors.As(err, &pe):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Position: &pe.Pos})
	case errors.Is(err, domain.ErrInvalidLocation), errors.Is(err, domain.ErrPlaceNotFound):
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validFlagName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c == '_', '0' <= c && c <= '9', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
