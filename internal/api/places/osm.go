package places

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

	"golang.org/x/time/rate"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

var _ MapProvider = (*OSMProvider)(nil)

// OSMConfig points the provider at Nominatim and OSRM instances.
type OSMConfig struct {
	NominatimURL string
	OSRMURL      string
	UserAgent    string
}

// OSMProvider is the emergency tier and the secondary geocoder: Nominatim
// search and OSRM routing. Every request waits on the shared limiter.
type OSMProvider struct {
	cfg        OSMConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOSMProvider takes the limiter from the caller so the request budget is
// shared process-wide and tests can use their own.
func NewOSMProvider(cfg OSMConfig, limiter *rate.Limiter, logger *slog.Logger) *OSMProvider {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(1), 1)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-itinerary-planner"
	}
	return &OSMProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

func (o *OSMProvider) Name() string { return "osm" }

type nominatimResult struct {
	PlaceID     int64  `json:"place_id"`
	OSMType     string `json:"osm_type"`
	OSMID       int64  `json:"osm_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

func (o *OSMProvider) Search(ctx context.Context, q types.NearbyQuery) ([]types.Place, error) {
	west, north, east, south := boundingBox(q.Latitude, q.Longitude, q.RadiusMeters)
	limit := q.Limit
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", q.Category)
	params.Set("viewbox", formatViewbox(west, north, east, south))
	params.Set("bounded", "1")
	params.Set("limit", strconv.Itoa(limit))

	var results []nominatimResult
	if err := o.getJSON(ctx, o.cfg.NominatimURL+"/search", params, &results); err != nil {
		return nil, err
	}

	places := make([]types.Place, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		distance := haversineMeters(q.Latitude, q.Longitude, lat, lng)
		if distance > q.RadiusMeters {
			continue
		}
		name := r.Name
		if name == "" {
			name, _, _ = strings.Cut(r.DisplayName, ",")
		}
		category := q.Category
		if category == "" {
			category = r.Type
		}
		places = append(places, types.Place{
			ID:        fmt.Sprintf("osm:%s:%d", r.OSMType, r.OSMID),
			Name:      name,
			Category:  category,
			Address:   r.DisplayName,
			Latitude:  lat,
			Longitude: lng,
			Distance:  distance,
			Source:    o.Name(),
		})
	}
	o.logger.DebugContext(ctx, "OSM search completed",
		slog.String("category", q.Category),
		slog.Int("count", len(places)))
	return places, nil
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (o *OSMProvider) Route(ctx context.Context, origin, destination string, mode types.TravelMode) (*types.RouteLeg, error) {
	from, err := o.resolveToken(ctx, origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	to, err := o.resolveToken(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f",
		o.cfg.OSRMURL, osrmProfile(mode), from.Lng, from.Lat, to.Lng, to.Lat)
	params := url.Values{}
	params.Set("overview", "false")

	var resp osrmResponse
	if err := o.getJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("osrm returned %s: %s", resp.Code, resp.Message)
	}
	return &types.RouteLeg{
		DistanceMeters:  resp.Routes[0].Distance,
		DurationSeconds: resp.Routes[0].Duration,
	}, nil
}

// Geocode resolves a query inside the region's bounding box.
func (o *OSMProvider) Geocode(ctx context.Context, query string, region types.Region) (*types.Coordinates, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", query)
	params.Set("viewbox", formatViewbox(region.West, region.North, region.East, region.South))
	params.Set("bounded", "1")
	params.Set("limit", "1")

	var results []nominatimResult
	if err := o.getJSON(ctx, o.cfg.NominatimURL+"/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}
	return &types.Coordinates{Lat: lat, Lng: lng}, nil
}

// resolveToken accepts "lat,lng" directly and geocodes anything else.
func (o *OSMProvider) resolveToken(ctx context.Context, token string) (*types.Coordinates, error) {
	if lat, lng, ok := parseLatLng(token); ok {
		return &types.Coordinates{Lat: lat, Lng: lng}, nil
	}
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", token)
	params.Set("limit", "1")
	var results []nominatimResult
	if err := o.getJSON(ctx, o.cfg.NominatimURL+"/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("could not resolve %q", token)
	}
	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return nil, errors.Join(errLat, errLng)
	}
	return &types.Coordinates{Lat: lat, Lng: lng}, nil
}

func (o *OSMProvider) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", o.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", o.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s API error (status %d): %s", o.Name(), resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", o.Name(), err)
	}
	return nil
}

func osrmProfile(mode types.TravelMode) string {
	switch mode {
	case types.ModeWalking:
		return "foot"
	case types.ModeCycling:
		return "bike"
	default:
		return "driving"
	}
}
