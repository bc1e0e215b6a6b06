package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

var _ MapProvider = (*GoogleProvider)(nil)

// GoogleProvider is the basic tier: Google Places nearby search, the
// Distance Matrix for travel times and the Geocoding API for the geocoder.
type GoogleProvider struct {
	client     *maps.Client
	regionCode string
	logger     *slog.Logger
}

func NewGoogleProvider(apiKey, regionCode string, logger *slog.Logger) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, errors.New("google maps API key not set")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google maps client: %w", err)
	}
	return &GoogleProvider{client: client, regionCode: regionCode, logger: logger}, nil
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Search(ctx context.Context, q types.NearbyQuery) ([]types.Place, error) {
	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: q.Latitude, Lng: q.Longitude},
		Radius:   uint(q.RadiusMeters),
		Keyword:  q.Category,
	}
	if placeType, err := maps.ParsePlaceType(strings.ToLower(q.Category)); err == nil {
		req.Type = placeType
		req.Keyword = ""
	}

	resp, err := g.client.NearbySearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Google Places API: %w", err)
	}

	places := make([]types.Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		address := r.Vicinity
		if address == "" {
			address = r.FormattedAddress
		}
		category := q.Category
		if category == "" {
			category = firstMeaningfulType(r.Types)
		}
		p := types.Place{
			ID:         r.PlaceID,
			Name:       r.Name,
			Category:   category,
			Address:    address,
			Latitude:   r.Geometry.Location.Lat,
			Longitude:  r.Geometry.Location.Lng,
			Rating:     float64(r.Rating),
			PriceLevel: r.PriceLevel,
			Tags:       r.Types,
			Source:     g.Name(),
		}
		p.Distance = haversineMeters(q.Latitude, q.Longitude, p.Latitude, p.Longitude)
		places = append(places, p)
		if q.Limit > 0 && len(places) == q.Limit {
			break
		}
	}
	g.logger.DebugContext(ctx, "Google nearby search completed",
		slog.String("category", q.Category),
		slog.Int("count", len(places)))
	return places, nil
}

func (g *GoogleProvider) Route(ctx context.Context, origin, destination string, mode types.TravelMode) (*types.RouteLeg, error) {
	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         googleMode(mode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Distance Matrix API: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, errors.New("distance matrix returned no elements")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return nil, fmt.Errorf("distance matrix element status %s", el.Status)
	}
	return &types.RouteLeg{
		DistanceMeters:  float64(el.Distance.Meters),
		DurationSeconds: el.Duration.Seconds(),
	}, nil
}

// Geocode resolves a free-text query biased toward the region.
func (g *GoogleProvider) Geocode(ctx context.Context, query string, region types.Region) (*types.Coordinates, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: query,
		Region:  g.regionCode,
		Bounds: &maps.LatLngBounds{
			NorthEast: maps.LatLng{Lat: region.North, Lng: region.East},
			SouthWest: maps.LatLng{Lat: region.South, Lng: region.West},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Geocoding API: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	loc := results[0].Geometry.Location
	return &types.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func googleMode(mode types.TravelMode) maps.Mode {
	switch mode {
	case types.ModeWalking:
		return maps.TravelModeWalking
	case types.ModeCycling:
		return maps.TravelModeBicycling
	case types.ModeTransit:
		return maps.TravelModeTransit
	default:
		return maps.TravelModeDriving
	}
}

// firstMeaningfulType skips Google's generic place types.
func firstMeaningfulType(placeTypes []string) string {
	for _, t := range placeTypes {
		if t != "point_of_interest" && t != "establishment" {
			return t
		}
	}
	if len(placeTypes) > 0 {
		return placeTypes[0]
	}
	return "place"
}
