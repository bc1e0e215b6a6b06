// Package geocoder resolves stop names and addresses to coordinates inside
// the service region.
package geocoder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/fallback"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const DefaultCacheTTL = 6 * time.Hour

// Provider is one geocoding backend. A nil result with a nil error is a miss.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string, region types.Region) (*types.Coordinates, error)
}

// NewCache builds the process-wide geocode cache. It is passed into New
// rather than held globally so tests get isolated instances.
func NewCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return cache.New(ttl, 2*ttl)
}

type Geocoder struct {
	primary     Provider
	secondary   Provider
	region      types.Region
	cache       *cache.Cache
	logger      *slog.Logger
	metrics     *metrics.AppMetrics
	callTimeout time.Duration
}

func New(primary, secondary Provider, region types.Region, c *cache.Cache, logger *slog.Logger, m *metrics.AppMetrics) *Geocoder {
	if c == nil {
		c = NewCache(DefaultCacheTTL)
	}
	return &Geocoder{
		primary:     primary,
		secondary:   secondary,
		region:      region,
		cache:       c,
		logger:      logger,
		metrics:     m,
		callTimeout: 10 * time.Second,
	}
}

// Query builds the lookup string for a stop; it is also the cache key.
func Query(name, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	switch {
	case address == "" || strings.EqualFold(address, name):
		return name
	case name == "":
		return address
	default:
		return name + ", " + address
	}
}

// Lookup returns coordinates from a provider or the cache. ok is false when
// both providers missed; the coordinates are then the region center.
func (g *Geocoder) Lookup(ctx context.Context, name, address string) (types.Coordinates, bool) {
	query := Query(name, address)
	ctx, span := otel.Tracer("Geocoder").Start(ctx, "Lookup", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	if query == "" {
		span.SetStatus(codes.Error, "Empty query")
		return g.center(), false
	}
	if cached, found := g.cache.Get(query); found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Cache hit")
		return cached.(types.Coordinates), true
	}

	chain := fallback.Chain[*types.Coordinates]{
		Layer:  "geocoder",
		Empty:  func(c *types.Coordinates) bool { return c == nil },
		Logger: g.logger,
	}
	coords, out, err := chain.Run(ctx, g.strategy(g.primary, query), g.strategy(g.secondary, query))
	if err != nil {
		g.logger.WarnContext(ctx, "Geocoding missed, using region center",
			slog.String("query", query),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Both providers missed")
		g.metrics.RecordFallback(ctx, "geocoder.center")
		return g.center(), false
	}

	result := round6(*coords)
	g.cache.Set(query, result, cache.DefaultExpiration)
	span.SetAttributes(attribute.String("provider", out.Winner))
	span.SetStatus(codes.Ok, "Resolved")
	return result, true
}

// Resolve never returns nil coordinates: misses resolve to the region center.
func (g *Geocoder) Resolve(ctx context.Context, name, address string) types.Coordinates {
	c, _ := g.Lookup(ctx, name, address)
	return c
}

// GeocodeStops fills or corrects coordinates one stop at a time. Stops whose
// coordinates already lie inside the region are left alone.
func (g *Geocoder) GeocodeStops(ctx context.Context, stops []types.Stop) {
	for i := range stops {
		s := &stops[i]
		if c := s.Location.Coordinates; c != nil && g.region.Contains(*c) && (c.Lat != 0 || c.Lng != 0) {
			continue
		}
		coords, ok := g.Lookup(ctx, s.Name, s.Location.Address)
		if !ok {
			g.logger.InfoContext(ctx, "Stop placed at region center",
				slog.String("stop", s.Name),
				slog.String("address", s.Location.Address))
		}
		s.Location.Coordinates = &types.Coordinates{Lat: coords.Lat, Lng: coords.Lng}
	}
}

// strategy treats a result outside the region as a miss.
func (g *Geocoder) strategy(p Provider, query string) fallback.Strategy[*types.Coordinates] {
	s := fallback.Strategy[*types.Coordinates]{Timeout: g.callTimeout}
	if p == nil {
		return s
	}
	s.Name = p.Name()
	s.Run = func(ctx context.Context) (*types.Coordinates, error) {
		c, err := p.Geocode(ctx, query, g.region)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrProviderTierFailure, p.Name(), err)
		}
		if c == nil {
			return nil, nil
		}
		if !g.region.Contains(*c) {
			g.logger.DebugContext(ctx, "Geocode result outside region, treating as miss",
				slog.String("provider", p.Name()),
				slog.String("query", query),
				slog.Float64("lat", c.Lat),
				slog.Float64("lng", c.Lng))
			return nil, nil
		}
		return c, nil
	}
	return s
}

func (g *Geocoder) center() types.Coordinates {
	return round6(g.region.Center)
}

func round6(c types.Coordinates) types.Coordinates {
	return types.Coordinates{
		Lat: math.Round(c.Lat*1e6) / 1e6,
		Lng: math.Round(c.Lng*1e6) / 1e6,
	}
}
