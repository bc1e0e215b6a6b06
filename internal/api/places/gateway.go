package places

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/fallback"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const defaultCallTimeout = 10 * time.Second

// KnowledgeStore is the spatially indexed store behind the enhanced tier.
type KnowledgeStore interface {
	SearchByType(ctx context.Context, criteria types.SearchCriteria) ([]types.Place, error)
	SearchAdvanced(ctx context.Context, criteria types.SearchCriteria) ([]types.Place, error)
	WalkingNeighbours(ctx context.Context, placeID string, maxWalkMeters float64, limit int) ([]types.Place, error)
}

// MapProvider is an external map/places service used by the basic and emergency tiers.
type MapProvider interface {
	Name() string
	Search(ctx context.Context, q types.NearbyQuery) ([]types.Place, error)
	Route(ctx context.Context, origin, destination string, mode types.TravelMode) (*types.RouteLeg, error)
}

type Option func(*Gateway)

func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway answers place and travel-time lookups through the enhanced, basic
// and emergency tiers, in that order.
type Gateway struct {
	store       KnowledgeStore
	basic       MapProvider
	emergency   MapProvider
	logger      *slog.Logger
	metrics     *metrics.AppMetrics
	callTimeout time.Duration
}

// NewGateway accepts nil for any tier that is not configured.
func NewGateway(store KnowledgeStore, basic, emergency MapProvider, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:       store,
		basic:       basic,
		emergency:   emergency,
		logger:      logger,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) placeChain(op string) fallback.Chain[[]types.Place] {
	return fallback.Chain[[]types.Place]{
		Layer:  "places." + op,
		Empty:  func(p []types.Place) bool { return len(p) == 0 },
		Logger: g.logger,
	}
}

// FindNearby returns places of one category around a point. It never fails:
// when every tier fails the result is empty and tagged TierNone.
func (g *Gateway) FindNearby(ctx context.Context, q types.NearbyQuery) types.TierResult {
	ctx, span := otel.Tracer("PlaceGateway").Start(ctx, "FindNearby", trace.WithAttributes(
		attribute.Float64("location.latitude", q.Latitude),
		attribute.Float64("location.longitude", q.Longitude),
		attribute.Float64("radius", q.RadiusMeters),
		attribute.String("category", q.Category),
	))
	defer span.End()

	if q.RadiusMeters <= 0 {
		q.RadiusMeters = types.DefaultRadiusMeters
	}
	if q.Limit <= 0 {
		q.Limit = types.DefaultSearchLimit
	}
	criteria := types.SearchCriteria{
		Latitude:     q.Latitude,
		Longitude:    q.Longitude,
		RadiusMeters: q.RadiusMeters,
		Limit:        q.Limit,
	}
	if q.Category != "" {
		criteria.Categories = []string{q.Category}
	}
	criteria = criteria.Normalize()

	strategies := []fallback.Strategy[[]types.Place]{
		g.enhancedStrategy(string(types.TierEnhanced), criteria, g.storeSearchByType),
		g.providerStrategy(types.TierBasic, g.basic, func(ctx context.Context, p MapProvider) ([]types.Place, error) {
			return p.Search(ctx, q)
		}),
		g.providerStrategy(types.TierEmergency, g.emergency, func(ctx context.Context, p MapProvider) ([]types.Place, error) {
			return p.Search(ctx, q)
		}),
	}
	return g.finish(ctx, span, "findNearby", strategies)
}

// Search runs full criteria against the store, then a type-only store search,
// then type-only provider searches. Excluded ids never appear in the result.
func (g *Gateway) Search(ctx context.Context, criteria types.SearchCriteria) types.TierResult {
	criteria = criteria.Normalize()
	ctx, span := otel.Tracer("PlaceGateway").Start(ctx, "Search", trace.WithAttributes(
		attribute.Float64("location.latitude", criteria.Latitude),
		attribute.Float64("location.longitude", criteria.Longitude),
		attribute.Float64("radius", criteria.RadiusMeters),
		attribute.StringSlice("categories", criteria.Categories),
		attribute.Int("exclude.count", len(criteria.ExcludeIDs)),
	))
	defer span.End()

	typeOnly := func(ctx context.Context, p MapProvider) ([]types.Place, error) {
		return g.searchByTypeOnly(ctx, p, criteria)
	}
	strategies := []fallback.Strategy[[]types.Place]{
		g.enhancedStrategy(string(types.TierEnhanced), criteria, g.storeSearchAdvanced),
		g.enhancedStrategy(string(types.TierEnhanced)+typeOnlySuffix, criteria, g.storeSearchByType),
		g.providerStrategy(types.TierBasic, g.basic, typeOnly),
		g.providerStrategy(types.TierEmergency, g.emergency, typeOnly),
	}
	return g.finish(ctx, span, "search", strategies)
}

func (g *Gateway) finish(ctx context.Context, span trace.Span, op string, strategies []fallback.Strategy[[]types.Place]) types.TierResult {
	places, out, err := g.placeChain(op).Run(ctx, strategies...)
	if err != nil {
		g.logger.ErrorContext(ctx, "All place lookup tiers failed, returning empty result",
			slog.String("operation", op),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "All tiers failed")
		g.metrics.RecordTier(ctx, op, string(types.TierNone))
		return types.TierResult{Tier: types.TierNone, Places: []types.Place{}, Failures: out.Failures}
	}
	winner, _, _ := strings.Cut(out.Winner, ":")
	tier := types.Tier(winner)
	span.SetAttributes(attribute.String("tier", winner), attribute.Int("places.count", len(places)))
	span.SetStatus(codes.Ok, "Places found")
	g.metrics.RecordTier(ctx, op, winner)
	g.logger.DebugContext(ctx, "Place lookup answered",
		slog.String("operation", op),
		slog.String("tier", winner),
		slog.String("strategy", out.Winner),
		slog.Int("count", len(places)))
	return types.TierResult{Tier: tier, Places: places, Failures: out.Failures}
}

type storeQuery func(ctx context.Context, criteria types.SearchCriteria) ([]types.Place, error)

// typeOnlySuffix marks the second store pass; the result is still enhanced.
const typeOnlySuffix = ":type-only"

// enhancedStrategy queries the store and, on zero hits, retries once with
// doubled radius and halved result cap.
func (g *Gateway) enhancedStrategy(name string, criteria types.SearchCriteria, query storeQuery) fallback.Strategy[[]types.Place] {
	s := fallback.Strategy[[]types.Place]{Name: name, Timeout: g.callTimeout}
	if g.store == nil {
		return s
	}
	s.Run = func(ctx context.Context) ([]types.Place, error) {
		places, err := query(ctx, criteria)
		if err != nil {
			return nil, fmt.Errorf("%w: knowledge store: %v", types.ErrProviderTierFailure, err)
		}
		if len(places) > 0 {
			return places, nil
		}
		widened := criteria
		widened.RadiusMeters = criteria.RadiusMeters * 2
		widened.Limit = max(1, criteria.Limit/2)
		g.logger.DebugContext(ctx, "Knowledge store empty, widening radius",
			slog.Float64("radius", widened.RadiusMeters),
			slog.Int("limit", widened.Limit))
		places, err = query(ctx, widened)
		if err != nil {
			return nil, fmt.Errorf("%w: knowledge store retry: %v", types.ErrProviderTierFailure, err)
		}
		return places, nil
	}
	return s
}

func (g *Gateway) storeSearchByType(ctx context.Context, c types.SearchCriteria) ([]types.Place, error) {
	return g.store.SearchByType(ctx, c)
}

func (g *Gateway) storeSearchAdvanced(ctx context.Context, c types.SearchCriteria) ([]types.Place, error) {
	return g.store.SearchAdvanced(ctx, c)
}

func (g *Gateway) providerStrategy(tier types.Tier, p MapProvider, run func(context.Context, MapProvider) ([]types.Place, error)) fallback.Strategy[[]types.Place] {
	s := fallback.Strategy[[]types.Place]{Name: string(tier), Timeout: g.callTimeout}
	if p == nil {
		return s
	}
	s.Run = func(ctx context.Context) ([]types.Place, error) {
		places, err := run(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrProviderTierFailure, p.Name(), err)
		}
		return places, nil
	}
	return s
}

// searchByTypeOnly asks a provider for each category in turn, sequentially,
// and merges the hits without the excluded ids.
func (g *Gateway) searchByTypeOnly(ctx context.Context, p MapProvider, c types.SearchCriteria) ([]types.Place, error) {
	var (
		merged  []types.Place
		lastErr error
		ok      bool
	)
	for _, category := range c.Categories {
		hits, err := p.Search(ctx, types.NearbyQuery{
			Latitude:     c.Latitude,
			Longitude:    c.Longitude,
			RadiusMeters: c.RadiusMeters,
			Category:     category,
			Limit:        c.Limit,
		})
		if err != nil {
			lastErr = err
			continue
		}
		ok = true
		merged = append(merged, hits...)
	}
	if !ok && lastErr != nil {
		return nil, lastErr
	}
	merged = lo.UniqBy(merged, func(p types.Place) string { return p.ID })
	merged = ExcludeIDs(merged, c.ExcludeIDs)
	if len(merged) > c.Limit {
		merged = merged[:c.Limit]
	}
	return merged, nil
}

// ExcludeIDs drops every place whose id is in ids.
func ExcludeIDs(places []types.Place, ids []string) []types.Place {
	if len(ids) == 0 {
		return places
	}
	excluded := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	return lo.Filter(places, func(p types.Place, _ int) bool {
		_, skip := excluded[p.ID]
		return !skip
	})
}

// TravelTime returns the leg between two tokens (coordinates "lat,lng" or an
// address). Unsupported modes are coerced, never rejected. A nil leg with an
// error means every provider failed.
func (g *Gateway) TravelTime(ctx context.Context, origin, destination, mode string) (*types.RouteLeg, error) {
	travelMode := types.ParseTravelMode(mode)
	ctx, span := otel.Tracer("PlaceGateway").Start(ctx, "TravelTime", trace.WithAttributes(
		attribute.String("mode", string(travelMode)),
	))
	defer span.End()

	route := func(tier types.Tier, p MapProvider) fallback.Strategy[*types.RouteLeg] {
		s := fallback.Strategy[*types.RouteLeg]{Name: string(tier), Timeout: g.callTimeout}
		if p == nil {
			return s
		}
		s.Run = func(ctx context.Context) (*types.RouteLeg, error) {
			leg, err := p.Route(ctx, origin, destination, travelMode)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", types.ErrProviderTierFailure, p.Name(), err)
			}
			return leg, nil
		}
		return s
	}
	chain := fallback.Chain[*types.RouteLeg]{
		Layer:  "places.travelTime",
		Empty:  func(l *types.RouteLeg) bool { return l == nil },
		Logger: g.logger,
	}
	leg, out, err := chain.Run(ctx, route(types.TierBasic, g.basic), route(types.TierEmergency, g.emergency))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "No route")
		g.metrics.RecordTier(ctx, "travelTime", string(types.TierNone))
		return nil, err
	}
	g.metrics.RecordTier(ctx, "travelTime", out.Winner)
	span.SetStatus(codes.Ok, "Route found")
	return leg, nil
}

// ContextualRecommendations returns walking-distance neighbours of a place
// known to the knowledge store. Without a store it returns nothing.
func (g *Gateway) ContextualRecommendations(ctx context.Context, placeID string, maxWalkMeters float64, limit int) ([]types.Place, error) {
	if g.store == nil {
		return []types.Place{}, nil
	}
	if maxWalkMeters <= 0 {
		maxWalkMeters = 800
	}
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	places, err := g.store.WalkingNeighbours(ctx, placeID, maxWalkMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: walking neighbours: %v", types.ErrProviderTierFailure, err)
	}
	if places == nil {
		places = []types.Place{}
	}
	return places, nil
}
