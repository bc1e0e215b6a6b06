package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	generativeAI "github.com/FACorreiaa/go-itinerary-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const (
	toolFindNearby      = "findNearby"
	toolTravelTime      = "travelTime"
	toolContextualRecos = "contextualRecommendations"

	maxParallelTools = 4
)

var toolSpecs = []generativeAI.ToolSpec{
	{
		Name:        toolFindNearby,
		Description: "Find real places of one category within a radius (meters) of a point.",
		Params: []generativeAI.Param{
			{Name: "lat", Type: generativeAI.ParamNumber, Description: "Latitude of the search center", Required: true},
			{Name: "lng", Type: generativeAI.ParamNumber, Description: "Longitude of the search center", Required: true},
			{Name: "radius", Type: generativeAI.ParamNumber, Description: "Search radius in meters", Required: true},
			{Name: "category", Type: generativeAI.ParamString, Description: "Place category, e.g. restaurant, beach, museum", Required: true},
			{Name: "limit", Type: generativeAI.ParamInteger, Description: "Maximum number of places"},
		},
	},
	{
		Name:        toolTravelTime,
		Description: "Distance and travel time between two points. Origin and destination are \"lat,lng\" or an address.",
		Params: []generativeAI.Param{
			{Name: "origin", Type: generativeAI.ParamString, Required: true},
			{Name: "destination", Type: generativeAI.ParamString, Required: true},
			{Name: "mode", Type: generativeAI.ParamString, Enum: []string{"driving", "walking", "cycling", "transit"}},
		},
	},
	{
		Name:        toolContextualRecos,
		Description: "Places within walking distance of a knowledge-store place returned by findNearby.",
		Params: []generativeAI.Param{
			{Name: "placeId", Type: generativeAI.ParamString, Required: true},
			{Name: "maxWalkMeters", Type: generativeAI.ParamNumber},
			{Name: "limit", Type: generativeAI.ParamInteger},
		},
	},
}

type findNearbyArgs struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Radius   float64 `json:"radius"`
	Category string  `json:"category"`
	Limit    int     `json:"limit"`
}

type travelTimeArgs struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
}

type contextualArgs struct {
	PlaceID       string  `json:"placeId"`
	MaxWalkMeters float64 `json:"maxWalkMeters"`
	Limit         int     `json:"limit"`
}

type toolPlace struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Address        string   `json:"address"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Rating         float64  `json:"rating,omitempty"`
	PriceLevel     int      `json:"priceLevel,omitempty"`
	DistanceMeters float64  `json:"distanceMeters,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Summary        string   `json:"summary,omitempty"`
}

type findNearbyResult struct {
	Tier     types.Tier  `json:"tier"`
	Enriched bool        `json:"spatialContext"`
	Places   []toolPlace `json:"places"`
	Note     string      `json:"note,omitempty"`
}

type travelTimeResult struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationMinutes float64 `json:"durationMinutes"`
	Mode            string  `json:"mode"`
}

type contextualResult struct {
	Places []toolPlace `json:"places"`
	Note   string      `json:"note,omitempty"`
}

// turnTools is the tool state of one user turn: the ids that came from the
// enhanced tier and may be used for spatial-context lookups.
type turnTools struct {
	o           *Orchestrator
	mu          sync.Mutex
	enhancedIDs map[string]struct{}
}

func (o *Orchestrator) newTurnTools() *turnTools {
	return &turnTools{o: o, enhancedIDs: make(map[string]struct{})}
}

// dispatch runs every call concurrently and returns one result per call, in
// order. Tool errors are serialized as {"error": ...} and never returned.
func (tt *turnTools) dispatch(ctx context.Context, calls []generativeAI.ToolCall) []string {
	results := make([]string, len(calls))
	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = tt.run(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (tt *turnTools) run(ctx context.Context, call generativeAI.ToolCall) (out string) {
	l := tt.o.logger.With(slog.String("tool", call.Name), slog.String("call_id", call.ID))
	defer func() {
		if r := recover(); r != nil {
			l.ErrorContext(ctx, "Tool panicked", slog.Any("panic", r))
			out = errorResult(fmt.Errorf("tool %s failed: %v", call.Name, r))
		}
	}()

	var (
		res any
		err error
	)
	switch call.Name {
	case toolFindNearby:
		res, err = tt.findNearby(ctx, call.Arguments)
	case toolTravelTime:
		res, err = tt.travelTime(ctx, call.Arguments)
	case toolContextualRecos:
		res, err = tt.contextual(ctx, call.Arguments)
	default:
		err = fmt.Errorf("unknown tool %q", call.Name)
	}
	if err != nil {
		l.WarnContext(ctx, "Tool call failed, returning error to the model", slog.Any("error", err))
		return errorResult(err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return errorResult(err)
	}
	l.DebugContext(ctx, "Tool call completed", slog.Int("result.bytes", len(b)))
	return string(b)
}

func (tt *turnTools) findNearby(ctx context.Context, raw string) (*findNearbyResult, error) {
	var args findNearbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Category == "" {
		return nil, errors.New("category is required")
	}
	res := tt.o.places.FindNearby(ctx, types.NearbyQuery{
		Latitude:     args.Lat,
		Longitude:    args.Lng,
		RadiusMeters: args.Radius,
		Category:     args.Category,
		Limit:        args.Limit,
	})

	out := &findNearbyResult{Tier: res.Tier, Enriched: res.Enriched(), Places: toolPlaces(res.Places)}
	if len(res.Places) == 0 {
		out.Note = "no places found for this category and radius"
	}
	if res.Enriched() {
		tt.mu.Lock()
		for _, p := range res.Places {
			tt.enhancedIDs[p.ID] = struct{}{}
		}
		tt.mu.Unlock()
	}
	return out, nil
}

func (tt *turnTools) travelTime(ctx context.Context, raw string) (*travelTimeResult, error) {
	var args travelTimeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Origin == "" || args.Destination == "" {
		return nil, errors.New("origin and destination are required")
	}
	mode := types.ParseTravelMode(args.Mode)
	leg, err := tt.o.places.TravelTime(ctx, args.Origin, args.Destination, string(mode))
	if err != nil {
		return nil, fmt.Errorf("no route between %q and %q", args.Origin, args.Destination)
	}
	return &travelTimeResult{
		DistanceMeters:  math.Round(leg.DistanceMeters),
		DurationMinutes: math.Round(leg.DurationSeconds/60*10) / 10,
		Mode:            string(mode),
	}, nil
}

func (tt *turnTools) contextual(ctx context.Context, raw string) (*contextualResult, error) {
	var args contextualArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	tt.mu.Lock()
	_, known := tt.enhancedIDs[args.PlaceID]
	tt.mu.Unlock()
	if !known {
		return &contextualResult{
			Places: []toolPlace{},
			Note:   "spatial context is only available for knowledge-store places returned by findNearby",
		}, nil
	}
	places, err := tt.o.places.ContextualRecommendations(ctx, args.PlaceID, args.MaxWalkMeters, args.Limit)
	if err != nil {
		return nil, err
	}
	return &contextualResult{Places: toolPlaces(places)}, nil
}

func decodeArgs(raw string, dst any) error {
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func toolPlaces(places []types.Place) []toolPlace {
	out := make([]toolPlace, 0, len(places))
	for _, p := range places {
		out = append(out, toolPlace{
			ID:             p.ID,
			Name:           p.Name,
			Category:       p.Category,
			Address:        p.Address,
			Lat:            p.Latitude,
			Lng:            p.Longitude,
			Rating:         p.Rating,
			PriceLevel:     p.PriceLevel,
			DistanceMeters: math.Round(p.Distance),
			Tags:           p.Tags,
			Summary:        p.Summary,
		})
	}
	return out
}

func errorResult(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
