// Package travel fills the distance and duration legs between consecutive
// itinerary stops.
package travel

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

// RouteFinder answers travel-time requests between two routing tokens.
// places.Gateway implements it.
type RouteFinder interface {
	TravelTime(ctx context.Context, origin, destination, mode string) (*types.RouteLeg, error)
}

type Augmenter struct {
	routes RouteFinder
	mode   string
	logger *slog.Logger
}

func NewAugmenter(routes RouteFinder, mode string, logger *slog.Logger) *Augmenter {
	if mode == "" {
		mode = string(types.DefaultTravel)
	}
	return &Augmenter{routes: routes, mode: mode, logger: logger}
}

// Augment mutates stops in place. Complete travel data is never overwritten
// and a failed leg never stops the walk.
func (a *Augmenter) Augment(ctx context.Context, stops []types.Stop, origin *types.Coordinates) {
	ctx, span := otel.Tracer("TravelAugmenter").Start(ctx, "Augment", trace.WithAttributes(
		attribute.Int("stops.count", len(stops)),
		attribute.Bool("origin.present", origin != nil),
	))
	defer span.End()

	filled := 0
	for i := range stops {
		if stops[i].Travel.IsComplete() {
			continue
		}
		var from string
		if i == 0 {
			if origin == nil {
				stops[0].Travel = nil
				continue
			}
			from = origin.Token()
		} else {
			from = stops[i-1].CoordinatesOrAddress()
		}
		to := stops[i].CoordinatesOrAddress()
		if from == "" || to == "" {
			if i == 0 {
				stops[0].Travel = nil
			}
			continue
		}

		leg, err := a.routes.TravelTime(ctx, from, to, a.mode)
		if err != nil || leg == nil {
			a.logger.WarnContext(ctx, "Travel leg unavailable, skipping",
				slog.Int("stop_index", i),
				slog.String("stop", stops[i].Name),
				slog.Any("error", err))
			if i == 0 {
				stops[0].Travel = nil
			}
			continue
		}
		stops[i].Travel = &types.Travel{
			DistanceMeters:  math.Round(leg.DistanceMeters),
			DurationMinutes: math.Round(leg.DurationSeconds/60*10) / 10,
		}
		filled++
	}
	span.SetAttributes(attribute.Int("legs.filled", filled))
}
