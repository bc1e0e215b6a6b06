package places

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

var _ KnowledgeStore = (*PostgresStore)(nil)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore is the PostGIS-backed knowledge store.
type PostgresStore struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		logger: logger,
		db:     db,
	}
}

const placeColumns = `
            p.id::text,
            p.name,
            p.category,
            COALESCE(p.address, ''),
            ST_Y(p.location::geometry) AS latitude,
            ST_X(p.location::geometry) AS longitude,
            COALESCE(p.rating, 0),
            COALESCE(p.price_level, 0),
            COALESCE(p.tags, '{}'),
            COALESCE(p.website, ''),
            COALESCE(p.phone, ''),
            COALESCE(p.opening_hours, ''),
            COALESCE(p.ai_summary, '')`

// SearchByType returns places of the given categories within the radius,
// nearest first.
func (r *PostgresStore) SearchByType(ctx context.Context, c types.SearchCriteria) ([]types.Place, error) {
	ctx, span := otel.Tracer("KnowledgeStore").Start(ctx, "SearchByType", trace.WithAttributes(
		attribute.Float64("location.latitude", c.Latitude),
		attribute.Float64("location.longitude", c.Longitude),
		attribute.Float64("radius", c.RadiusMeters),
	))
	defer span.End()

	query, args := buildSearchQuery(c, false)
	return r.queryPlaces(ctx, span, "SearchByType", query, args...)
}

// SearchAdvanced applies rating, price and tag filters on top of the type
// search and ranks by rating before distance.
func (r *PostgresStore) SearchAdvanced(ctx context.Context, c types.SearchCriteria) ([]types.Place, error) {
	ctx, span := otel.Tracer("KnowledgeStore").Start(ctx, "SearchAdvanced", trace.WithAttributes(
		attribute.Float64("location.latitude", c.Latitude),
		attribute.Float64("location.longitude", c.Longitude),
		attribute.Float64("radius", c.RadiusMeters),
		attribute.Int("tags.count", len(c.Tags)),
	))
	defer span.End()

	query, args := buildSearchQuery(c, true)
	return r.queryPlaces(ctx, span, "SearchAdvanced", query, args...)
}

// WalkingNeighbours follows the walking-distance relationships of one place.
func (r *PostgresStore) WalkingNeighbours(ctx context.Context, placeID string, maxWalkMeters float64, limit int) ([]types.Place, error) {
	ctx, span := otel.Tracer("KnowledgeStore").Start(ctx, "WalkingNeighbours", trace.WithAttributes(
		attribute.String("place.id", placeID),
		attribute.Float64("max_walk_meters", maxWalkMeters),
	))
	defer span.End()

	query := `
        SELECT` + placeColumns + `,
            rel.walking_distance_meters
        FROM poi_relationships rel
        JOIN points_of_interest p ON p.id = rel.related_poi_id
        WHERE rel.poi_id::text = $1
          AND rel.walking_distance_meters <= $2
        ORDER BY rel.walking_distance_meters ASC
        LIMIT $3`
	return r.queryPlaces(ctx, span, "WalkingNeighbours", query, placeID, maxWalkMeters, limit)
}

func buildSearchQuery(c types.SearchCriteria, advanced bool) (string, []any) {
	categories := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		categories = append(categories, strings.ToLower(strings.TrimSpace(cat)))
	}
	exclude := c.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	var b strings.Builder
	b.WriteString(`
        SELECT` + placeColumns + `,
            ST_Distance(
                p.location,
                ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
            ) AS distance_meters
        FROM points_of_interest p
        WHERE ST_DWithin(
            p.location,
            ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
            $3
        )
          AND lower(p.category) = ANY($4)
          AND NOT (p.id::text = ANY($5))`)
	args := []any{
		c.Longitude,    // $1
		c.Latitude,     // $2
		c.RadiusMeters, // $3
		categories,     // $4
		exclude,        // $5
	}

	if advanced {
		if c.MinRating != nil {
			args = append(args, *c.MinRating)
			fmt.Fprintf(&b, "\n          AND p.rating >= $%d", len(args))
		}
		if c.PriceLevel != nil {
			args = append(args, *c.PriceLevel)
			fmt.Fprintf(&b, "\n          AND p.price_level <= $%d", len(args))
		}
		if len(c.Tags) > 0 {
			args = append(args, c.Tags)
			fmt.Fprintf(&b, "\n          AND p.tags && $%d", len(args))
		}
		b.WriteString("\n        ORDER BY p.rating DESC NULLS LAST, distance_meters ASC")
	} else {
		b.WriteString("\n        ORDER BY distance_meters ASC")
	}
	args = append(args, c.Limit)
	fmt.Fprintf(&b, "\n        LIMIT $%d", len(args))
	return b.String(), args
}

func (r *PostgresStore) queryPlaces(ctx context.Context, span trace.Span, method, query string, args ...any) ([]types.Place, error) {
	l := r.logger.With(slog.String("method", method))
	l.DebugContext(ctx, "Executing knowledge store query", slog.Any("args", args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query points_of_interest", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to search points_of_interest: %w", err)
	}
	defer rows.Close()

	var places []types.Place
	for rows.Next() {
		var p types.Place
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Category,
			&p.Address,
			&p.Latitude,
			&p.Longitude,
			&p.Rating,
			&p.PriceLevel,
			&p.Tags,
			&p.Website,
			&p.Phone,
			&p.Hours,
			&p.Summary,
			&p.Distance,
		)
		if err != nil {
			l.ErrorContext(ctx, "Failed to scan place row", slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan place row: %w", err)
		}
		p.Source = "knowledge_store"
		places = append(places, p)
	}
	if err = rows.Err(); err != nil {
		l.ErrorContext(ctx, "Error iterating place rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating place rows: %w", err)
	}

	span.SetAttributes(attribute.Int("places.count", len(places)))
	span.SetStatus(codes.Ok, "Query completed")
	l.InfoContext(ctx, "Knowledge store query completed", slog.Int("count", len(places)))
	return places, nil
}
