package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the key/value persistence for chat histories and saved plans.
type Repository interface {
	SaveHistory(ctx context.Context, sessionKey string, history []types.ChatTurn) error
	LoadHistory(ctx context.Context, sessionKey string) ([]types.ChatTurn, error)
	SavePlan(ctx context.Context, plan *types.SavedPlan) error
	LoadPlan(ctx context.Context, key string) (*types.SavedPlan, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool DB
}

func NewRepository(pgxpool DB, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgxpool,
	}
}

func (r *RepositoryImpl) SaveHistory(ctx context.Context, sessionKey string, history []types.ChatTurn) error {
	ctx, span := otel.Tracer("PlansRepository").Start(ctx, "SaveHistory", trace.WithAttributes(
		attribute.String("session.key", sessionKey),
		attribute.Int("turns", len(history)),
	))
	defer span.End()

	turns, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode chat history: %w", err)
	}

	query := `
        INSERT INTO chat_histories (session_key, turns, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (session_key) DO UPDATE
        SET turns = EXCLUDED.turns, updated_at = NOW()`
	if _, err := r.pgpool.Exec(ctx, query, sessionKey, turns); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save chat history", slog.String("session_key", sessionKey), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database exec failed")
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	span.SetStatus(codes.Ok, "History saved")
	return nil
}

// LoadHistory returns nil without error for an unknown session.
func (r *RepositoryImpl) LoadHistory(ctx context.Context, sessionKey string) ([]types.ChatTurn, error) {
	ctx, span := otel.Tracer("PlansRepository").Start(ctx, "LoadHistory", trace.WithAttributes(
		attribute.String("session.key", sessionKey),
	))
	defer span.End()

	var raw []byte
	err := r.pgpool.QueryRow(ctx, `SELECT turns FROM chat_histories WHERE session_key = $1`, sessionKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Ok, "No history")
		return nil, nil
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load chat history", slog.String("session_key", sessionKey), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	var history []types.ChatTurn
	if err := json.Unmarshal(raw, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	span.SetStatus(codes.Ok, "History loaded")
	return history, nil
}

// SavePlan upserts by key and fills the plan's id and update time.
func (r *RepositoryImpl) SavePlan(ctx context.Context, plan *types.SavedPlan) error {
	ctx, span := otel.Tracer("PlansRepository").Start(ctx, "SavePlan", trace.WithAttributes(
		attribute.String("plan.key", plan.Key),
		attribute.Int("stops", len(plan.Stops)),
	))
	defer span.End()

	stops := plan.Stops
	if stops == nil {
		stops = []types.Stop{}
	}
	raw, err := json.Marshal(stops)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode plan stops: %w", err)
	}

	query := `
        INSERT INTO saved_plans (plan_key, title, stops, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (plan_key) DO UPDATE
        SET title = EXCLUDED.title, stops = EXCLUDED.stops, updated_at = NOW()
        RETURNING id, updated_at`
	if err := r.pgpool.QueryRow(ctx, query, plan.Key, plan.Title, raw).Scan(&plan.ID, &plan.UpdatedAt); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save plan", slog.String("key", plan.Key), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database upsert failed")
		return fmt.Errorf("failed to save plan: %w", err)
	}
	span.SetStatus(codes.Ok, "Plan saved")
	return nil
}

func (r *RepositoryImpl) LoadPlan(ctx context.Context, key string) (*types.SavedPlan, error) {
	ctx, span := otel.Tracer("PlansRepository").Start(ctx, "LoadPlan", trace.WithAttributes(
		attribute.String("plan.key", key),
	))
	defer span.End()

	var (
		plan types.SavedPlan
		raw  []byte
	)
	query := `
        SELECT id, plan_key, COALESCE(title, ''), stops, updated_at
        FROM saved_plans
        WHERE plan_key = $1`
	err := r.pgpool.QueryRow(ctx, query, key).Scan(&plan.ID, &plan.Key, &plan.Title, &raw, &plan.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Plan not found")
		return nil, fmt.Errorf("%w: %s", types.ErrPlanNotFound, key)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load plan", slog.String("key", key), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if err := json.Unmarshal(raw, &plan.Stops); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode plan stops: %w", err)
	}
	span.SetStatus(codes.Ok, "Plan loaded")
	return &plan, nil
}
