package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/internal/api/plans"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

// maxStoredTurns caps the persisted history per session.
const maxStoredTurns = 40

var (
	ErrEmptyPrompt  = errors.New("prompt must not be empty")
	ErrInvalidPlan  = errors.New("invalid plan")
	errNoRepository = errors.New("plan persistence is not configured")
)

// Conversation runs one chat turn through the tool-calling loop.
type Conversation interface {
	Run(ctx context.Context, pc *types.PlanningContext, prompt string) (*types.PlanResponse, error)
}

// RoundPlanner runs a multi-round planning session.
type RoundPlanner interface {
	Plan(ctx context.Context, pc *types.PlanningContext, request string) (*types.PlanResponse, error)
}

var _ Service = (*ServiceImpl)(nil)

// Service is the boundary the HTTP layer calls.
type Service interface {
	Chat(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error)
	Rounds(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error)
	SavePlan(ctx context.Context, plan *types.SavedPlan) error
	LoadPlan(ctx context.Context, key string) (*types.SavedPlan, error)
}

type ServiceImpl struct {
	logger       *slog.Logger
	conversation Conversation
	planner      RoundPlanner
	repo         plans.Repository
}

// NewService builds the itinerary service. repo may be nil, in which case
// histories are not persisted and plan endpoints fail.
func NewService(conversation Conversation, planner RoundPlanner, repo plans.Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:       logger,
		conversation: conversation,
		planner:      planner,
		repo:         repo,
	}
}

func (s *ServiceImpl) Chat(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "Chat", trace.WithAttributes(
		attribute.String("session.key", req.SessionKey),
		attribute.Int("history.len", len(req.History)),
	))
	defer span.End()

	return s.turn(ctx, span, req, s.conversation.Run)
}

func (s *ServiceImpl) Rounds(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "Rounds", trace.WithAttributes(
		attribute.String("session.key", req.SessionKey),
	))
	defer span.End()

	return s.turn(ctx, span, req, s.planner.Plan)
}

type runner func(ctx context.Context, pc *types.PlanningContext, prompt string) (*types.PlanResponse, error)

func (s *ServiceImpl) turn(ctx context.Context, span trace.Span, req types.PlanRequest, run runner) (*types.PlanResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		span.SetStatus(codes.Error, "Empty prompt")
		return nil, ErrEmptyPrompt
	}

	pc := &types.PlanningContext{
		History:      s.history(ctx, req),
		UserLocation: req.UserLocation.Coordinates(),
		Preferences:  req.UserPreferences,
	}

	resp, err := run(ctx, pc, prompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Itinerary turn failed", slog.String("session_key", req.SessionKey), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Turn failed")
		return nil, err
	}

	s.saveHistory(ctx, req.SessionKey, append(pc.History,
		types.ChatTurn{Role: "user", Content: prompt},
		types.ChatTurn{Role: "assistant", Content: resp.ReplyText},
	))

	span.SetAttributes(attribute.Int("stops", len(resp.Stops)), attribute.Int("dropped", resp.Diagnostics.Count()))
	span.SetStatus(codes.Ok, "Turn completed")
	return resp, nil
}

// history prefers the request's own history and only loads the stored one
// when the request carries none.
func (s *ServiceImpl) history(ctx context.Context, req types.PlanRequest) []types.ChatTurn {
	if len(req.History) > 0 || req.SessionKey == "" || s.repo == nil {
		return req.History
	}
	stored, err := s.repo.LoadHistory(ctx, req.SessionKey)
	if err != nil {
		s.logger.WarnContext(ctx, "Could not load chat history, continuing without it",
			slog.String("session_key", req.SessionKey), slog.Any("error", err))
		return nil
	}
	return stored
}

func (s *ServiceImpl) saveHistory(ctx context.Context, sessionKey string, history []types.ChatTurn) {
	if sessionKey == "" || s.repo == nil {
		return
	}
	if len(history) > maxStoredTurns {
		history = history[len(history)-maxStoredTurns:]
	}
	if err := s.repo.SaveHistory(ctx, sessionKey, history); err != nil {
		s.logger.WarnContext(ctx, "Could not persist chat history",
			slog.String("session_key", sessionKey), slog.Any("error", err))
	}
}

func (s *ServiceImpl) SavePlan(ctx context.Context, plan *types.SavedPlan) error {
	if s.repo == nil {
		return errNoRepository
	}
	if strings.TrimSpace(plan.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidPlan)
	}
	for i, stop := range plan.Stops {
		if strings.TrimSpace(stop.Name) == "" {
			return fmt.Errorf("%w: stop %d has no name", ErrInvalidPlan, i)
		}
	}
	return s.repo.SavePlan(ctx, plan)
}

func (s *ServiceImpl) LoadPlan(ctx context.Context, key string) (*types.SavedPlan, error) {
	if s.repo == nil {
		return nil, errNoRepository
	}
	return s.repo.LoadPlan(ctx, key)
}
