package itinerary

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-itinerary-planner/app/middleware"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

type HandlerImpl struct {
	logger  *slog.Logger
	service Service
}

func NewHandlerImpl(service Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger:  logger,
		service: service,
	}
}

// Chat handles POST /itinerary/chat.
func (h *HandlerImpl) Chat(w http.ResponseWriter, r *http.Request) {
	h.plan(w, r, "Chat", h.service.Chat)
}

// Rounds handles POST /itinerary/rounds.
func (h *HandlerImpl) Rounds(w http.ResponseWriter, r *http.Request) {
	h.plan(w, r, "Rounds", h.service.Rounds)
}

func (h *HandlerImpl) plan(w http.ResponseWriter, r *http.Request, method string,
	run func(context.Context, types.PlanRequest) (*types.PlanResponse, error)) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), method, trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", r.URL.Path),
	))
	defer span.End()

	l := h.logger.With(slog.String("method", method))

	var req types.PlanRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.SessionKey == "" {
		if key, ok := appMiddleware.GetSessionKeyFromContext(ctx); ok {
			req.SessionKey = key
		}
	}

	resp, err := run(ctx, req)
	if err != nil {
		status := statusFor(err)
		l.ErrorContext(ctx, "Itinerary request failed", slog.Int("status", status), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, status, messageFor(err))
		return
	}

	l.InfoContext(ctx, "Itinerary request served",
		slog.Int("stops", len(resp.Stops)),
		slog.Int("dropped", resp.Diagnostics.Count()))
	span.SetStatus(codes.Ok, "Itinerary returned")
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

type savePlanRequest struct {
	Title string       `json:"title"`
	Stops []types.Stop `json:"stops"`
}

// GetPlan handles GET /itinerary/plans/{key}.
func (h *HandlerImpl) GetPlan(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "GetPlan", trace.WithAttributes(
		attribute.String("plan.key", key),
	))
	defer span.End()

	plan, err := h.service.LoadPlan(ctx, key)
	if err != nil {
		status := statusFor(err)
		h.logger.ErrorContext(ctx, "Failed to load plan", slog.String("key", key), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Load failed")
		api.ErrorResponse(w, r, status, messageFor(err))
		return
	}

	span.SetStatus(codes.Ok, "Plan returned")
	api.WriteJSONResponse(w, r, http.StatusOK, plan)
}

// PutPlan handles PUT /itinerary/plans/{key}.
func (h *HandlerImpl) PutPlan(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "PutPlan", trace.WithAttributes(
		attribute.String("plan.key", key),
	))
	defer span.End()

	var body savePlanRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode plan body", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	plan := &types.SavedPlan{Key: key, Title: body.Title, Stops: body.Stops}
	if err := h.service.SavePlan(ctx, plan); err != nil {
		status := statusFor(err)
		h.logger.ErrorContext(ctx, "Failed to save plan", slog.String("key", key), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Save failed")
		api.ErrorResponse(w, r, status, messageFor(err))
		return
	}

	span.SetStatus(codes.Ok, "Plan saved")
	api.WriteJSONResponse(w, r, http.StatusOK, plan)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrInvalidPlan):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrLLMUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errNoRepository):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest, http.StatusNotFound:
		return err.Error()
	case http.StatusBadGateway:
		return "The language model is unavailable, please try again later"
	case http.StatusGatewayTimeout:
		return "The request timed out"
	case http.StatusServiceUnavailable:
		return "Plan storage is not available"
	default:
		return "Internal server error"
	}
}
