// Package orchestrator drives one user turn of the tool-calling conversation
// with the model until it produces a terminal itinerary reply.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/extractor"
	generativeAI "github.com/FACorreiaa/go-itinerary-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const (
	DefaultMaxIterations = 5
	defaultTemperature   = 0.4
)

// Places is the lookup surface exposed to the model as tools.
type Places interface {
	FindNearby(ctx context.Context, q types.NearbyQuery) types.TierResult
	TravelTime(ctx context.Context, origin, destination, mode string) (*types.RouteLeg, error)
	ContextualRecommendations(ctx context.Context, placeID string, maxWalkMeters float64, limit int) ([]types.Place, error)
}

type StopGeocoder interface {
	GeocodeStops(ctx context.Context, stops []types.Stop)
}

type TravelAugmenter interface {
	Augment(ctx context.Context, stops []types.Stop, origin *types.Coordinates)
}

// QuestionDetector reports whether a reply is asking the user something.
type QuestionDetector func(displayText string) bool

// EndsWithQuestion reports whether the last non-empty line of the narrative
// ends with a question mark, ignoring closing quotes and brackets.
func EndsWithQuestion(displayText string) bool {
	lines := strings.Split(strings.TrimSpace(displayText), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return strings.HasSuffix(strings.TrimRight(line, " )\"'"), "?")
	}
	return false
}

type Config struct {
	Region        string
	MaxIterations int
	Temperature   float32
}

type Orchestrator struct {
	llm          generativeAI.LLM
	places       Places
	geocoder     StopGeocoder
	augmenter    TravelAugmenter
	extractor    *extractor.Extractor
	asksQuestion QuestionDetector
	cfg          Config
	logger       *slog.Logger
	metrics      *metrics.AppMetrics
}

type Option func(*Orchestrator)

// WithQuestionDetector replaces the textual question heuristic.
func WithQuestionDetector(d QuestionDetector) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.asksQuestion = d
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(llm generativeAI.LLM, places Places, geocoder StopGeocoder, augmenter TravelAugmenter, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	o := &Orchestrator{
		llm:          llm,
		places:       places,
		geocoder:     geocoder,
		augmenter:    augmenter,
		extractor:    extractor.New(logger),
		asksQuestion: EndsWithQuestion,
		cfg:          cfg,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run plays one user turn. The only error it returns wraps
// types.ErrLLMUnavailable; everything else degrades into the response.
func (o *Orchestrator) Run(ctx context.Context, pc *types.PlanningContext, prompt string) (*types.PlanResponse, error) {
	if pc == nil {
		pc = &types.PlanningContext{}
	}
	ctx, span := otel.Tracer("ConversationOrchestrator").Start(ctx, "Run", trace.WithAttributes(
		attribute.String("llm.provider", o.llm.Name()),
		attribute.Int("history.length", len(pc.History)),
		attribute.Int("max_iterations", o.cfg.MaxIterations),
	))
	defer span.End()

	l := o.logger.With(slog.String("component", "orchestrator"))
	req := generativeAI.Request{
		System:      systemPrompt(o.cfg.Region, pc),
		Messages:    historyMessages(pc.History, prompt),
		Tools:       toolSpecs,
		Temperature: o.cfg.Temperature,
	}
	tools := o.newTurnTools()

	var (
		notes     []string
		lastText  string
		extracted extractor.Result
		terminal  bool
	)
	for iter := 0; iter < o.cfg.MaxIterations && !terminal; iter++ {
		reply, err := o.llm.Chat(ctx, req)
		if err != nil {
			if iter == 0 {
				span.RecordError(err)
				span.SetStatus(codes.Error, "LLM unavailable")
				return nil, fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
			}
			l.WarnContext(ctx, "Model call failed mid-turn, using best available answer",
				slog.Int("iteration", iter), slog.Any("error", err))
			notes = append(notes, fmt.Sprintf("model call failed at iteration %d", iter+1))
			break
		}
		lastText = reply.Text

		if len(reply.ToolCalls) > 0 {
			l.DebugContext(ctx, "Dispatching tool calls",
				slog.Int("iteration", iter), slog.Int("calls", len(reply.ToolCalls)))
			req.Messages = append(req.Messages, generativeAI.AssistantMessage(reply.Text, reply.ToolCalls))
			results := tools.dispatch(ctx, reply.ToolCalls)
			for i, call := range reply.ToolCalls {
				req.Messages = append(req.Messages, generativeAI.ToolResultMessage(call, results[i]))
			}
			continue
		}

		extracted = o.extractor.Extract(reply.Text)
		req.Messages = append(req.Messages, generativeAI.AssistantMessage(reply.Text, nil))
		switch {
		case len(extracted.Records) == 0:
			req.Messages = append(req.Messages, generativeAI.UserMessage(recordsInstruction))
		case o.asksQuestion(extracted.DisplayText):
			l.InfoContext(ctx, "Reply has stops but asks a question, instructing model to proceed",
				slog.Int("iteration", iter))
			req.Messages = append(req.Messages, generativeAI.UserMessage(proceedInstruction))
		default:
			terminal = true
		}
	}

	if !terminal {
		notes = append(notes, fmt.Sprintf("%v after %d iterations", types.ErrBudgetExhausted, o.cfg.MaxIterations))
		if strings.TrimSpace(lastText) == "" {
			lastText = o.finalAttempt(ctx, req, &notes)
		}
		extracted = o.extractor.Extract(lastText)
	}

	stops := extracted.Records
	if len(stops) > 0 {
		o.geocoder.GeocodeStops(ctx, stops)
		o.augmenter.Augment(ctx, stops, pc.UserLocation)
	}
	o.metrics.RecordDropped(ctx, extracted.Diagnostics.Count())

	diag := extracted.Diagnostics
	diag.Notes = append(diag.Notes, notes...)
	span.SetAttributes(
		attribute.Bool("terminal", terminal),
		attribute.Int("stops.count", len(stops)),
		attribute.Int("dropped.count", diag.Count()),
	)
	span.SetStatus(codes.Ok, "Turn completed")
	return &types.PlanResponse{
		ReplyText:   extracted.DisplayText,
		Stops:       stops,
		Diagnostics: diag,
	}, nil
}

// finalAttempt issues the one bounded retry without tools.
func (o *Orchestrator) finalAttempt(ctx context.Context, req generativeAI.Request, notes *[]string) string {
	req.Tools = nil
	req.Messages = append(req.Messages, generativeAI.UserMessage(finalInstruction))
	reply, err := o.llm.Chat(ctx, req)
	if err != nil {
		o.logger.WarnContext(ctx, "Final retry without tools failed", slog.Any("error", err))
		*notes = append(*notes, "final retry failed")
		return ""
	}
	*notes = append(*notes, "answer produced by final retry without tools")
	return reply.Text
}

func historyMessages(history []types.ChatTurn, prompt string) []generativeAI.Message {
	msgs := make([]generativeAI.Message, 0, len(history)+1)
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		switch turn.Role {
		case "assistant", "model":
			msgs = append(msgs, generativeAI.AssistantMessage(turn.Content, nil))
		default:
			msgs = append(msgs, generativeAI.UserMessage(turn.Content))
		}
	}
	return append(msgs, generativeAI.UserMessage(prompt))
}
