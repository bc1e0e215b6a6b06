package generativeAI

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const DefaultGeminiModel = "gemini-2.0-flash"

var _ LLM = (*GeminiClient)(nil)

type GeminiClient struct {
	client  *genai.Client
	model   string
	logger  *slog.Logger
	metrics *metrics.AppMetrics
}

// NewGeminiClient fails with types.ErrFatalConfiguration when the key is missing.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger, m *metrics.AppMetrics) (*GeminiClient, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "NewGeminiClient")
	defer span.End()

	if apiKey == "" {
		err := fmt.Errorf("%w: GOOGLE_GEMINI_API_KEY is not set", types.ErrFatalConfiguration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	span.SetStatus(codes.Ok, "AI client created successfully")
	return &GeminiClient{client: client, model: model, logger: logger, metrics: m}, nil
}

func (g *GeminiClient) Name() string { return "gemini" }

func (g *GeminiClient) Chat(ctx context.Context, req Request) (*Reply, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GeminiChat", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("messages.count", len(req.Messages)),
		attribute.Int("tools.count", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(req.Messages), geminiConfig(req))
	g.metrics.RecordLLMCall(ctx, g.Name(), time.Since(start).Seconds())
	if err != nil {
		g.logger.ErrorContext(ctx, "Gemini call failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate content")
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	reply := &Reply{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			args = []byte("{}")
		}
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: string(args)})
	}

	span.SetAttributes(
		attribute.Int("response.length", len(reply.Text)),
		attribute.Int("response.tool_calls", len(reply.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "Content generated successfully")
	return reply, nil
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](req.Temperature)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiDeclaration(t))
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func geminiDeclaration(t ToolSpec) *genai.FunctionDeclaration {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(t.Params)),
	}
	for _, p := range t.Params {
		schema.Properties[p.Name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schema,
	}
}

func geminiType(t ParamType) genai.Type {
	switch t {
	case ParamNumber:
		return genai.TypeNumber
	case ParamInteger:
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}

// geminiContents maps the neutral history onto Gemini's user/model turns.
// Consecutive tool results are merged into a single user turn.
func geminiContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			c := &genai.Content{Role: "model"}
			if m.Text != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
			}
			for _, call := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(call.Arguments), &args)
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: resultObject(m.Text),
			}}
			if n := len(contents); n > 0 && isToolTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Text}}})
		}
	}
	return contents
}

func isToolTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}
