package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const DefaultOpenAIModel = "gpt-4.1-mini"

var _ LLM = (*OpenAIClient)(nil)

type OpenAIClient struct {
	client  *openai.Client
	model   string
	logger  *slog.Logger
	metrics *metrics.AppMetrics
}

// NewOpenAIClient fails with types.ErrFatalConfiguration when the key is missing.
func NewOpenAIClient(apiKey, model string, logger *slog.Logger, m *metrics.AppMetrics) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", types.ErrFatalConfiguration)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		logger:  logger,
		metrics: m,
	}, nil
}

func (o *OpenAIClient) Name() string { return "openai" }

func (o *OpenAIClient) Chat(ctx context.Context, req Request) (*Reply, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "OpenAIChat", trace.WithAttributes(
		attribute.String("model", o.model),
		attribute.Int("messages.count", len(req.Messages)),
		attribute.Int("tools.count", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openAIRequest(o.model, req))
	o.metrics.RecordLLMCall(ctx, o.Name(), time.Since(start).Seconds())
	if err != nil {
		o.logger.ErrorContext(ctx, "OpenAI call failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Chat completion failed")
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("OpenAI API returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, "No choices")
		return nil, err
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	span.SetAttributes(
		attribute.Int("response.length", len(reply.Text)),
		attribute.Int("response.tool_calls", len(reply.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "Chat completion succeeded")
	return reply, nil
}

func openAIRequest(model string, req Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    openAIMessages(req.System, req.Messages),
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: openAIFunction(t),
		})
	}
	return out
}

func openAIFunction(t ToolSpec) *openai.FunctionDefinition {
	params := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition, len(t.Params)),
	}
	for _, p := range t.Params {
		params.Properties[p.Name] = jsonschema.Definition{
			Type:        openAIType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			params.Required = append(params.Required, p.Name)
		}
	}
	return &openai.FunctionDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

func openAIType(t ParamType) jsonschema.DataType {
	switch t {
	case ParamNumber:
		return jsonschema.Number
	case ParamInteger:
		return jsonschema.Integer
	default:
		return jsonschema.String
	}
}

func openAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			out = append(out, msg)
		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Text,
				Name:       m.ToolName,
				ToolCallID: m.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		}
	}
	return out
}
