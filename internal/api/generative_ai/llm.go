package generativeAI

import (
	"context"
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run one tool. Arguments is a JSON object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a provider-neutral conversation. Tool results carry
// the id and name of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
}

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// ToolSpec declares one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
}

// Reply is either free text, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// LLM is a chat endpoint with tool calling.
type LLM interface {
	Name() string
	Chat(ctx context.Context, req Request) (*Reply, error)
}

type timeoutLLM struct {
	LLM
	timeout time.Duration
}

// WithTimeout bounds every Chat call of llm. A non-positive d returns llm unchanged.
func WithTimeout(llm LLM, d time.Duration) LLM {
	if d <= 0 {
		return llm
	}
	return &timeoutLLM{LLM: llm, timeout: d}
}

func (t *timeoutLLM) Chat(ctx context.Context, req Request) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.LLM.Chat(ctx, req)
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

func ToolResultMessage(call ToolCall, result string) Message {
	return Message{Role: RoleTool, Text: result, ToolCallID: call.ID, ToolName: call.Name}
}

// resultObject decodes a tool result into an object, wrapping non-object
// payloads under "result".
func resultObject(result string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(result), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(result), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": result}
}
