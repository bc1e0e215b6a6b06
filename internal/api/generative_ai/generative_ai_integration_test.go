//go:build integration

package generativeAI

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var findNearbyTool = ToolSpec{
	Name:        "findNearby",
	Description: "Find places of a category within a radius of a point.",
	Params: []Param{
		{Name: "lat", Type: ParamNumber, Required: true},
		{Name: "lng", Type: ParamNumber, Required: true},
		{Name: "radius", Type: ParamNumber, Description: "Radius in meters", Required: true},
		{Name: "category", Type: ParamString, Required: true},
	},
}

func integrationClients(t *testing.T) []LLM {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	var clients []LLM
	if key := os.Getenv("GOOGLE_GEMINI_API_KEY"); key != "" {
		c, err := NewGeminiClient(context.Background(), key, "", logger, nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c, err := NewOpenAIClient(key, "", logger, nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		t.Skip("Skipping integration test: no LLM API key set")
	}
	return clients
}

func TestLLM_PlainChat_Integration(t *testing.T) {
	for _, c := range integrationClients(t) {
		t.Run(c.Name(), func(t *testing.T) {
			reply, err := c.Chat(context.Background(), Request{
				System:      "Answer in one short sentence.",
				Messages:    []Message{UserMessage("What is the capital of Portugal?")},
				Temperature: 0.1,
			})
			require.NoError(t, err)
			assert.Contains(t, reply.Text, "Lisbon")
		})
	}
}

func TestLLM_ToolRoundTrip_Integration(t *testing.T) {
	for _, c := range integrationClients(t) {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			history := []Message{UserMessage("Find beaches within 2km of 37.0194,-7.9304 using the tool.")}

			reply, err := c.Chat(ctx, Request{Messages: history, Tools: []ToolSpec{findNearbyTool}, Temperature: 0.1})
			require.NoError(t, err)
			require.NotEmpty(t, reply.ToolCalls)
			call := reply.ToolCalls[0]
			assert.Equal(t, "findNearby", call.Name)

			var args map[string]any
			require.NoError(t, json.Unmarshal([]byte(call.Arguments), &args))
			assert.Contains(t, args, "category")

			history = append(history,
				AssistantMessage(reply.Text, reply.ToolCalls),
				ToolResultMessage(call, `[{"name":"Praia de Faro","address":"Ilha de Faro"}]`))
			final, err := c.Chat(ctx, Request{Messages: history, Tools: []ToolSpec{findNearbyTool}, Temperature: 0.1})
			require.NoError(t, err)
			assert.Contains(t, strings.ToLower(final.Text), "faro")
		})
	}
}
