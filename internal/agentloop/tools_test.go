package agentloop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/agentloop"
	"github.com/al3dwii/agenticBE/internal/packs"
)

func TestAgentTools(t *testing.T) {
	double := packs.Agent{
		Name:   "double",
		Schema: `{"type":"object","properties":{"n":{"type":"number"}},"required":["n"]}`,
		Run: func(_ context.Context, rc packs.Context, in map[string]any) (map[string]any, error) {
			return map[string]any{"n": in["n"].(float64) * 2, "tenant": rc.TenantID}, nil
		},
	}
	tools := agentloop.AgentTools(packs.Context{TenantID: "t1"}, double)
	require.Len(t, tools, 1)
	assert.Equal(t, "double", tools[0].Name)

	model := &scripted{replies: []any{
		agentloop.Message{ToolCalls: []agentloop.ToolCall{{ID: "a", Name: "double", Arguments: `{"n":4}`}}},
		agentloop.Message{ToolCalls: []agentloop.ToolCall{{ID: "b", Name: "double", Arguments: `{}`}}},
		agentloop.Message{Content: "done"},
	}}
	s := &sink{}
	loop := agentloop.New(model, tools, s, agentloop.Options{})
	assert.Equal(t, []string{"double"}, loop.ToolNames())

	res, err := loop.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	errMap, ok := res.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errMap["error"], "invalid agent input")

	first := s.events[3].payload["result"]
	assert.Equal(t, map[string]any{"n": float64(8), "tenant": "t1"}, first)
}
