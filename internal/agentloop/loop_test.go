package agentloop_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/agentloop"
	domain "github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/packs"
)

type recorded struct {
	tenant, job, step, status string
	payload                   map[string]any
}

type sink struct {
	mu     sync.Mutex
	events []recorded
}

func (s *sink) Emit(_ context.Context, tenantID, jobID, step, status string, payload map[string]any) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{tenantID, jobID, step, status, payload})
	return domain.Event{}, nil
}

func (s *sink) steps() []string {
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.step+"/"+e.status)
	}
	return out
}

// scripted returns queued replies or errors in order.
type scripted struct {
	replies []any
	seen    [][]agentloop.Message
}

func (m *scripted) Chat(_ context.Context, msgs []agentloop.Message, _ []agentloop.Tool) (agentloop.Message, error) {
	m.seen = append(m.seen, append([]agentloop.Message(nil), msgs...))
	if len(m.replies) == 0 {
		return agentloop.Message{}, errors.New("script exhausted")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	if err, ok := next.(error); ok {
		return agentloop.Message{}, err
	}
	return next.(agentloop.Message), nil
}

func addTool() agentloop.Tool {
	return agentloop.Tool{
		Name: "add",
		Run: func(_ context.Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return map[string]any{"sum": a + b}, nil
		},
	}
}

func TestLoopRunsToolsAndReturnsLastResult(t *testing.T) {
	model := &scripted{replies: []any{
		agentloop.Message{ToolCalls: []agentloop.ToolCall{{ID: "1", Name: "add", Arguments: `{"a":2,"b":3}`}}},
		agentloop.Message{Content: "done"},
	}}
	s := &sink{}
	loop := agentloop.New(model, []agentloop.Tool{addTool()}, s, agentloop.Options{System: "be brief"})

	res, err := loop.Run(context.Background(), map[string]any{"tenant_id": "t1", "job_id": "j1", "q": "sum"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(5)}, res)

	assert.Equal(t, []string{
		"plan/started", "plan/finished", "act/started", "act/progress", "plan/finished", "act/finished",
	}, s.steps())
	assert.Equal(t, "t1", s.events[0].tenant)
	assert.Equal(t, map[string]any{"input": map[string]any{"q": "sum"}}, s.events[0].payload)

	first := model.seen[0]
	require.Len(t, first, 2)
	assert.Equal(t, agentloop.RoleSystem, first[0].Role)
	assert.Equal(t, "Input:\n{\"q\":\"sum\"}", first[1].Content)

	second := model.seen[1]
	require.Len(t, second, 4)
	assert.Equal(t, agentloop.RoleAssistant, second[2].Role)
	assert.Equal(t, agentloop.RoleTool, second[3].Role)
	assert.Equal(t, "1", second[3].ToolCallID)
	assert.JSONEq(t, `{"sum":5}`, second[3].Content)
}

func TestLoopReturnsContentWithoutTools(t *testing.T) {
	model := &scripted{replies: []any{agentloop.Message{Content: "hello"}}}
	s := &sink{}
	res, err := agentloop.New(model, nil, s, agentloop.Options{}).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "hello", res)
	assert.Equal(t, "unknown", s.events[0].tenant)
	assert.Equal(t, "ad-hoc", s.events[0].job)
}

func TestLoopToolErrorsAndUnknownTools(t *testing.T) {
	failing := agentloop.Tool{Name: "fail", Run: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("kaput")
	}}
	model := &scripted{replies: []any{
		agentloop.Message{ToolCalls: []agentloop.ToolCall{
			{ID: "1", Name: "missing", Arguments: `{}`},
			{ID: "2", Name: "fail", Arguments: `not json`},
		}},
		agentloop.Message{Content: "gave up"},
	}}
	s := &sink{}
	res, err := agentloop.New(model, []agentloop.Tool{failing}, s, agentloop.Options{}).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": "kaput"}, res)

	progress := s.events[3].payload
	assert.Equal(t, "missing", progress["tool"])
	assert.Equal(t, map[string]any{"error": "Unknown tool 'missing'"}, progress["error"])
	assert.Equal(t, map[string]any{}, s.events[4].payload["args"])
}

func TestLoopRetriesModelErrors(t *testing.T) {
	transient := errors.New("rate limited")
	model := &scripted{replies: []any{transient, transient, agentloop.Message{Content: "ok"}}}
	var attempts []int
	loop := agentloop.New(model, nil, &sink{}, agentloop.Options{ShouldRetry: func(err error, attempt int) bool {
		attempts = append(attempts, attempt)
		return attempt < 3
	}})

	res, err := loop.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, []int{1, 2}, attempts)

	model = &scripted{replies: []any{transient}}
	_, err = agentloop.New(model, nil, &sink{}, agentloop.Options{}).Run(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, transient)
}

func TestLoopMaxTurns(t *testing.T) {
	call := agentloop.Message{ToolCalls: []agentloop.ToolCall{{ID: "1", Name: "add", Arguments: `{}`}}}
	model := &scripted{replies: []any{call, call, call}}
	_, err := agentloop.New(model, []agentloop.Tool{addTool()}, &sink{}, agentloop.Options{MaxTurns: 2}).Run(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, agentloop.ErrMaxTurns)
	assert.True(t, strings.Contains(err.Error(), "(2)"))
}

func TestAsAgent(t *testing.T) {
	model := &scripted{replies: []any{agentloop.Message{Content: "summary"}}}
	s := &sink{}
	agent := agentloop.New(model, nil, s, agentloop.Options{}).AsAgent("summarize", "")

	out, err := agent.Run(context.Background(), packs.Context{TenantID: "t9", JobID: "j9"}, map[string]any{"text": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "summary"}, out)
	assert.Equal(t, "t9", s.events[0].tenant)
	assert.Equal(t, "j9", s.events[0].job)
}
