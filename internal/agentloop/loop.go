package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	domain "github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/packs"
)

// DefaultMaxTurns bounds model calls in a single run.
const DefaultMaxTurns = 16

// ErrMaxTurns is returned when the model keeps requesting tools past the cap.
var ErrMaxTurns = errors.New("agent loop exceeded max turns")

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments holds JSON
// text as produced by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ChatModel produces the next assistant message. Implementations advertise
// tools to the provider themselves.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []Tool) (Message, error)
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args map[string]any) (any, error)
}

// EventSink records loop progress.
type EventSink interface {
	Emit(ctx context.Context, tenantID, jobID, step, status string, payload map[string]any) (domain.Event, error)
}

// Options configures a Loop.
type Options struct {
	System string
	// ShouldRetry decides whether a failed model call is retried; attempt
	// counts failures so far, starting at 1.
	ShouldRetry func(err error, attempt int) bool
	MaxTurns    int
	Logger      *slog.Logger
}

// Loop alternates model turns and tool execution until the model answers
// without requesting tools.
type Loop struct {
	model  ChatModel
	tools  []Tool
	byName map[string]Tool
	sink   EventSink
	opts   Options
	logger *slog.Logger
}

// New builds a loop.
func New(model ChatModel, tools []Tool, sink EventSink, opts Options) *Loop {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{model: model, tools: tools, byName: byName, sink: sink, opts: opts, logger: logger}
}

// Run executes the loop over state. tenant_id and job_id are read from state
// and excluded from the prompt. The result is the last tool result, or the
// final assistant content if no tool ran.
func (l *Loop) Run(ctx context.Context, state map[string]any) (any, error) {
	tenantID := stringOr(state["tenant_id"], "unknown")
	jobID := stringOr(state["job_id"], "ad-hoc")

	input := make(map[string]any, len(state))
	for k, v := range state {
		if k != "tenant_id" && k != "job_id" {
			input[k] = v
		}
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "encode loop input")
	}

	var msgs []Message
	if l.opts.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: l.opts.System})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: "Input:\n" + string(encoded)})

	emit := func(step, status string, payload map[string]any) error {
		_, err := l.sink.Emit(ctx, tenantID, jobID, step, status, payload)
		return err
	}

	if err := emit(domain.StepPlan, domain.StatusStarted, map[string]any{"input": input}); err != nil {
		return nil, err
	}

	var (
		lastResult any
		toolRan    bool
		failures   int
	)
	for turn := 0; ; {
		ai, err := l.model.Chat(ctx, msgs, l.tools)
		if err != nil {
			failures++
			if l.opts.ShouldRetry != nil && l.opts.ShouldRetry(err, failures) && ctx.Err() == nil {
				l.logger.Warn("model call failed; retrying", "job_id", jobID, "attempt", failures, "error", err)
				continue
			}
			return nil, errors.Wrap(err, "model call")
		}
		turn++

		ai.Role = RoleAssistant
		msgs = append(msgs, ai)

		if err := emit(domain.StepPlan, domain.StatusFinished, map[string]any{
			"assistant":  ai.Content,
			"tool_calls": ai.ToolCalls,
		}); err != nil {
			return nil, err
		}

		if len(ai.ToolCalls) == 0 {
			final := lastResult
			if !toolRan {
				final = ai.Content
			}
			if err := emit(domain.StepAct, domain.StatusFinished, map[string]any{"result": final}); err != nil {
				return nil, err
			}
			return final, nil
		}

		if turn >= l.opts.MaxTurns {
			return nil, fmt.Errorf("%w (%d)", ErrMaxTurns, l.opts.MaxTurns)
		}

		if err := emit(domain.StepAct, domain.StatusStarted, map[string]any{"tool_calls": ai.ToolCalls}); err != nil {
			return nil, err
		}

		for _, tc := range ai.ToolCalls {
			tool, ok := l.byName[tc.Name]
			if !ok {
				toolErr := map[string]any{"error": fmt.Sprintf("Unknown tool '%s'", tc.Name)}
				msgs = append(msgs, toolMessage(tc, toolErr))
				if err := emit(domain.StepAct, domain.StatusProgress, map[string]any{"tool": tc.Name, "error": toolErr}); err != nil {
					return nil, err
				}
				continue
			}

			args := parseArgs(tc.Arguments)
			res, runErr := tool.Run(ctx, args)
			if runErr != nil {
				res = map[string]any{"error": runErr.Error()}
			}
			lastResult = res
			toolRan = true

			msgs = append(msgs, toolMessage(tc, res))
			if err := emit(domain.StepAct, domain.StatusProgress, map[string]any{"tool": tc.Name, "args": args, "result": res}); err != nil {
				return nil, err
			}
		}
	}
}

// AsAgent exposes the loop as a pack agent. Non-map results are wrapped as
// {"result": value}.
func (l *Loop) AsAgent(name, schema string) packs.Agent {
	return packs.Agent{
		Name:   name,
		Schema: schema,
		Run: func(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
			state := make(map[string]any, len(inputs)+2)
			for k, v := range inputs {
				state[k] = v
			}
			if rc.TenantID != "" {
				state["tenant_id"] = rc.TenantID
			}
			if rc.JobID != "" {
				state["job_id"] = rc.JobID
			}
			res, err := l.Run(ctx, state)
			if err != nil {
				return nil, err
			}
			if m, ok := res.(map[string]any); ok {
				return m, nil
			}
			return map[string]any{"result": res}, nil
		},
	}
}

// ToolNames lists registered tools, sorted.
func (l *Loop) ToolNames() []string {
	names := make([]string, 0, len(l.byName))
	for n := range l.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func toolMessage(tc ToolCall, content any) Message {
	b, err := json.Marshal(content)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	name := tc.Name
	if name == "" {
		name = "tool"
	}
	return Message{Role: RoleTool, Content: string(b), ToolCallID: tc.ID, Name: name}
}

func parseArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
