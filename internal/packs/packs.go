package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownAgent = errors.New("Unknown agent")
	ErrInvalidInput = errors.New("invalid agent input")
)

// Context carries request-scoped identity into an agent run.
type Context struct {
	TenantID string
	UserID   string
	JobID    string
	Logger   *slog.Logger
}

// RunFunc executes an agent against normalized inputs.
type RunFunc func(ctx context.Context, rc Context, inputs map[string]any) (map[string]any, error)

// Agent is one runnable unit inside a pack.
type Agent struct {
	Name string
	// Schema is an optional JSON schema document for the agent's inputs.
	Schema string
	Run    RunFunc
}

// Validate checks inputs against the agent's schema, if it has one.
func (a Agent) Validate(inputs map[string]any) error {
	if strings.TrimSpace(a.Schema) == "" {
		return nil
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(a.Schema),
		gojsonschema.NewGoLoader(inputs),
	)
	if err != nil {
		return fmt.Errorf("validate %s inputs: %w", a.Name, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

// Registry maps pack names to their agents.
type Registry struct {
	mu    sync.RWMutex
	packs map[string]map[string]Agent
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{packs: make(map[string]map[string]Agent)}
}

// Register adds agents under pack, replacing any with the same name.
func (r *Registry) Register(pack string, agents ...Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.packs[pack] == nil {
		r.packs[pack] = make(map[string]Agent)
	}
	for _, a := range agents {
		r.packs[pack][a.Name] = a
	}
}

// Lookup resolves pack.agent.
func (r *Registry) Lookup(pack, agent string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.packs[pack][agent]
	if !ok || a.Run == nil {
		return Agent{}, fmt.Errorf("%w '%s.%s'", ErrUnknownAgent, pack, agent)
	}
	return a, nil
}

// List returns every pack with its agent names sorted.
func (r *Registry) List() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.packs))
	for pack, agents := range r.packs {
		names := make([]string, 0, len(agents))
		for name := range agents {
			names = append(names, name)
		}
		sort.Strings(names)
		out[pack] = names
	}
	return out
}

// SchemaDocument returns the agent schema as raw JSON, or an empty object.
func (a Agent) SchemaDocument() json.RawMessage {
	if strings.TrimSpace(a.Schema) == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(a.Schema)
}
