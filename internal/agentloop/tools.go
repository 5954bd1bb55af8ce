package agentloop

import (
	"context"

	"github.com/al3dwii/agenticBE/internal/packs"
)

// AgentTools exposes pack agents as tools. Arguments are validated against
// each agent's schema before it runs.
func AgentTools(rc packs.Context, agents ...packs.Agent) []Tool {
	tools := make([]Tool, 0, len(agents))
	for _, a := range agents {
		a := a
		tools = append(tools, Tool{
			Name:        a.Name,
			Description: string(a.SchemaDocument()),
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				if err := a.Validate(args); err != nil {
					return nil, err
				}
				return a.Run(ctx, rc, args)
			},
		})
	}
	return tools
}
