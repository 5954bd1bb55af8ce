package packs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/packs"
)

func echo(_ context.Context, _ packs.Context, in map[string]any) (map[string]any, error) {
	return in, nil
}

func TestLookupAndList(t *testing.T) {
	reg := packs.NewRegistry()
	reg.Register("office", packs.Agent{Name: "pptx_to_pdf", Run: echo}, packs.Agent{Name: "docx_to_pptx", Run: echo})

	a, err := reg.Lookup("office", "pptx_to_pdf")
	require.NoError(t, err)
	assert.Equal(t, "pptx_to_pdf", a.Name)

	_, err = reg.Lookup("office", "nope")
	assert.ErrorIs(t, err, packs.ErrUnknownAgent)
	assert.EqualError(t, err, "Unknown agent 'office.nope'")

	_, err = reg.Lookup("seo", "writer")
	assert.ErrorIs(t, err, packs.ErrUnknownAgent)

	assert.Equal(t, map[string][]string{"office": {"docx_to_pptx", "pptx_to_pdf"}}, reg.List())
}

func TestValidate(t *testing.T) {
	a := packs.Agent{
		Name: "demo",
		Schema: `{
			"type": "object",
			"properties": {"max_slides": {"type": "integer", "minimum": 1}},
			"required": ["file_url"]
		}`,
		Run: echo,
	}

	require.NoError(t, a.Validate(map[string]any{"file_url": "https://x", "max_slides": 3}))

	err := a.Validate(map[string]any{"max_slides": 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, packs.ErrInvalidInput)
	assert.Contains(t, err.Error(), "file_url")

	assert.NoError(t, packs.Agent{Name: "free", Run: echo}.Validate(nil))
}
