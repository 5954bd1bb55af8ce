package office_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/office"
)

func TestTextToOutlineChunksOnShortLines(t *testing.T) {
	long := strings.Repeat("body text that keeps going ", 4)
	text := "Introduction\n" + long + "\n" + long + "\n\nSecond Section\n" + long + "\n"

	slides := office.TextToOutline(text, 12)
	require.Len(t, slides, 2)
	assert.Equal(t, "Introduction", slides[0].Title)
	assert.Len(t, slides[0].Bullets, 2)
	assert.Equal(t, "Second Section", slides[1].Title)
	assert.Equal(t, []string{strings.TrimSpace(long)}, slides[1].Bullets)
}

func TestTextToOutlineUpperCaseStartsChunk(t *testing.T) {
	upper := strings.Repeat("OVERVIEW OF RESULTS ", 5)
	long := strings.Repeat("x", 100)
	slides := office.TextToOutline(long+"\n"+upper+"\n"+long, 10)

	require.Len(t, slides, 2)
	assert.Equal(t, long, slides[0].Title)
	assert.Equal(t, strings.TrimSpace(upper), slides[1].Title)
	assert.Equal(t, []string{long}, slides[1].Bullets)
}

func TestTextToOutlineLimits(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Heading\n")
	}
	assert.Len(t, office.TextToOutline(b.String(), 3), 3)

	lines := []string{"Title"}
	for i := 0; i < 10; i++ {
		lines = append(lines, strings.Repeat("b", 90))
	}
	slides := office.TextToOutline(strings.Join(lines, "\n"), 5)
	require.Len(t, slides, 1)
	assert.Len(t, slides[0].Bullets, 5)

	title := strings.Repeat("é", 130)
	slides = office.TextToOutline(title, 5)
	require.Len(t, slides, 1)
	assert.Equal(t, 120, len([]rune(slides[0].Title)))
	assert.NotNil(t, slides[0].Bullets)
}

func TestTextToOutlineEmpty(t *testing.T) {
	assert.Empty(t, office.TextToOutline("  \n\n\t\n", 12))
	assert.Empty(t, office.TextToOutline("Heading", 0))
}

func TestMaxSlides(t *testing.T) {
	n, err := office.MaxSlides(map[string]any{}, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = office.MaxSlides(map[string]any{"max_slides": float64(4)}, 12)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = office.MaxSlides(map[string]any{"max_slides": "7"}, 12)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = office.MaxSlides(map[string]any{"max_slides": 0}, 12)
	assert.Error(t, err)
	_, err = office.MaxSlides(map[string]any{"max_slides": "lots"}, 12)
	assert.Error(t, err)
	_, err = office.MaxSlides(map[string]any{"max_slides": 2.5}, 12)
	assert.Error(t, err)
}
