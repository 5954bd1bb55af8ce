package office

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleRunes   = 120
	maxBulletRunes  = 300
	titleLineRunes  = 80
	bulletsPerChunk = 5
)

// Slide is one entry of a presentation outline.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// TextToOutline groups plain text into slides. A short line (at most 80
// characters) or an all upper-case line starts a new slide; the slide title is
// the first line of its chunk and the next five lines become bullets.
func TextToOutline(text string, maxSlides int) []Slide {
	if maxSlides <= 0 {
		return []Slide{}
	}

	var lines []string
	for _, l := range strings.FieldsFunc(text, isLineBreak) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	slides := []Slide{}
	var chunk []string
	for _, line := range lines {
		if utf8.RuneCountInString(line) <= titleLineRunes || isUpper(line) {
			if len(chunk) > 0 {
				slides = append(slides, chunkToSlide(chunk))
				if len(slides) >= maxSlides {
					break
				}
				chunk = nil
			}
		}
		chunk = append(chunk, line)
	}

	if len(chunk) > 0 && len(slides) < maxSlides {
		slides = append(slides, chunkToSlide(chunk))
	}

	if len(slides) == 0 && len(lines) > 0 {
		slides = []Slide{chunkToSlide(lines)}
	}

	if len(slides) > maxSlides {
		slides = slides[:maxSlides]
	}
	return slides
}

func chunkToSlide(chunk []string) Slide {
	end := len(chunk)
	if end > 1+bulletsPerChunk {
		end = 1 + bulletsPerChunk
	}
	bullets := make([]string, 0, end-1)
	bullets = append(bullets, chunk[1:end]...)
	return Slide{Title: truncate(chunk[0], maxTitleRunes), Bullets: bullets}
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// isUpper reports whether s has at least one cased letter and no lower-case ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) || unicode.IsTitle(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
