package office

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/al3dwii/agenticBE/internal/artifacts"
	"github.com/al3dwii/agenticBE/internal/packs"
)

// PackName is the registry name of the office pack.
const PackName = "office"

const (
	defaultMaxSlides        = 12
	defaultOutlineMaxSlides = 50
)

const inputSchema = `{
  "type": "object",
  "properties": {
    "file_url":   {"type": "string"},
    "source_url": {"type": "string"},
    "file_path":  {"type": "string"},
    "title":      {"type": ["string", "null"]},
    "max_slides": {"type": ["integer", "string"]}
  }
}`

// Pack bundles the document agents and their collaborators.
type Pack struct {
	Fetcher   *Fetcher
	Converter Converter
	PDF       *PDFReader
	Artifacts artifacts.Store
	// WorkRoot is where per-run temp dirs are created; empty means os.TempDir.
	WorkRoot string
	Logger   *slog.Logger
}

// Register adds the office agents to reg.
func (p *Pack) Register(reg *packs.Registry) {
	reg.Register(PackName, p.Agents()...)
}

// Agents lists the office agents.
func (p *Pack) Agents() []packs.Agent {
	return []packs.Agent{
		{Name: "word_to_pptx", Schema: inputSchema, Run: p.wordToPptx},
		{Name: "pdf_to_pptx", Schema: inputSchema, Run: p.pdfToPptx},
		{Name: "pptx_to_pdf", Schema: inputSchema, Run: p.pptxToPDF},
		{Name: "pptx_to_docx", Schema: inputSchema, Run: p.pptxToDocx},
		{Name: "pptx_to_html5", Schema: inputSchema, Run: p.pptxToHTML5},
		{Name: "pptx_to_outline", Schema: inputSchema, Run: p.pptxOutline},
	}
}

func (p *Pack) wordToPptx(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	maxSlides, err := MaxSlides(inputs, defaultMaxSlides)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, rc, "word_to_pptx", inputs, func(workDir, src string) (map[string]any, error) {
		outline, err := DocxToOutline(src, maxSlides)
		if err != nil {
			return nil, err
		}
		return p.outlineResult(ctx, workDir, outline, inputs)
	})
}

func (p *Pack) pdfToPptx(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	maxSlides, err := MaxSlides(inputs, defaultMaxSlides)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, rc, "pdf_to_pptx", inputs, func(workDir, src string) (map[string]any, error) {
		outline, err := PDFToOutline(ctx, p.PDF, src, maxSlides)
		if err != nil {
			return nil, err
		}
		return p.outlineResult(ctx, workDir, outline, inputs)
	})
}

func (p *Pack) pptxToPDF(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	return p.run(ctx, rc, "pptx_to_pdf", inputs, func(workDir, src string) (map[string]any, error) {
		out, err := p.Converter.Convert(ctx, src, "pdf", filepath.Join(workDir, "out"))
		if err != nil {
			return nil, err
		}
		return p.save(ctx, out, "slides.pdf", "pdf")
	})
}

func (p *Pack) pptxToDocx(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	return p.run(ctx, rc, "pptx_to_docx", inputs, func(workDir, src string) (map[string]any, error) {
		out, err := p.Converter.Convert(ctx, src, "docx", filepath.Join(workDir, "out"))
		if err != nil {
			return nil, err
		}
		return p.save(ctx, out, "slides.docx", "docx")
	})
}

func (p *Pack) pptxToHTML5(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	return p.run(ctx, rc, "pptx_to_html5", inputs, func(workDir, src string) (map[string]any, error) {
		html, err := p.Converter.Convert(ctx, src, "html", filepath.Join(workDir, "html"))
		if err != nil {
			return nil, err
		}
		zipped, err := ZipTree(html, workDir)
		if err != nil {
			return nil, err
		}
		return p.save(ctx, zipped, "slides_html.zip", "zip")
	})
}

func (p *Pack) pptxOutline(ctx context.Context, rc packs.Context, inputs map[string]any) (map[string]any, error) {
	maxSlides, err := MaxSlides(inputs, defaultOutlineMaxSlides)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, rc, "pptx_to_outline", inputs, func(_, src string) (map[string]any, error) {
		outline, err := PptxToOutline(src, maxSlides)
		if err != nil {
			return nil, err
		}
		return map[string]any{"outline": outline}, nil
	})
}

// run fetches the source into a fresh work dir, calls fn and removes the dir.
func (p *Pack) run(ctx context.Context, rc packs.Context, agent string, inputs map[string]any, fn func(workDir, src string) (map[string]any, error)) (map[string]any, error) {
	logger := rc.Logger
	if logger == nil {
		logger = p.logger()
	}
	logger = logger.With("agent", agent, "tenant_id", rc.TenantID)

	workDir, err := os.MkdirTemp(p.WorkRoot, "office-*")
	if err != nil {
		return nil, errors.Wrap(err, "create work dir")
	}
	defer os.RemoveAll(workDir)

	started := time.Now()
	src, err := p.Fetcher.Fetch(ctx, inputs, workDir)
	if err != nil {
		return nil, err
	}

	result, err := fn(workDir, src)
	if err != nil {
		logger.Warn("office agent failed", "error", err, "duration", time.Since(started))
		return nil, err
	}
	logger.Info("office agent finished", "duration", time.Since(started))
	return result, nil
}

func (p *Pack) outlineResult(ctx context.Context, workDir string, outline []Slide, inputs map[string]any) (map[string]any, error) {
	title, _ := inputs["title"].(string)
	pptx, err := OutlineToPptx(ctx, p.Converter, outline, strings.TrimSpace(title), workDir)
	if err != nil {
		return nil, err
	}
	result, err := p.save(ctx, pptx, "slides.pptx", "pptx")
	if err != nil {
		return nil, err
	}
	result["outline"] = outline
	return result, nil
}

func (p *Pack) save(ctx context.Context, local, name, prefix string) (map[string]any, error) {
	key, url, err := p.Artifacts.Save(ctx, local, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{prefix + "_key": key, prefix + "_url": url}, nil
}

func (p *Pack) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// OutlineToPptx renders outline as a presentation and converts it to pptx.
func OutlineToPptx(ctx context.Context, conv Converter, outline []Slide, title, workDir string) (string, error) {
	src := filepath.Join(workDir, "slides.fodp")
	if err := os.WriteFile(src, RenderFODP(outline, title), 0o644); err != nil {
		return "", errors.Wrap(err, "write presentation")
	}
	return conv.Convert(ctx, src, "pptx", filepath.Join(workDir, "pptx"))
}

// MaxSlides reads inputs["max_slides"], which may be a JSON number or a
// numeric string.
func MaxSlides(inputs map[string]any, def int) (int, error) {
	raw, ok := inputs["max_slides"]
	if !ok || raw == nil {
		return def, nil
	}

	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("max_slides must be an integer, got %v", v)
		}
		n = int(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("max_slides must be an integer, got %q", v.String())
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("max_slides must be an integer, got %q", v)
		}
		n = i
	default:
		return 0, fmt.Errorf("max_slides must be an integer, got %T", raw)
	}

	if n <= 0 {
		return 0, fmt.Errorf("max_slides must be positive, got %d", n)
	}
	return n, nil
}
