package office

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os/exec"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// PDFReader extracts text from PDF files. When the native parser fails the
// Ghostscript txtwrite device is tried.
type PDFReader struct {
	GhostscriptBin string
	Timeout        time.Duration
}

// Text returns the document text with one line per row of glyphs.
func (r *PDFReader) Text(ctx context.Context, file string) (string, error) {
	text, err := nativePDFText(file)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if r == nil || r.GhostscriptBin == "" {
		if err == nil {
			return text, nil
		}
		return "", err
	}

	gsText, gsErr := r.ghostscriptText(ctx, file)
	if gsErr != nil {
		if err != nil {
			return "", errors.Wrapf(gsErr, "pdf parse failed (%v)", err)
		}
		return "", gsErr
	}
	return gsText, nil
}

func nativePDFText(file string) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	f, rd, err := pdf.Open(file)
	if err != nil {
		return "", errors.Wrap(err, "open pdf")
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= rd.NumPage(); i++ {
		page := rd.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", errors.Wrapf(err, "read page %d", i)
		}
		for _, row := range rows {
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (r *PDFReader) ghostscriptText(ctx context.Context, file string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-q", "-dNOPAUSE", "-dBATCH", "-dSAFER", "-sDEVICE=txtwrite", "-sOutputFile=-", file}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.GhostscriptBin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Errorf("%s %s\n%s", r.GhostscriptBin, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// PDFToOutline extracts a PDF's text and groups it into slides.
func PDFToOutline(ctx context.Context, reader *PDFReader, file string, maxSlides int) ([]Slide, error) {
	text, err := reader.Text(ctx, file)
	if err != nil {
		return nil, err
	}
	return TextToOutline(text, maxSlides), nil
}

// DocxText returns the raw text of word/document.xml with paragraphs
// separated by blank lines.
func DocxText(file string) (string, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return "", errors.Wrap(err, "open docx")
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", errors.Wrap(err, "open word/document.xml")
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inT    bool
		inTabs bool
		para   strings.Builder
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "parse word/document.xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inT = true
			case "tabs":
				inTabs = true
			case "tab":
				if !inTabs {
					para.WriteByte('\t')
				}
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "tabs":
				inTabs = false
			case "p":
				b.WriteString(para.String())
				b.WriteString("\n\n")
				para.Reset()
			}
		case xml.CharData:
			if inT {
				para.Write(t)
			}
		}
	}
	b.WriteString(para.String())
	return b.String(), nil
}

// DocxToOutline groups a Word document's text into slides.
func DocxToOutline(file string, maxSlides int) ([]Slide, error) {
	text, err := DocxText(file)
	if err != nil {
		return nil, err
	}
	return TextToOutline(text, maxSlides), nil
}

// PptxToOutline reads text shapes slide by slide. The first non-empty shape's
// first line is the title; remaining lines of later shapes become bullets.
func PptxToOutline(file string, maxSlides int) ([]Slide, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, errors.Wrap(err, "open pptx")
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	order, err := slideOrder(files)
	if err != nil {
		return nil, err
	}

	outline := []Slide{}
	for _, name := range order {
		shapes, err := slideShapes(files[name])
		if err != nil {
			return nil, errors.Wrapf(err, "slide %s", path.Base(name))
		}

		var (
			title   string
			bullets []string
		)
		for _, txt := range shapes {
			txt = strings.TrimSpace(txt)
			if txt == "" {
				continue
			}
			if title == "" {
				first, _, _ := strings.Cut(txt, "\n")
				title = truncate(first, maxTitleRunes)
				continue
			}
			for _, line := range strings.Split(txt, "\n") {
				line = strings.TrimSpace(line)
				if line != "" && line != title {
					bullets = append(bullets, line)
				}
			}
		}

		if title != "" || len(bullets) > 0 {
			if title == "" {
				title = "Slide"
			}
			if len(bullets) > 8 {
				bullets = bullets[:8]
			}
			if bullets == nil {
				bullets = []string{}
			}
			outline = append(outline, Slide{Title: title, Bullets: bullets})
		}
		if len(outline) >= maxSlides {
			break
		}
	}
	return outline, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder lists slide part names in presentation order, following
// p:sldIdLst through the presentation relationships. Decks without a
// presentation part fall back to numeric file order.
func slideOrder(files map[string]*zip.File) ([]string, error) {
	pres, ok := files["ppt/presentation.xml"]
	if !ok {
		return numericSlideOrder(files), nil
	}

	var doc presentationXML
	if err := decodeXMLPart(pres, &doc); err != nil {
		return nil, errors.Wrap(err, "read presentation.xml")
	}

	targets := map[string]string{}
	if relsFile, ok := files["ppt/_rels/presentation.xml.rels"]; ok {
		var rels relationshipsXML
		if err := decodeXMLPart(relsFile, &rels); err != nil {
			return nil, errors.Wrap(err, "read presentation.xml.rels")
		}
		for _, r := range rels.Rels {
			targets[r.ID] = resolvePartName("ppt", r.Target)
		}
	}

	order := make([]string, 0, len(doc.SlideIDs))
	for _, id := range doc.SlideIDs {
		name, ok := targets[id.RID]
		if !ok {
			continue
		}
		if _, ok := files[name]; ok {
			order = append(order, name)
		}
	}
	return order, nil
}

func numericSlideOrder(files map[string]*zip.File) []string {
	byNumber := map[int]string{}
	numbers := []int{}
	for name := range files {
		if n, ok := slideNumber(name); ok {
			byNumber[n] = name
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	order := make([]string, 0, len(numbers))
	for _, n := range numbers {
		order = append(order, byNumber[n])
	}
	return order
}

// resolvePartName turns a relationship target into a zip entry name.
func resolvePartName(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Join(base, target)
}

func decodeXMLPart(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

func slideNumber(name string) (int, bool) {
	dir, base := path.Split(name)
	if dir != "ppt/slides/" || !strings.HasPrefix(base, "slide") || !strings.HasSuffix(base, ".xml") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// slideShapes returns the text of each p:sp shape, paragraphs joined by newlines.
func slideShapes(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		shapes  []string
		depth   int
		inText  bool
		paras   []string
		current strings.Builder
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				if depth == 0 {
					paras = nil
				}
				depth++
			case "t":
				inText = depth > 0
			case "br":
				if depth > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if depth > 0 {
					paras = append(paras, current.String())
					current.Reset()
				}
			case "sp":
				depth--
				if depth == 0 {
					shapes = append(shapes, strings.Join(paras, "\n"))
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return shapes, nil
}
