package extract

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	rpdf "rsc.io/pdf"
)

// cidRe matches (cid:NNN) artifacts left behind when a PDF's fonts have no
// usable text mapping. Their presence means the text layer is garbage.
var cidRe = regexp.MustCompile(`\(cid:\d+\)`)

// extractPDF reads the text layer first and falls back to OCR when the PDF
// is scanned. The decision samples the first few pages: low character
// density, CID artifacts, or a degenerate space ratio all mean scanned.
func (r *Router) extractPDF(ctx context.Context, path string) (*Result, error) {
	if err := api.ValidateFile(path, nil); err != nil {
		log.Printf("[extract] %s failed validation, routing to OCR: %v", path, err)
		return r.runOCR(ctx, path)
	}

	pages, err := pdfPageTexts(path)
	if err != nil {
		log.Printf("[extract] %s text layer unreadable, routing to OCR: %v", path, err)
		return r.runOCR(ctx, path)
	}

	if r.looksScanned(pages) {
		log.Printf("[extract] %s looks scanned, routing to OCR", path)
		return r.runOCR(ctx, path)
	}

	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p)
		b.WriteString("\n")
	}
	text := strings.TrimSpace(cidRe.ReplaceAllString(b.String(), ""))
	if text == "" {
		return r.runOCR(ctx, path)
	}
	return &Result{Text: text, Method: MethodPDFText}, nil
}

// looksScanned applies the text-layer density heuristics to sampled pages.
func (r *Router) looksScanned(pages []string) bool {
	if len(pages) == 0 {
		return true
	}

	sample := pages
	if len(sample) > r.cfg.PDFSamplePages {
		sample = sample[:r.cfg.PDFSamplePages]
	}

	total := 0
	for _, p := range sample {
		if cidRe.MatchString(p) {
			return true
		}
		total += len(p)
	}

	avg := float64(total) / float64(len(sample))
	if avg < r.cfg.PDFDensityThreshold {
		return true
	}

	// A text layer that is mostly whitespace is a bad OCR layer baked into
	// the file; redo it properly.
	first := sample[0]
	if len(first) > 0 {
		spaces := strings.Count(first, " ")
		if float64(spaces)/float64(len(first)) > 0.5 {
			return true
		}
	}
	return false
}

// pdfPageTexts reads the text layer page by page. The parser panics on
// malformed files, so failures surface as errors instead.
func pdfPageTexts(path string) (pages []string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			pages = nil
		}
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		var builder strings.Builder
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		pages = append(pages, strings.TrimSpace(builder.String()))
	}

	return pages, nil
}
