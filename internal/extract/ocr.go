package extract

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// OCRBackend recognises text in a PDF or image file.
type OCRBackend interface {
	Name() string
	Recognize(ctx context.Context, path string) (string, error)
}

// runOCR tries each backend in order and keeps the first non-empty result.
func (r *Router) runOCR(ctx context.Context, path string) (*Result, error) {
	if len(r.ocr) == 0 {
		return nil, &Error{Reason: ReasonOCRFailed, File: filepath.Base(path), Err: fmt.Errorf("no OCR backends configured")}
	}

	var lastErr error
	for _, backend := range r.ocr {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := backend.Recognize(ctx, path)
		if err != nil {
			log.Printf("[extract] ocr %s failed on %s: %v", backend.Name(), filepath.Base(path), err)
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) == "" {
			lastErr = fmt.Errorf("%s returned no text", backend.Name())
			continue
		}
		return &Result{Text: text, Method: "ocr_" + backend.Name()}, nil
	}
	return nil, &Error{Reason: ReasonOCRFailed, File: filepath.Base(path), Err: lastErr}
}

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// Tesseract is the local OCR backend. PDFs are rasterised with pdftoppm
// first, images go straight to tesseract.
type Tesseract struct {
	TesseractBin string // default "tesseract"
	PdftoppmBin  string // default "pdftoppm"
	Lang         string
	DPI          int
	MaxPages     int
	Runner       Runner
}

func NewTesseract(lang string, dpi int) *Tesseract {
	return &Tesseract{
		TesseractBin: "tesseract",
		PdftoppmBin:  "pdftoppm",
		Lang:         lang,
		DPI:          dpi,
		MaxPages:     50,
		Runner:       execRunner{},
	}
}

func (t *Tesseract) Name() string { return "local" }

func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return t.recognizePDF(ctx, path)
	}
	return t.recognizeImage(ctx, path)
}

func (t *Tesseract) recognizeImage(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := t.Runner.Run(ctx, t.TesseractBin, path, "stdout", "-l", t.Lang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}

func (t *Tesseract) recognizePDF(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -gray -png <in.pdf> <tmp/page>
	_, errb, err := t.Runner.Run(ctx, t.PdftoppmBin, "-r", fmt.Sprintf("%d", t.DPI), "-gray", "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w (%s)", err, strings.TrimSpace(string(errb)))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if t.MaxPages > 0 && len(matches) > t.MaxPages {
		matches = matches[:t.MaxPages]
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no pages")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := t.recognizeImage(ctx, img)
		if err != nil {
			log.Printf("[extract] ocr page %s: %v", filepath.Base(img), err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}
