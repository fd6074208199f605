package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubRunner fakes pdftoppm and tesseract: pdftoppm "renders" numbered
// pages, tesseract "recognises" each page by name.
type stubRunner struct {
	pages    int
	calls    []string
	tessErr  error
	toppmErr error
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, name)
	switch name {
	case "pdftoppm":
		if s.toppmErr != nil {
			return nil, []byte("render failed"), s.toppmErr
		}
		prefix := args[len(args)-1]
		for i := 1; i <= s.pages; i++ {
			path := fmt.Sprintf("%s-%d.png", prefix, i)
			if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if s.tessErr != nil {
			return nil, []byte("ocr failed"), s.tessErr
		}
		return []byte("text of " + filepath.Base(args[0])), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func newStubTesseract(r *stubRunner) *Tesseract {
	t := NewTesseract("eng", 150)
	t.Runner = r
	return t
}

func TestTesseractImage(t *testing.T) {
	runner := &stubRunner{}
	tess := newStubTesseract(runner)

	text, err := tess.Recognize(context.Background(), "/tmp/scan.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "text of scan.png" {
		t.Errorf("text = %q", text)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "tesseract" {
		t.Errorf("calls = %v, want a single tesseract run", runner.calls)
	}
}

func TestTesseractPDFRasterizesPages(t *testing.T) {
	runner := &stubRunner{pages: 3}
	tess := newStubTesseract(runner)

	text, err := tess.Recognize(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got := strings.Count(text, "\f"); got != 2 {
		t.Errorf("page breaks = %d, want 2 for 3 pages", got)
	}
	for i := 1; i <= 3; i++ {
		if !strings.Contains(text, fmt.Sprintf("page-%d.png", i)) {
			t.Errorf("missing page %d in output: %q", i, text)
		}
	}
	if runner.calls[0] != "pdftoppm" {
		t.Errorf("first call = %q, want pdftoppm", runner.calls[0])
	}
}

func TestTesseractPDFRenderFailure(t *testing.T) {
	runner := &stubRunner{toppmErr: fmt.Errorf("boom")}
	tess := newStubTesseract(runner)

	if _, err := tess.Recognize(context.Background(), "/tmp/scan.pdf"); err == nil {
		t.Fatal("Recognize() accepted a failed render")
	}
}
