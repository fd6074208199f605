package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/bid-analyzer/internal/config"
)

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		PDFSamplePages:      3,
		PDFDensityThreshold: 200,
		OCRTimeoutSeconds:   5,
		OCRDPI:              150,
		TesseractLang:       "eng",
	}
}

type fakeOCR struct {
	name string
	text string
	err  error
}

func (f *fakeOCR) Name() string { return f.name }
func (f *fakeOCR) Recognize(context.Context, string) (string, error) {
	return f.text, f.err
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "firmware.bin")
	if err := os.WriteFile(path, []byte{0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(testExtractionConfig())
	_, err := r.Extract(context.Background(), path)
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Reason != ReasonUnsupportedFormat {
		t.Fatalf("error = %v, want reason %q", err, ReasonUnsupportedFormat)
	}
}

func TestExtractEmptyResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.txt")
	if err := os.WriteFile(path, []byte("   \n\t\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(testExtractionConfig())
	_, err := r.Extract(context.Background(), path)
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Reason != ReasonEmptyResult {
		t.Fatalf("error = %v, want reason %q", err, ReasonEmptyResult)
	}
}

func TestExtractTextAndHTML(t *testing.T) {
	dir := t.TempDir()

	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("Deliver FOB destination."), 0o644); err != nil {
		t.Fatal(err)
	}
	htmlPath := filepath.Join(dir, "page.html")
	html := `<html><body><script>alert(1)</script><h1>Line Items</h1><p>CLIN 0001: Pump</p></body></html>`
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(testExtractionConfig())

	res, err := r.Extract(context.Background(), txtPath)
	if err != nil {
		t.Fatalf("Extract(txt) error = %v", err)
	}
	if res.Method != MethodPlainText {
		t.Errorf("method = %q, want %q", res.Method, MethodPlainText)
	}

	res, err = r.Extract(context.Background(), htmlPath)
	if err != nil {
		t.Fatalf("Extract(html) error = %v", err)
	}
	if res.Method != MethodHTML {
		t.Errorf("method = %q, want %q", res.Method, MethodHTML)
	}
	if !strings.Contains(res.Text, "CLIN 0001") {
		t.Errorf("text = %q, want the body content", res.Text)
	}
	if strings.Contains(res.Text, "alert(1)") {
		t.Error("script content survived sanitization")
	}
}

func TestLooksScanned(t *testing.T) {
	dense := strings.Repeat("The contractor shall deliver all items. ", 20)

	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"no pages", nil, true},
		{"dense text layer", []string{dense, dense, dense, ""}, false},
		{"sparse text layer", []string{"Page 1", "Page 2", "Page 3"}, true},
		{"cid artifacts", []string{"(cid:72)(cid:101)" + dense, dense, dense}, true},
		{"space heavy first page", []string{strings.Repeat("a         ", 60), dense, dense}, true},
	}

	r := NewRouter(testExtractionConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.looksScanned(tt.pages); got != tt.want {
				t.Errorf("looksScanned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunOCRChainOrder(t *testing.T) {
	remote := &fakeOCR{name: "remote", err: fmt.Errorf("quota exhausted")}
	local := &fakeOCR{name: "local", text: "Deliver 12 units to Building 3."}

	r := NewRouter(testExtractionConfig(), remote, local)
	res, err := r.runOCR(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatalf("runOCR() error = %v", err)
	}
	if res.Method != "ocr_local" {
		t.Errorf("method = %q, want ocr_local after remote failure", res.Method)
	}
	if res.Text != local.text {
		t.Errorf("text = %q", res.Text)
	}
}

func TestRunOCRRemoteWins(t *testing.T) {
	remote := &fakeOCR{name: "remote", text: "remote result"}
	local := &fakeOCR{name: "local", text: "local result"}

	r := NewRouter(testExtractionConfig(), remote, local)
	res, err := r.runOCR(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatalf("runOCR() error = %v", err)
	}
	if res.Method != "ocr_remote" || res.Text != "remote result" {
		t.Errorf("got %q via %q, want the first backend to win", res.Text, res.Method)
	}
}

func TestRunOCRAllFail(t *testing.T) {
	remote := &fakeOCR{name: "remote", err: fmt.Errorf("unreachable")}
	local := &fakeOCR{name: "local", text: "   "}

	r := NewRouter(testExtractionConfig(), remote, local)
	_, err := r.runOCR(context.Background(), "/tmp/scan.pdf")
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Reason != ReasonOCRFailed {
		t.Fatalf("error = %v, want reason %q", err, ReasonOCRFailed)
	}
}
