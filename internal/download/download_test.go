package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/bid-analyzer/internal/browse"
	"github.com/marcus/bid-analyzer/internal/config"
)

type fakeDriver struct {
	pages     map[string]*browse.PageState
	fetches   map[string][]byte
	clickPage *browse.PageState
	clicks    int
}

func (f *fakeDriver) Navigate(_ context.Context, pageURL string) (*browse.PageState, error) {
	state, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no route to %s", pageURL)
	}
	return state, nil
}

func (f *fakeDriver) ClickMatch(_ context.Context, _, _ string) (*browse.PageState, error) {
	f.clicks++
	if f.clickPage == nil {
		return nil, errors.New("nothing to click")
	}
	return f.clickPage, nil
}

func (f *fakeDriver) Fetch(_ context.Context, fileURL string) ([]byte, string, error) {
	data, ok := f.fetches[fileURL]
	if !ok {
		return nil, "", fmt.Errorf("no fetch route to %s", fileURL)
	}
	return data, "application/octet-stream", nil
}

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{MaxDepth: 4, NavTimeoutSeconds: 5}
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF")

func TestRunDirectDownload(t *testing.T) {
	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/opp/1": {
				Download: &browse.FileCapture{SuggestedName: "solicitation.pdf", Data: pdfBytes},
			},
		},
	}

	dir := t.TempDir()
	result, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/opp/1", dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(result.Files))
	}
	f := result.Files[0]
	if f.Name != "solicitation.pdf" {
		t.Errorf("name = %q, want solicitation.pdf", f.Name)
	}
	if f.FileType != "pdf" {
		t.Errorf("file type = %q, want pdf", f.FileType)
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != string(pdfBytes) {
		t.Error("saved file content mismatch")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestRunDocumentLinks(t *testing.T) {
	html := `<html><body>
		<h1>Combined Synopsis</h1>
		<table>
		<tr><td><a href="/files/sow.pdf">Statement of Work</a></td></tr>
		<tr><td><a href="/opp/42/attachment/download/pricing%20sheet.xlsx">Pricing Sheet</a></td></tr>
		<tr><td><a href="#">Share</a></td></tr>
		</table>
		</body></html>`

	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/opp/42": {
				URL:  "https://portal.example.gov/opp/42",
				HTML: html,
				Text: "Combined Synopsis",
			},
		},
		fetches: map[string][]byte{
			"https://portal.example.gov/files/sow.pdf":                                   pdfBytes,
			"https://portal.example.gov/opp/42/attachment/download/pricing%20sheet.xlsx": []byte("PK\x03\x04fakexlsx"),
		},
	}

	result, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/opp/42", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(result.Files), result.Files)
	}
	if result.PageText != "Combined Synopsis" {
		t.Errorf("page text = %q, want the rendered page kept alongside files", result.PageText)
	}
	if result.Files[1].Name != "pricing sheet.xlsx" {
		t.Errorf("decoded name = %q, want %q", result.Files[1].Name, "pricing sheet.xlsx")
	}
}

func TestRunDisclaimerClickthrough(t *testing.T) {
	disclaimer := `<html><body>
		<p>This site contains export controlled data.</p>
		<button>I Agree</button>
		</body></html>`
	content := `<html><body><a href="https://portal.example.gov/files/drawing.pdf">Drawing</a></body></html>`

	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/opp/7": {
				URL:  "https://portal.example.gov/opp/7",
				HTML: disclaimer,
			},
		},
		clickPage: &browse.PageState{
			URL:  "https://portal.example.gov/opp/7/content",
			HTML: content,
			Text: "Drawing",
		},
		fetches: map[string][]byte{
			"https://portal.example.gov/files/drawing.pdf": pdfBytes,
		},
	}

	result, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/opp/7", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if driver.clicks != 1 {
		t.Errorf("clicks = %d, want 1", driver.clicks)
	}
	if len(result.Files) != 1 || result.Files[0].Name != "drawing.pdf" {
		t.Fatalf("files = %+v, want drawing.pdf", result.Files)
	}
}

func TestRunAuthWall(t *testing.T) {
	html := `<html><body>
		<form action="/auth/login" method="post">
		<input type="text" name="user"><input type="password" name="pass">
		</form>
		</body></html>`

	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/opp/9": {URL: "https://portal.example.gov/opp/9", HTML: html},
		},
	}

	_, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/opp/9", t.TempDir())
	var derr *Error
	if !errors.As(err, &derr) || derr.Reason != ReasonAuthRequired {
		t.Fatalf("error = %v, want reason %q", err, ReasonAuthRequired)
	}
}

func TestRunCycleTerminates(t *testing.T) {
	pageA := `<html><body><a href="/b">View Attachments</a></body></html>`
	pageB := `<html><body><a href="/a">Back to attachments</a></body></html>`

	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/a": {URL: "https://portal.example.gov/a", HTML: pageA},
			"https://portal.example.gov/b": {URL: "https://portal.example.gov/b", HTML: pageB},
		},
	}

	_, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/a", t.TempDir())
	var derr *Error
	if !errors.As(err, &derr) || derr.Reason != ReasonNoContent {
		t.Fatalf("error = %v, want reason %q", err, ReasonNoContent)
	}
}

func TestRunDepthBounded(t *testing.T) {
	// A chain of ten distinct pages, each linking deeper. The walk must stop
	// at MaxDepth and report that as the terminal reason.
	pages := make(map[string]*browse.PageState)
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://portal.example.gov/d%d", i)
		pages[u] = &browse.PageState{
			URL:  u,
			HTML: fmt.Sprintf(`<html><body><a href="/d%d">View all attachments</a></body></html>`, i+1),
		}
	}

	_, err := New(&fakeDriver{pages: pages}, testConfig()).Run(context.Background(), "https://portal.example.gov/d0", t.TempDir())
	var derr *Error
	if !errors.As(err, &derr) || derr.Reason != ReasonDepthExceeded {
		t.Fatalf("error = %v, want reason %q", err, ReasonDepthExceeded)
	}
}

func TestRunPageTextFallback(t *testing.T) {
	html := `<html><body><p>Deliver 40 units to Building 3 by 2026-03-01.</p></body></html>`

	driver := &fakeDriver{
		pages: map[string]*browse.PageState{
			"https://portal.example.gov/opp/11": {
				URL:  "https://portal.example.gov/opp/11",
				HTML: html,
				Text: "Deliver 40 units to Building 3 by 2026-03-01.",
			},
		},
	}

	result, err := New(driver, testConfig()).Run(context.Background(), "https://portal.example.gov/opp/11", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v, want text-only pages to succeed", err)
	}
	if len(result.Files) != 0 {
		t.Errorf("files = %+v, want none", result.Files)
	}
	if !strings.Contains(result.PageText, "Building 3") {
		t.Errorf("page text = %q, want rendered text kept", result.PageText)
	}
}

func TestSaveRejectsBadFiles(t *testing.T) {
	w := New(&fakeDriver{}, testConfig())
	w.destDir = t.TempDir()
	w.result = &Result{}

	if _, err := w.save("empty.pdf", nil, "https://x.example/empty.pdf"); err == nil {
		t.Error("save() accepted an empty file")
	}
	if _, err := w.save("err.pdf", []byte("<!DOCTYPE html><html>Not Found</html>"), "https://x.example/err.pdf"); err == nil {
		t.Error("save() accepted an HTML error page as a PDF")
	}
	if len(w.result.Files) != 0 {
		t.Errorf("rejected files were recorded: %+v", w.result.Files)
	}
}

func TestSaveUniqueNames(t *testing.T) {
	w := New(&fakeDriver{}, testConfig())
	w.destDir = t.TempDir()
	w.result = &Result{}

	for i := 0; i < 3; i++ {
		if _, err := w.save("spec.pdf", pdfBytes, "https://x.example/spec.pdf"); err != nil {
			t.Fatalf("save() error = %v", err)
		}
	}

	want := []string{"spec.pdf", "spec_2.pdf", "spec_3.pdf"}
	for i, f := range w.result.Files {
		if f.Name != want[i] {
			t.Errorf("file %d name = %q, want %q", i, f.Name, want[i])
		}
		if _, err := os.Stat(filepath.Join(w.destDir, want[i])); err != nil {
			t.Errorf("file %s not on disk: %v", want[i], err)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sow.pdf", "sow.pdf"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{`price<list>:"v2".xlsx`, "pricelistv2.xlsx"},
		{"attachment\x00\n.pdf", "attachment.pdf"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
