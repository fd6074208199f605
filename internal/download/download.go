// Package download walks a solicitation page with a browser session and
// brings home every attached document it can reach. The walk is a small state
// machine: each navigation either triggers a file download, lands on a
// disclaimer that must be clicked through, exposes document links to fetch,
// or exposes nothing but rendered text, which is kept as a fallback.
package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcus/bid-analyzer/internal/browse"
	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/models"
)

// Failure reasons carried by Error.
const (
	ReasonDepthExceeded     = "depth_exceeded"
	ReasonAuthRequired      = "auth_required"
	ReasonNavigationTimeout = "navigation_timeout"
	ReasonNoContent         = "no_content_found"
)

// Error is a download failure with a machine-readable reason.
type Error struct {
	Reason string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s: %v", e.Reason, e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.Reason, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// Driver is the browser surface the walker needs. *browse.Session satisfies
// it; tests use a scripted fake.
type Driver interface {
	Navigate(ctx context.Context, pageURL string) (*browse.PageState, error)
	ClickMatch(ctx context.Context, selector, textRegex string) (*browse.PageState, error)
	Fetch(ctx context.Context, fileURL string) ([]byte, string, error)
}

// SavedFile is a document written to disk.
type SavedFile struct {
	Name      string
	Path      string
	Size      int64
	FileType  string
	SourceURL string
}

// Result is everything a walk produced. PageText is kept even when files
// were saved: the rendered page often carries deadlines the attachments omit.
type Result struct {
	Files    []SavedFile
	PageText string
	FinalURL string
}

// Walker runs one download walk per opportunity.
type Walker struct {
	driver   Driver
	cfg      config.DownloadConfig
	destDir  string
	visited  map[string]bool
	result   *Result
	depthHit bool
}

func New(driver Driver, cfg config.DownloadConfig) *Walker {
	return &Walker{driver: driver, cfg: cfg}
}

// Run walks from startURL and writes documents under destDir. A non-nil
// Result comes back even on error; the caller treats the opportunity as
// failed only when no document and no page text was obtained.
func (w *Walker) Run(ctx context.Context, startURL, destDir string) (*Result, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	w.destDir = destDir
	w.visited = make(map[string]bool)
	w.result = &Result{}
	w.depthHit = false

	err := w.visit(ctx, startURL, 0)
	if err != nil && (len(w.result.Files) > 0 || strings.TrimSpace(w.result.PageText) != "") {
		// Partial success. The pipeline works with what we got.
		log.Printf("[download] walk ended early with partial results: %v", err)
		err = nil
	}
	if err == nil && len(w.result.Files) == 0 && strings.TrimSpace(w.result.PageText) == "" {
		reason := ReasonNoContent
		if w.depthHit {
			reason = ReasonDepthExceeded
		}
		err = &Error{Reason: reason, URL: startURL}
	}
	return w.result, err
}

func (w *Walker) visit(ctx context.Context, pageURL string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth >= w.cfg.MaxDepth {
		return &Error{Reason: ReasonDepthExceeded, URL: pageURL}
	}

	key := normalizeURL(pageURL)
	if w.visited[key] {
		return nil
	}
	w.visited[key] = true

	log.Printf("[download] navigate depth=%d %s", depth, pageURL)
	state, err := w.driver.Navigate(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Reason: ReasonNavigationTimeout, URL: pageURL, Err: err}
		}
		return &Error{Reason: ReasonNoContent, URL: pageURL, Err: err}
	}
	return w.process(ctx, state, depth)
}

func (w *Walker) process(ctx context.Context, state *browse.PageState, depth int) error {
	if state.Download != nil {
		_, err := w.save(state.Download.SuggestedName, state.Download.Data, state.URL)
		return err
	}

	if len(state.Text) > len(w.result.PageText) {
		w.result.PageText = state.Text
		w.result.FinalURL = state.URL
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(state.HTML))
	if err != nil {
		return fmt.Errorf("parse page %s: %w", state.URL, err)
	}

	if isAuthWall(doc) {
		return &Error{Reason: ReasonAuthRequired, URL: state.URL}
	}

	if hasDisclaimer(doc) {
		if depth+1 >= w.cfg.MaxDepth {
			return &Error{Reason: ReasonDepthExceeded, URL: state.URL}
		}
		log.Printf("[download] disclaimer detected, clicking through: %s", state.URL)
		clicked, err := w.driver.ClickMatch(ctx, "button, a, input[type=submit]", disclaimerRegex)
		if err == nil {
			return w.process(ctx, clicked, depth+1)
		}
		log.Printf("[download] disclaimer click failed: %v", err)
	}

	links := documentLinks(doc, state.URL)
	if len(links) > 0 {
		for _, link := range links {
			if err := w.fetchDocument(ctx, link); err != nil {
				log.Printf("[download] fetch %s: %v", link.URL, err)
			}
		}
		if len(w.result.Files) > 0 {
			return nil
		}
	}

	for _, next := range followLinks(doc, state.URL) {
		if err := w.visit(ctx, next, depth+1); err != nil {
			var derr *Error
			if errors.As(err, &derr) {
				if derr.Reason == ReasonAuthRequired {
					return err
				}
				if derr.Reason == ReasonDepthExceeded {
					w.depthHit = true
				}
			}
			log.Printf("[download] follow %s: %v", next, err)
		}
		if len(w.result.Files) > 0 {
			return nil
		}
	}

	return nil
}

func (w *Walker) fetchDocument(ctx context.Context, link docLink) error {
	data, contentType, err := w.driver.Fetch(ctx, link.URL)
	if err != nil {
		return err
	}

	// Anchor text is only trusted as a filename when it carries a known
	// document extension; otherwise the URL path names the file.
	name := link.Name
	if models.FileTypeForName(name) == models.FileTypeOther {
		name = nameFromURL(link.URL)
	}
	if looksLikeHTML(data) && !strings.Contains(contentType, "pdf") {
		return fmt.Errorf("got an HTML page instead of a document")
	}

	saved, err := w.save(name, data, link.URL)
	if err != nil {
		return err
	}
	if saved != nil && saved.FileType == models.FileTypeArchive {
		return w.extractArchive(saved)
	}
	return nil
}

// normalizeURL strips fragments and lowercases the host so the cycle guard
// treats trivially different URLs as the same page.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "document"
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	name := segs[len(segs)-1]
	if name == "" {
		return "document"
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}
