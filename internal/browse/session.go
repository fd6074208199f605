// Package browse wraps a stealth Chrome session behind a small surface the
// document downloader drives: navigate, click, and fetch, with file downloads
// captured transparently.
package browse

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// PageState is the outcome of a navigation or click.
type PageState struct {
	URL      string // final URL after redirects
	HTML     string
	Text     string // rendered body text
	Download *FileCapture
}

// FileCapture holds a file the browser downloaded instead of rendering.
type FileCapture struct {
	SuggestedName string
	Data          []byte
}

// Config configures a browsing session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NavTimeout bounds each navigation, including the load wait.
	NavTimeout time.Duration

	// DownloadDir receives files Chrome downloads. Default: os.TempDir().
	DownloadDir string
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.DownloadDir == "" {
		c.DownloadDir = os.TempDir()
	}
}

// Session is a single stealth tab plus the Chrome instance behind it.
// Not safe for concurrent use; open one session per opportunity.
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// NewSession launches Chrome (or connects to a remote instance) and opens
// one stealth tab.
func NewSession(cfg Config) (*Session, error) {
	cfg.defaults()

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browse: launch: %w", err)
		}
		wsURL = u
		lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browse: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Printf("[browse] ignore cert errors failed: %v", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browse: create tab: %w", err)
	}

	return &Session{cfg: cfg, browser: b, lnch: lnch, page: page}, nil
}

// Navigate loads a URL. When the target triggers a file download instead of
// rendering, the capture is returned in PageState.Download and the HTML
// fields stay empty.
func (s *Session) Navigate(ctx context.Context, pageURL string) (*PageState, error) {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	capture := s.armDownloadCapture(navCtx)

	page := s.page.Context(navCtx)
	if err := page.Navigate(pageURL); err != nil {
		// Chrome aborts the navigation when the response is a download;
		// give the capture a moment before treating this as a failure.
		if state := awaitCapture(capture, 5*time.Second); state != nil {
			return state, nil
		}
		return nil, fmt.Errorf("browse: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		if state := awaitCapture(capture, 5*time.Second); state != nil {
			return state, nil
		}
		if navCtx.Err() != nil {
			return nil, fmt.Errorf("browse: navigate %s: %w", pageURL, navCtx.Err())
		}
		log.Printf("[browse] wait load: %v", err)
	}

	if state := awaitCapture(capture, 500*time.Millisecond); state != nil {
		return state, nil
	}
	return s.snapshot(navCtx, page)
}

// ClickMatch clicks the first element matching the CSS selector whose text
// matches the regex, then waits for the page to settle. Used for disclaimer
// and consent buttons.
func (s *Session) ClickMatch(ctx context.Context, selector, textRegex string) (*PageState, error) {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	capture := s.armDownloadCapture(navCtx)

	page := s.page.Context(navCtx)
	el, err := page.ElementR(selector, textRegex)
	if err != nil {
		return nil, fmt.Errorf("browse: element %q matching %q: %w", selector, textRegex, err)
	}
	waitNav := page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("browse: click %q: %w", selector, err)
	}
	waitNav()

	if state := awaitCapture(capture, 500*time.Millisecond); state != nil {
		return state, nil
	}
	return s.snapshot(navCtx, page)
}

// Fetch retrieves a linked asset directly, reusing the session's cookies so
// downloads behind login walls still work.
func (s *Session) Fetch(ctx context.Context, fileURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("browse: fetch %s: %w", fileURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")

	if cookies, err := s.page.Cookies([]string{fileURL}); err == nil {
		for _, c := range cookies {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	client := &http.Client{Timeout: s.cfg.NavTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("browse: fetch %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("browse: fetch %s: status %d", fileURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 200<<20))
	if err != nil {
		return nil, "", fmt.Errorf("browse: fetch %s: %w", fileURL, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Close shuts down the tab, the browser, and the launched Chrome process.
func (s *Session) Close() error {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
	return nil
}

// armDownloadCapture subscribes to download events before a navigation or
// click so a triggered download is never missed. The returned channel yields
// at most one PageState.
func (s *Session) armDownloadCapture(ctx context.Context) <-chan *PageState {
	wait := s.browser.Context(ctx).WaitDownload(s.cfg.DownloadDir)
	ch := make(chan *PageState, 1)

	go func() {
		info := wait()
		if info == nil {
			return
		}
		path := filepath.Join(s.cfg.DownloadDir, info.GUID)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[browse] read captured download: %v", err)
			return
		}
		os.Remove(path)
		ch <- &PageState{Download: &FileCapture{
			SuggestedName: info.SuggestedFilename,
			Data:          data,
		}}
	}()

	return ch
}

func awaitCapture(ch <-chan *PageState, wait time.Duration) *PageState {
	select {
	case state := <-ch:
		return state
	case <-time.After(wait):
		return nil
	}
}

func (s *Session) snapshot(ctx context.Context, page *rod.Page) (*PageState, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("browse: get HTML: %w", err)
	}

	var text string
	if res, err := page.Eval(`() => document.body ? document.body.innerText : ""`); err == nil {
		text = res.Value.Str()
	}

	finalURL := ""
	if info, err := page.Info(); err == nil {
		finalURL = info.URL
	}

	return &PageState{URL: finalURL, HTML: html, Text: text}, nil
}
