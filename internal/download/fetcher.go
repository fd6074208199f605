package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcus/bid-analyzer/internal/browse"
)

// Fetcher is a plain-HTTP fallback driver used when no browser is available.
// It cannot execute JavaScript or click through disclaimers; pages that need
// either surface as no_content and the caller works with what static HTML
// offers.
type Fetcher struct {
	client     *http.Client
	maxRetries int
}

func NewFetcher() *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:       30 * time.Second,
			Transport:     transport,
			CheckRedirect: safeCheckRedirect,
		},
		maxRetries: 3,
	}
}

func (f *Fetcher) Navigate(ctx context.Context, pageURL string) (*browse.PageState, error) {
	data, contentType, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	// A non-HTML response to a page navigation is the document itself.
	if !strings.Contains(contentType, "html") && !looksLikeHTML(data) {
		return &browse.PageState{
			URL: pageURL,
			Download: &browse.FileCapture{
				SuggestedName: nameFromURL(pageURL),
				Data:          data,
			},
		}, nil
	}

	html := string(data)
	state := &browse.PageState{URL: pageURL, HTML: html}
	if doc, perr := goquery.NewDocumentFromReader(strings.NewReader(html)); perr == nil {
		state.Text = strings.TrimSpace(doc.Text())
	}
	return state, nil
}

func (f *Fetcher) ClickMatch(context.Context, string, string) (*browse.PageState, error) {
	return nil, fmt.Errorf("clicking requires a browser session")
}

func (f *Fetcher) Fetch(ctx context.Context, fileURL string) ([]byte, string, error) {
	return f.get(ctx, fileURL)
}

// get retries transient failures with exponential backoff plus jitter.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff + jitter):
			}
			log.Printf("[download] retry %d for %s", attempt, rawURL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			if retryableError(err) {
				continue
			}
			return nil, "", fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			data, rerr := io.ReadAll(io.LimitReader(resp.Body, 200<<20))
			resp.Body.Close()
			if rerr != nil {
				return nil, "", fmt.Errorf("read response: %w", rerr)
			}
			return data, resp.Header.Get("Content-Type"), nil
		}

		resp.Body.Close()
		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func retryableError(err error) bool {
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// safeDialContext blocks connections that resolve into private address space.
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 100 && ip4[1]&0xC0 == 64 {
			return true
		}
	}
	return false
}

func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}
