package download

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// disclaimerRegex matches the text of consent buttons on interstitial pages.
// Shared with the driver's text-matching click.
const disclaimerRegex = `(?i)^\s*(i\s+)?(agree|accept|acknowledge|understand|consent)\b|^\s*continue\s+to\s+site`

type docLink struct {
	Name string
	URL  string
}

// isAuthWall reports whether the page demands a login before showing content.
func isAuthWall(doc *goquery.Document) bool {
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return true
	}

	wall := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action, _ := form.Attr("action")
		action = strings.ToLower(action)
		if strings.Contains(action, "login") || strings.Contains(action, "signin") {
			wall = true
			return false
		}
		return true
	})
	return wall
}

// hasDisclaimer reports whether the page is a consent interstitial rather
// than the content itself.
func hasDisclaimer(doc *goquery.Document) bool {
	found := false
	doc.Find("button, a, input[type=submit]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(el.Text()))
		if text == "" {
			if v, ok := el.Attr("value"); ok {
				text = strings.ToLower(strings.TrimSpace(v))
			}
		}
		switch {
		case strings.HasPrefix(text, "i agree"),
			strings.HasPrefix(text, "agree"),
			strings.HasPrefix(text, "i accept"),
			strings.HasPrefix(text, "accept"),
			strings.HasPrefix(text, "i acknowledge"),
			strings.HasPrefix(text, "i understand"),
			strings.HasPrefix(text, "continue to site"):
			found = true
			return false
		}
		return true
	})
	return found
}

// documentLinks collects anchors pointing at downloadable documents, resolved
// against the page URL.
func documentLinks(doc *goquery.Document, pageURL string) []docLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]bool)
	var links []docLink

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}

		resolved := resolve(base, href)
		if resolved == "" || seen[resolved] {
			return
		}

		name := strings.TrimSpace(a.Text())
		if !isDocumentHref(resolved) && !isDownloadEndpoint(resolved) {
			return
		}

		seen[resolved] = true
		links = append(links, docLink{Name: name, URL: resolved})
	})

	return links
}

// followLinks collects same-host pages worth descending into, capped so one
// link-heavy page cannot blow up the walk.
func followLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var next []string

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := strings.ToLower(strings.TrimSpace(a.Text()))

		if !followText(text) {
			return true
		}

		resolved := resolve(base, strings.TrimSpace(href))
		if resolved == "" || seen[resolved] {
			return true
		}
		u, err := url.Parse(resolved)
		if err != nil || u.Host != base.Host {
			return true
		}

		seen[resolved] = true
		next = append(next, resolved)
		return len(next) < 3
	})

	return next
}

func followText(text string) bool {
	for _, kw := range []string{"attachment", "document", "solicitation package", "view all", "related documents"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func isDocumentHref(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	name := strings.ToLower(u.Path)
	for _, ext := range []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf", ".zip"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// isDownloadEndpoint matches attachment endpoints that hide the filename
// behind a download route.
func isDownloadEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/attachment/download/") ||
		strings.Contains(path, "/attachments/download") ||
		strings.HasSuffix(path, "/download")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
