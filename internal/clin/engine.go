// Package clin turns extracted document text into structured contract line
// items and deadlines. One engine run covers all of an opportunity's texts:
// a combined prompt goes to the primary backend (fallback on any failure),
// the response survives tiered JSON recovery, and a low completeness ratio
// earns exactly one second pass restricted to the missing fields.
package clin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/marcus/bid-analyzer/internal/ai"
	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/models"
)

// Failure reasons carried by Error.
const (
	ReasonAllBackendsFailed = "all_backends_failed"
	ReasonParseFailed       = "parse_failed"
)

// Error is an extraction engine failure with a machine-readable reason.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clin %s: %v", e.Reason, e.Err)
	}
	return "clin " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// DocText is one document's extracted text.
type DocText struct {
	Name string
	Text string
}

// Result is everything one engine run produced. Passes records each pass for
// inspection.
type Result struct {
	CLINs     []models.CLIN
	Deadlines []models.Deadline
	Passes    []models.ExtractionPass
}

// Engine runs structured extraction against an ordered list of completion
// backends.
type Engine struct {
	cfg      config.EngineConfig
	backends []ai.Backend
	limiter  *rate.Limiter
}

func NewEngine(cfg config.EngineConfig, backends ...ai.Backend) *Engine {
	return &Engine{cfg: cfg, backends: backends}
}

// SetLimiter installs a shared rate limiter applied before every backend
// call. The pipeline shares one limiter across all opportunities.
func (e *Engine) SetLimiter(l *rate.Limiter) { e.limiter = l }

// Extract runs the full two-pass extraction over the opportunity's texts.
// The returned error is non-nil only when every backend failed AND nothing
// could be recovered from any source, including the regex deadline scan.
func (e *Engine) Extract(ctx context.Context, docs []DocText, pageText string) (*Result, error) {
	res := &Result{}

	usable := docs[:0:0]
	for _, d := range docs {
		if isQADocument(d.Text) {
			log.Printf("[clin] skipping Q&A document %s", d.Name)
			continue
		}
		usable = append(usable, d)
	}

	// Regex deadline scan always runs; model output wins on conflict.
	var regexDeadlines []models.Deadline
	regexDeadlines = append(regexDeadlines, scanDeadlines(pageText)...)
	for _, d := range usable {
		regexDeadlines = append(regexDeadlines, scanDeadlines(d.Text)...)
	}

	var clins []models.CLIN
	var deadlines []models.Deadline
	var backendErr error

	prompt := e.buildPrompt(usable, pageText)
	resp, backend, err := e.complete(ctx, prompt)
	if err != nil {
		backendErr = err
		res.Passes = append(res.Passes, models.ExtractionPass{
			PassNumber: 1, ParseStatus: models.ParseFailed,
		})
	} else {
		p, status := parsePayload(resp)
		clins, deadlines = convertPayload(p)
		ratio := e.completeness(clins, deadlines)
		res.Passes = append(res.Passes, models.ExtractionPass{
			PassNumber:        1,
			BackendUsed:       backend,
			ParseStatus:       status,
			CompletenessRatio: ratio,
		})

		if status != models.ParseFailed && ratio < e.cfg.CompletenessThreshold && len(clins)+len(deadlines) > 0 {
			clins, deadlines = e.secondPass(ctx, res, usable, pageText, clins, deadlines)
		}
	}

	res.CLINs = dedupeCLINs(clins)
	res.Deadlines = dedupeDeadlines(append(deadlines, regexDeadlines...))
	sortDeadlines(res.Deadlines)
	electPrimary(res.Deadlines)

	if backendErr != nil && len(res.CLINs) == 0 && len(res.Deadlines) == 0 {
		return res, &Error{Reason: ReasonAllBackendsFailed, Err: backendErr}
	}
	return res, nil
}

// secondPass asks only for the fields still missing and merges the answer
// without overwriting populated pass-1 values.
func (e *Engine) secondPass(ctx context.Context, res *Result, docs []DocText, pageText string, clins []models.CLIN, deadlines []models.Deadline) ([]models.CLIN, []models.Deadline) {
	prompt := e.buildSecondPassPrompt(docs, pageText, clins, deadlines)
	resp, backend, err := e.complete(ctx, prompt)
	if err != nil {
		log.Printf("[clin] second pass failed: %v", err)
		res.Passes = append(res.Passes, models.ExtractionPass{
			PassNumber: 2, ParseStatus: models.ParseFailed,
		})
		return clins, deadlines
	}

	p, status := parsePayload(resp)
	newCLINs, newDeadlines := convertPayload(p)

	index := make(map[string]int)
	for i, c := range clins {
		index[normalizeCLINNumber(c.CLINNumber)] = i
	}
	for _, c := range newCLINs {
		if at, ok := index[normalizeCLINNumber(c.CLINNumber)]; ok {
			clins[at] = mergeCLIN(clins[at], c)
		} else {
			clins = append(clins, c)
		}
	}
	deadlines = append(deadlines, newDeadlines...)

	res.Passes = append(res.Passes, models.ExtractionPass{
		PassNumber:        2,
		BackendUsed:       backend,
		ParseStatus:       status,
		CompletenessRatio: e.completeness(clins, deadlines),
	})
	return clins, deadlines
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", "", err
		}
	}
	return ai.Failover(ctx, e.backends, prompt)
}

// parsePayload applies the tiered JSON recovery and maps the recovery tier
// onto a parse status.
func parsePayload(resp string) (payload, string) {
	var p payload

	raw, tier, err := ai.RecoverJSON(resp)
	if err == nil {
		if uerr := json.Unmarshal(raw, &p); uerr == nil {
			if tier == ai.TierStrict {
				return p, models.ParseOK
			}
			return p, models.ParsePartial
		}
	}

	// Envelope is gone; salvage any well-formed entity objects.
	salvaged := false
	for _, obj := range ai.ExtractObjects(resp) {
		var c clinPayload
		if json.Unmarshal(obj, &c) == nil && strings.TrimSpace(c.CLINNumber) != "" {
			p.CLINs = append(p.CLINs, c)
			salvaged = true
			continue
		}
		var d deadlinePayload
		if json.Unmarshal(obj, &d) == nil && (str(d.Date) != "" || d.Type != "") {
			p.Deadlines = append(p.Deadlines, d)
			salvaged = true
		}
	}
	if salvaged {
		return p, models.ParsePartial
	}
	return payload{}, models.ParseFailed
}

func convertPayload(p payload) ([]models.CLIN, []models.Deadline) {
	var clins []models.CLIN
	for _, c := range p.CLINs {
		m := c.toModel()
		if m.CLINNumber == "" {
			continue
		}
		clins = append(clins, m)
	}

	var deadlines []models.Deadline
	for _, d := range p.Deadlines {
		if m, ok := d.toModel(); ok {
			deadlines = append(deadlines, m)
		}
	}
	return clins, deadlines
}

// completeness measures how many of the configured important fields are
// populated. CLIN-scoped fields count once per CLIN; primary_deadline counts
// once per run.
func (e *Engine) completeness(clins []models.CLIN, deadlines []models.Deadline) float64 {
	populated, total := 0, 0

	for _, field := range e.cfg.ImportantFields {
		if field == "primary_deadline" {
			total++
			for _, d := range deadlines {
				if d.Type == models.DeadlineSubmission && d.DueDate != nil {
					populated++
					break
				}
			}
			continue
		}
		for _, c := range clins {
			total++
			if clinFieldPopulated(c, field) {
				populated++
			}
		}
	}

	if total == 0 {
		return 1
	}
	return float64(populated) / float64(total)
}

func clinFieldPopulated(c models.CLIN, field string) bool {
	switch field {
	case "product_name":
		return c.ProductName != ""
	case "description":
		return c.Description != ""
	case "manufacturer":
		return c.Manufacturer != ""
	case "quantity":
		return c.Quantity != nil
	case "unit":
		return c.Unit != ""
	case "delivery_address":
		return c.Delivery.StreetAddress != "" || c.Delivery.City != "" || c.Delivery.FacilityName != ""
	case "delivery_timeline":
		return c.Delivery.Timeline != ""
	default:
		return false
	}
}

var qaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)questions?\s+(and|&)\s+answers?`),
	regexp.MustCompile(`(?i)\bq\s*&\s*a\b`),
	regexp.MustCompile(`(?i)could the government`),
	regexp.MustCompile(`(?i)government clarify`),
	regexp.MustCompile(`(?i)responses?\s+to\s+(vendor|industry|offeror)\s+questions`),
}

// isQADocument reports whether a document is a Q&A response sheet. Those
// restate line items in hypothetical language and poison extraction.
func isQADocument(text string) bool {
	head := text
	if len(head) > 500 {
		head = head[:500]
	}
	for _, re := range qaPatterns {
		if re.MatchString(head) {
			return true
		}
	}
	return false
}
