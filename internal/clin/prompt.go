package clin

import (
	"fmt"
	"strings"

	"github.com/marcus/bid-analyzer/internal/models"
)

const schemaInstruction = `Return ONLY a JSON object, no prose, with this shape:
{
  "clins": [
    {
      "clin_number": "0001",
      "base_item_number": null,
      "product_name": null,
      "description": null,
      "manufacturer": null,
      "part_number": null,
      "model_number": null,
      "drawing_number": null,
      "quantity": null,
      "unit": null,
      "contract_type": null,
      "extended_price": null,
      "scope_of_work": null,
      "service_requirements": null,
      "delivery": {
        "facility_name": null,
        "street_address": null,
        "city": null,
        "state": null,
        "zip_code": null,
        "country": null,
        "fob_terms": null,
        "delivery_timeline": null,
        "special_instructions": []
      },
      "source_document": null
    }
  ],
  "deadlines": [
    {"type": "submission", "date": "2026-01-31", "time": "17:00", "timezone": "EST", "description": null}
  ]
}
Rules:
- Use null for anything the documents do not state. Never invent values.
- quantity and extended_price are numbers, not strings.
- deadline type is one of: submission, questions_due, delivery, other.
- fob_terms is "destination" or "origin" when stated.
- Include every contract line item, including option and sub-line items.`

// buildPrompt assembles the combined pass-1 prompt: instruction, schema, and
// every usable text delimited by document name. Texts are trimmed from the
// end when the total exceeds the prompt budget.
func (e *Engine) buildPrompt(docs []DocText, pageText string) string {
	var b strings.Builder
	b.WriteString("You are analyzing a government solicitation. Extract all contract line items (CLINs) and all deadlines from the documents below.\n\n")
	b.WriteString(schemaInstruction)
	b.WriteString("\n\n")

	if pageText = strings.TrimSpace(pageText); pageText != "" {
		writeSection(&b, "solicitation web page", pageText)
	}
	for _, d := range docs {
		writeSection(&b, d.Name, d.Text)
	}

	return truncatePrompt(b.String(), e.cfg.MaxPromptChars)
}

// buildSecondPassPrompt restricts the request to the fields pass 1 left
// empty, per CLIN.
func (e *Engine) buildSecondPassPrompt(docs []DocText, pageText string, clins []models.CLIN, deadlines []models.Deadline) string {
	var b strings.Builder
	b.WriteString("You are analyzing a government solicitation. A first extraction pass left some fields empty. Re-read the documents and fill ONLY the fields listed below; everything else is already known.\n\n")

	for _, c := range clins {
		missing := e.missingFields(c)
		if len(missing) == 0 {
			continue
		}
		fmt.Fprintf(&b, "CLIN %s is missing: %s\n", c.CLINNumber, strings.Join(missing, ", "))
	}
	if !hasPrimaryCandidate(deadlines) && e.wantsField("primary_deadline") {
		b.WriteString("No submission deadline was found; extract it if the documents state one.\n")
	}

	b.WriteString("\n")
	b.WriteString(schemaInstruction)
	b.WriteString("\nOnly include CLINs that have at least one newly found field. Use null for fields you still cannot find.\n\n")

	if pageText = strings.TrimSpace(pageText); pageText != "" {
		writeSection(&b, "solicitation web page", pageText)
	}
	for _, d := range docs {
		writeSection(&b, d.Name, d.Text)
	}

	return truncatePrompt(b.String(), e.cfg.MaxPromptChars)
}

func (e *Engine) missingFields(c models.CLIN) []string {
	var missing []string
	for _, field := range e.cfg.ImportantFields {
		if field == "primary_deadline" {
			continue
		}
		if !clinFieldPopulated(c, field) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (e *Engine) wantsField(name string) bool {
	for _, f := range e.cfg.ImportantFields {
		if f == name {
			return true
		}
	}
	return false
}

func hasPrimaryCandidate(deadlines []models.Deadline) bool {
	for _, d := range deadlines {
		if d.Type == models.DeadlineSubmission && d.DueDate != nil {
			return true
		}
	}
	return false
}

func writeSection(b *strings.Builder, name, text string) {
	fmt.Fprintf(b, "=== DOCUMENT: %s ===\n", name)
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\n")
}

func truncatePrompt(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
