package clin

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/marcus/bid-analyzer/internal/models"
)

// dateSnippetRegexes find date tokens in free text, with optional trailing
// time and timezone.
var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+20\d{2}(,?\s+(at\s+)?\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?|AM|PM)(\s+[A-Z]{2,4}T?)?)?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+20\d{2}(,?\s+(at\s+)?\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?|AM|PM)(\s+[A-Z]{2,4}T?)?)?\b`),
}

var timeTokenRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?|AM|PM)\b`)

var tzTokenRe = regexp.MustCompile(`\b(ET|EST|EDT|CT|CST|CDT|MT|MST|MDT|PT|PST|PDT|AKST|HST|UTC|GMT|ZULU)\b`)

// scanDeadlines finds dated deadline candidates in free text and classifies
// them by the surrounding words. Runs on every opportunity regardless of what
// the model returned; the model's deadlines win on conflict.
func scanDeadlines(text string) []models.Deadline {
	var out []models.Deadline
	seen := make(map[string]bool)

	for _, expr := range dateSnippetRegexes {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			token := strings.TrimSpace(text[loc[0]:loc[1]])
			parsed, err := parseDateText(token)
			if err != nil {
				continue
			}

			start := loc[0] - 80
			if start < 0 {
				start = 0
			}
			end := loc[1] + 40
			if end > len(text) {
				end = len(text)
			}
			snippet := strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " "))

			d := models.Deadline{
				Type:        classifyDeadline(snippet),
				DueDate:     &parsed,
				Description: snippet,
			}
			if m := timeTokenRe.FindStringSubmatch(token); m != nil {
				d.DueTime = to24h(m[1], m[2], m[3])
			}
			if m := tzTokenRe.FindStringSubmatch(token); m != nil {
				d.Timezone = m[1]
			}

			key := d.Type + "|" + parsed.Format("2006-01-02")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}

func classifyDeadline(snippet string) string {
	lower := strings.ToLower(snippet)
	switch {
	case strings.Contains(lower, "question"):
		return models.DeadlineQuestionsDue
	case strings.Contains(lower, "deliver"):
		return models.DeadlineDelivery
	case strings.Contains(lower, "due"),
		strings.Contains(lower, "submission"),
		strings.Contains(lower, "submit"),
		strings.Contains(lower, "offer"),
		strings.Contains(lower, "quote"),
		strings.Contains(lower, "proposal"),
		strings.Contains(lower, "closing"),
		strings.Contains(lower, "closes"),
		strings.Contains(lower, "respond"):
		return models.DeadlineSubmission
	default:
		return models.DeadlineOther
	}
}

func to24h(hour, minute, meridiem string) string {
	h := 0
	fmt.Sscanf(hour, "%d", &h)
	if minute == "" {
		minute = "00"
	}
	lower := strings.ToLower(strings.ReplaceAll(meridiem, ".", ""))
	if lower == "pm" && h < 12 {
		h += 12
	}
	if lower == "am" && h == 12 {
		h = 0
	}
	return fmt.Sprintf("%02d:%s", h, minute)
}

// parseDateText parses a date token in the formats solicitation documents
// actually use. Time-of-day and timezone suffixes are tolerated and ignored;
// the caller captures them separately.
func parseDateText(text string) (time.Time, error) {
	text = cleanDateString(text)

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC().Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t, nil
	}

	// Strip a trailing time-and-timezone clause for date parsing.
	datePart := timeTokenRe.ReplaceAllString(text, "")
	datePart = tzTokenRe.ReplaceAllString(datePart, "")
	datePart = strings.TrimSpace(strings.Trim(strings.TrimSpace(datePart), ","))
	datePart = strings.TrimSuffix(datePart, " at")
	datePart = strings.ReplaceAll(datePart, ".", "")

	formats := []string{
		"2006-01-02",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"2 January 2006",
		"02 January 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"1/2/2006",
		"01/02/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, datePart); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

func cleanDateString(s string) string {
	prefixes := []string{
		"closing date:", "deadline:", "due date:", "due:",
		"expires:", "ends:", "no later than", "nlt",
	}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = s[idx+len(p):]
			lower = lower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
