package clin

import (
	"regexp"
	"sort"
	"strings"

	"github.com/marcus/bid-analyzer/internal/models"
)

// clinNumberRe accepts real CLIN numbers: at least three digits with an
// optional letter suffix (0001, 0001AA), or one to two digits with two or
// more letters (1AA). Short digit-letter pairs like 45B are base item
// references, not CLINs.
var clinNumberRe = regexp.MustCompile(`^(\d{3,}[A-Z]*|\d{1,2}[A-Z]{2,})$`)

func normalizeCLINNumber(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func validCLINNumber(s string) bool {
	return clinNumberRe.MatchString(normalizeCLINNumber(s))
}

// dedupeCLINs merges entries whose normalized clin_number collides. Earlier
// entries win; later duplicates only fill fields still empty. Entries whose
// number is not a plausible CLIN ("TBD", lone digits) are dropped.
func dedupeCLINs(clins []models.CLIN) []models.CLIN {
	var out []models.CLIN
	index := make(map[string]int)

	for _, c := range clins {
		key := normalizeCLINNumber(c.CLINNumber)
		if !clinNumberRe.MatchString(key) {
			continue
		}
		c.CLINNumber = key

		at, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, c)
			continue
		}
		merged := mergeCLIN(out[at], c)
		out[at] = merged
	}
	return out
}

// mergeCLIN fills empty fields of dst from src without overwriting anything
// already populated.
func mergeCLIN(dst, src models.CLIN) models.CLIN {
	fill := func(d *string, s string) {
		if *d == "" && s != "" {
			*d = s
		}
	}
	fill(&dst.BaseItemNumber, src.BaseItemNumber)
	fill(&dst.ProductName, src.ProductName)
	fill(&dst.Description, src.Description)
	fill(&dst.Manufacturer, src.Manufacturer)
	fill(&dst.PartNumber, src.PartNumber)
	fill(&dst.ModelNumber, src.ModelNumber)
	fill(&dst.DrawingNumber, src.DrawingNumber)
	fill(&dst.Unit, src.Unit)
	fill(&dst.ContractType, src.ContractType)
	fill(&dst.ScopeOfWork, src.ScopeOfWork)
	fill(&dst.ServiceReqs, src.ServiceReqs)
	fill(&dst.SourceDocument, src.SourceDocument)
	if dst.Quantity == nil {
		dst.Quantity = src.Quantity
	}
	if dst.ExtendedPrice == nil {
		dst.ExtendedPrice = src.ExtendedPrice
	}

	fill(&dst.Delivery.FacilityName, src.Delivery.FacilityName)
	fill(&dst.Delivery.StreetAddress, src.Delivery.StreetAddress)
	fill(&dst.Delivery.City, src.Delivery.City)
	fill(&dst.Delivery.State, src.Delivery.State)
	fill(&dst.Delivery.ZipCode, src.Delivery.ZipCode)
	fill(&dst.Delivery.Country, src.Delivery.Country)
	fill(&dst.Delivery.FOBTerms, src.Delivery.FOBTerms)
	fill(&dst.Delivery.Timeline, src.Delivery.Timeline)
	if len(dst.Delivery.SpecialInstructions) == 0 {
		dst.Delivery.SpecialInstructions = src.Delivery.SpecialInstructions
	}
	return dst
}

// dedupeDeadlines merges deadlines sharing (type, date). Earlier entries win
// field by field. Afterwards exactly one deadline is primary: the earliest
// dated submission deadline, if any.
func dedupeDeadlines(deadlines []models.Deadline) []models.Deadline {
	var out []models.Deadline
	index := make(map[string]int)

	for _, d := range deadlines {
		key := d.Type + "|"
		if d.DueDate != nil {
			key += d.DueDate.Format("2006-01-02")
		}

		at, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, d)
			continue
		}
		kept := out[at]
		if kept.DueTime == "" {
			kept.DueTime = d.DueTime
		}
		if kept.Timezone == "" {
			kept.Timezone = d.Timezone
		}
		if kept.Description == "" {
			kept.Description = d.Description
		}
		out[at] = kept
	}

	electPrimary(out)
	return out
}

func electPrimary(deadlines []models.Deadline) {
	primary := -1
	for i := range deadlines {
		deadlines[i].IsPrimary = false
		d := &deadlines[i]
		if d.Type != models.DeadlineSubmission || d.DueDate == nil {
			continue
		}
		if primary == -1 || d.DueDate.Before(*deadlines[primary].DueDate) {
			primary = i
		}
	}
	if primary >= 0 {
		deadlines[primary].IsPrimary = true
	}
}

// sortDeadlines orders deadlines chronologically for stable output; undated
// entries go last.
func sortDeadlines(deadlines []models.Deadline) {
	sort.SliceStable(deadlines, func(i, j int) bool {
		di, dj := deadlines[i].DueDate, deadlines[j].DueDate
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return di.Before(*dj)
	})
}
