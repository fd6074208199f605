package clin

import (
	"testing"
	"time"

	"github.com/marcus/bid-analyzer/internal/models"
)

func TestValidCLINNumber(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0001", true},
		{"0001AA", true},
		{"1001", true},
		{"1AA", true},
		{"45B", false},
		{"1", false},
		{"AA", false},
		{"", false},
		{" 0001 ", true},
		{"0001aa", true},
	}
	for _, tt := range tests {
		if got := validCLINNumber(tt.in); got != tt.want {
			t.Errorf("validCLINNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDedupeCLINsMergesByNormalizedNumber(t *testing.T) {
	qty := 5.0
	clins := []models.CLIN{
		{CLINNumber: "0001", ProductName: "Pump"},
		{CLINNumber: " 0001 ", Manufacturer: "Acme", ProductName: "SHOULD NOT WIN"},
		{CLINNumber: "0001aa", Quantity: &qty},
		{CLINNumber: "", ProductName: "dropped"},
		{CLINNumber: "TBD", ProductName: "junk number, dropped"},
	}

	out := dedupeCLINs(clins)
	if len(out) != 2 {
		t.Fatalf("got %d CLINs, want 2: %+v", len(out), out)
	}

	first := out[0]
	if first.CLINNumber != "0001" {
		t.Errorf("number = %q", first.CLINNumber)
	}
	if first.ProductName != "Pump" {
		t.Errorf("product = %q, duplicate overwrote the first value", first.ProductName)
	}
	if first.Manufacturer != "Acme" {
		t.Errorf("manufacturer = %q, duplicate did not fill the gap", first.Manufacturer)
	}

	if out[1].CLINNumber != "0001AA" {
		t.Errorf("second number = %q, want uppercased 0001AA", out[1].CLINNumber)
	}
}

func TestDedupeDeadlinesByTypeAndDate(t *testing.T) {
	d1 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	deadlines := []models.Deadline{
		{Type: models.DeadlineSubmission, DueDate: &d1},
		{Type: models.DeadlineSubmission, DueDate: &d1, DueTime: "17:00", Timezone: "EST"},
		{Type: models.DeadlineQuestionsDue, DueDate: &d1},
	}

	out := dedupeDeadlines(deadlines)
	if len(out) != 2 {
		t.Fatalf("got %d deadlines, want 2: %+v", len(out), out)
	}
	if out[0].DueTime != "17:00" || out[0].Timezone != "EST" {
		t.Errorf("merged deadline = %+v, time and zone not filled", out[0])
	}
}

func TestElectPrimaryEarliestSubmission(t *testing.T) {
	early := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deadlines := []models.Deadline{
		{Type: models.DeadlineDelivery, DueDate: &early},
		{Type: models.DeadlineSubmission, DueDate: &late, IsPrimary: true},
		{Type: models.DeadlineSubmission, DueDate: &early},
		{Type: models.DeadlineSubmission},
	}

	electPrimary(deadlines)

	var primaries int
	for _, d := range deadlines {
		if d.IsPrimary {
			primaries++
			if d.Type != models.DeadlineSubmission || !d.DueDate.Equal(early) {
				t.Errorf("primary = %+v, want the earliest dated submission", d)
			}
		}
	}
	if primaries != 1 {
		t.Errorf("got %d primaries, want exactly 1", primaries)
	}
}

func TestElectPrimaryNoSubmission(t *testing.T) {
	d := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	deadlines := []models.Deadline{
		{Type: models.DeadlineDelivery, DueDate: &d},
		{Type: models.DeadlineOther, DueDate: &d},
	}
	electPrimary(deadlines)
	for _, dl := range deadlines {
		if dl.IsPrimary {
			t.Errorf("non-submission deadline marked primary: %+v", dl)
		}
	}
}

func TestSortDeadlinesUndatedLast(t *testing.T) {
	early := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deadlines := []models.Deadline{
		{Type: models.DeadlineOther},
		{Type: models.DeadlineSubmission, DueDate: &late},
		{Type: models.DeadlineQuestionsDue, DueDate: &early},
	}

	sortDeadlines(deadlines)

	if deadlines[0].DueDate == nil || !deadlines[0].DueDate.Equal(early) {
		t.Errorf("first = %+v, want earliest", deadlines[0])
	}
	if deadlines[2].DueDate != nil {
		t.Errorf("last = %+v, want the undated entry", deadlines[2])
	}
}
