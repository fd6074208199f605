package models

import (
	"time"

	"github.com/google/uuid"
)

// Deadline types.
const (
	DeadlineSubmission   = "submission"
	DeadlineQuestionsDue = "questions_due"
	DeadlineDelivery     = "delivery"
	DeadlineOther        = "other"
)

// Deadline is a dated milestone for an opportunity. At most one deadline per
// opportunity carries IsPrimary; the earliest submission-type deadline wins.
type Deadline struct {
	ID            uuid.UUID  `json:"id"`
	OpportunityID uuid.UUID  `json:"opportunity_id"`
	Type          string     `json:"type"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	DueTime       string     `json:"due_time,omitempty"` // e.g. "17:00"
	Timezone      string     `json:"timezone,omitempty"` // e.g. "EST"
	IsPrimary     bool       `json:"is_primary"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ExtractionPass records the outcome of one engine pass. Kept on the engine
// result for inspection; not persisted.
type ExtractionPass struct {
	PassNumber        int     `json:"pass_number"` // 1 or 2
	BackendUsed       string  `json:"backend_used"`
	ParseStatus       string  `json:"parse_status"` // ok, partial, failed
	CompletenessRatio float64 `json:"completeness_ratio"`
}

// Parse statuses for ExtractionPass.
const (
	ParseOK      = "ok"
	ParsePartial = "partial"
	ParseFailed  = "failed"
)
