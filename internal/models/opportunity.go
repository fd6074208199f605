package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity statuses. An opportunity only reaches "failed" when no text of
// any kind could be obtained; partial extraction still completes.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Opportunity struct {
	ID                     uuid.UUID  `json:"id"`
	SourceURL              string     `json:"source_url"`
	Title                  string     `json:"title"`
	Agency                 string     `json:"agency"`
	Status                 string     `json:"status"`
	AnalysisStage          string     `json:"analysis_stage"`
	PageText               string     `json:"page_text,omitempty"`
	ErrorMessage           string     `json:"error_message,omitempty"`
	EnableDocumentAnalysis bool       `json:"enable_document_analysis"`
	EnableCLINExtraction   bool       `json:"enable_clin_extraction"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	ProcessedAt            *time.Time `json:"processed_at,omitempty"`
}
