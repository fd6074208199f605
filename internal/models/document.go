package models

import (
	"time"

	"github.com/google/uuid"
)

// Document sources.
const (
	SourceAttachment = "attachment"
	SourceUpload     = "upload"
)

// Document file types, derived from extension at download time.
const (
	FileTypePDF        = "pdf"
	FileTypeWord       = "word"
	FileTypeExcel      = "excel"
	FileTypePowerPoint = "powerpoint"
	FileTypeImage      = "image"
	FileTypeText       = "text"
	FileTypeArchive    = "zip"
	FileTypeOther      = "other"
)

// Download statuses.
const (
	DownloadPending   = "pending"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
)

type Document struct {
	ID               uuid.UUID `json:"id"`
	OpportunityID    uuid.UUID `json:"opportunity_id"`
	Source           string    `json:"source"`
	FileName         string    `json:"file_name"`
	FilePath         string    `json:"file_path"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	SourceURL        string    `json:"source_url,omitempty"`
	DownloadStatus   string    `json:"download_status"`
	ExtractedText    string    `json:"extracted_text,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FileTypeForName maps a filename to one of the FileType constants.
func FileTypeForName(name string) string {
	lower := name
	for i := len(lower) - 1; i >= 0; i-- {
		if lower[i] == '.' {
			lower = lower[i:]
			break
		}
	}
	switch toLowerASCII(lower) {
	case ".pdf":
		return FileTypePDF
	case ".doc", ".docx", ".rtf", ".odt":
		return FileTypeWord
	case ".xls", ".xlsx", ".csv":
		return FileTypeExcel
	case ".ppt", ".pptx":
		return FileTypePowerPoint
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif":
		return FileTypeImage
	case ".txt", ".md", ".htm", ".html", ".xml":
		return FileTypeText
	case ".zip":
		return FileTypeArchive
	default:
		return FileTypeOther
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
