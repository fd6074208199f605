// Package extract turns downloaded documents into plain text. Each file is
// routed by type; text-based PDFs are read directly while scanned PDFs and
// images go through an ordered OCR chain. Extraction never returns an empty
// string silently: an empty outcome is an error the caller can see.
package extract

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/models"
)

// Failure reasons carried by Error.
const (
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonOCRFailed         = "ocr_failed"
	ReasonEmptyResult       = "empty_result"
)

// Extraction methods recorded on the document.
const (
	MethodPDFText     = "pdf_text"
	MethodSpreadsheet = "xlsx"
	MethodWordXML     = "docx_xml"
	MethodSlidesXML   = "pptx_xml"
	MethodHTML        = "html_markdown"
	MethodPlainText   = "text"
)

// Error is an extraction failure with a machine-readable reason.
type Error struct {
	Reason string
	File   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Reason, e.File, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Reason, e.File)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is extracted text plus the method that produced it.
type Result struct {
	Text   string
	Method string
}

// Router dispatches files to the right extractor.
type Router struct {
	cfg config.ExtractionConfig
	ocr []OCRBackend
}

// NewRouter builds a Router. OCR backends are tried in the order given;
// typically the remote high-accuracy backend first, local tesseract second.
func NewRouter(cfg config.ExtractionConfig, ocr ...OCRBackend) *Router {
	return &Router{cfg: cfg, ocr: ocr}
}

// Extract produces text for one file.
func (r *Router) Extract(ctx context.Context, path string) (*Result, error) {
	name := filepath.Base(path)
	fileType := models.FileTypeForName(name)

	var result *Result
	var err error

	switch fileType {
	case models.FileTypePDF:
		result, err = r.extractPDF(ctx, path)
	case models.FileTypeExcel:
		result, err = r.extractSpreadsheet(path)
	case models.FileTypeWord:
		result, err = r.extractWord(path)
	case models.FileTypePowerPoint:
		result, err = r.extractSlides(path)
	case models.FileTypeImage:
		result, err = r.runOCR(ctx, path)
	case models.FileTypeText:
		result, err = r.extractTextFile(path)
	default:
		return nil, &Error{Reason: ReasonUnsupportedFormat, File: name}
	}

	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, &Error{Reason: ReasonEmptyResult, File: name}
	}
	log.Printf("[extract] %s via %s (%d chars)", name, result.Method, len(result.Text))
	return result, nil
}

func (r *Router) extractTextFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".htm") || strings.HasSuffix(name, ".html") {
		text, err := htmlToText(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
		return &Result{Text: text, Method: MethodHTML}, nil
	}
	return &Result{Text: string(data), Method: MethodPlainText}, nil
}
