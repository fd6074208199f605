// Package pipeline drives one opportunity from source URL to persisted
// structured data. Each run moves through fixed stages; the current stage is
// written to the store so the API can report progress. An opportunity fails
// only when no text of any kind was obtained; every other problem degrades
// to a partial result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marcus/bid-analyzer/internal/clin"
	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/download"
	"github.com/marcus/bid-analyzer/internal/extract"
	"github.com/marcus/bid-analyzer/internal/models"
)

// Analysis stages, written to opportunities.analysis_stage as the run
// progresses.
const (
	StageAcquirePage       = "ACQUIRE_PAGE"
	StageDownloadDocuments = "DOWNLOAD_DOCUMENTS"
	StageExtractText       = "EXTRACT_TEXT"
	StageExtractStructured = "EXTRACT_STRUCTURED"
	StagePersist           = "PERSIST"
	StageDone              = "DONE"
)

// Store is the persistence surface the pipeline needs. *db.Store satisfies
// it; tests use an in-memory fake.
type Store interface {
	SetStage(ctx context.Context, id uuid.UUID, stage string) error
	SetStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error
	SetPageText(ctx context.Context, id uuid.UUID, pageText string) error
	ListDocuments(ctx context.Context, opportunityID uuid.UUID) ([]models.Document, error)
	InsertDocument(ctx context.Context, doc *models.Document) error
	SetDocumentExtraction(ctx context.Context, id uuid.UUID, text, method string) error
	ReplaceCLINs(ctx context.Context, opportunityID uuid.UUID, clins []models.CLIN) error
	ReplaceDeadlines(ctx context.Context, opportunityID uuid.UUID, deadlines []models.Deadline) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Downloader walks a source URL and saves whatever documents it reaches.
// *download.Walker satisfies it.
type Downloader interface {
	Run(ctx context.Context, startURL, destDir string) (*download.Result, error)
}

// Extractor turns one file into text. *extract.Router satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// Analyzer turns the opportunity's texts into CLINs and deadlines.
// *clin.Engine satisfies it.
type Analyzer interface {
	Extract(ctx context.Context, docs []clin.DocText, pageText string) (*clin.Result, error)
}

// Pipeline runs opportunities through the full analysis flow.
type Pipeline struct {
	cfg        *config.Config
	store      Store
	downloader Downloader
	extractor  Extractor
	analyzer   Analyzer
}

func New(cfg *config.Config, store Store, dl Downloader, ex Extractor, an Analyzer) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, downloader: dl, extractor: ex, analyzer: an}
}

// ProcessAll runs a batch of opportunities with bounded parallelism. Each
// opportunity's outcome is recorded on its own row; one failure never stops
// the batch.
func (p *Pipeline) ProcessAll(ctx context.Context, opps []models.Opportunity) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers.PipelineParallelism)

	for i := range opps {
		opp := opps[i]
		g.Go(func() error {
			if err := p.Process(ctx, &opp); err != nil {
				log.Printf("[pipeline] opportunity %s failed: %v", opp.ID, err)
			}
			return nil
		})
	}
	g.Wait()
}

// Process runs one opportunity end to end. The returned error mirrors what
// was written to the store: non-nil only when the run produced no text at
// all.
func (p *Pipeline) Process(ctx context.Context, opp *models.Opportunity) error {
	start := time.Now()
	log.Printf("[pipeline] start %s url=%s", opp.ID, opp.SourceURL)
	p.setStatus(ctx, opp.ID, models.StatusProcessing, "")

	pageText, dlErr := p.acquire(ctx, opp)

	docs, err := p.store.ListDocuments(ctx, opp.ID)
	if err != nil {
		p.setStatus(ctx, opp.ID, models.StatusFailed, err.Error())
		return fmt.Errorf("list documents: %w", err)
	}

	p.setStage(ctx, opp.ID, StageExtractText)
	texts := p.extractAll(ctx, docs)

	// The run fails only here: nothing downloadable, nothing rendered,
	// nothing uploaded.
	if len(texts) == 0 && strings.TrimSpace(pageText) == "" {
		msg := "no text could be obtained from any source"
		if dlErr != nil {
			msg = dlErr.Error()
		}
		p.setStatus(ctx, opp.ID, models.StatusFailed, msg)
		if dlErr != nil {
			return dlErr
		}
		return errors.New(msg)
	}

	var result *clin.Result
	if opp.EnableCLINExtraction {
		p.setStage(ctx, opp.ID, StageExtractStructured)
		result, err = p.analyzer.Extract(ctx, texts, pageText)
		if err != nil {
			// Structured extraction failing is a degradation, not a
			// pipeline failure; the texts are already persisted.
			log.Printf("[pipeline] structured extraction failed for %s: %v", opp.ID, err)
			result = nil
		}
	}

	p.setStage(ctx, opp.ID, StagePersist)
	if pageText != "" {
		if err := p.store.SetPageText(ctx, opp.ID, pageText); err != nil {
			log.Printf("[pipeline] save page text for %s: %v", opp.ID, err)
		}
	}
	if result != nil {
		p.persistEntities(ctx, opp.ID, result)
	}

	p.setStage(ctx, opp.ID, StageDone)
	p.setStatus(ctx, opp.ID, models.StatusCompleted, "")
	if err := p.store.MarkProcessed(ctx, opp.ID); err != nil {
		log.Printf("[pipeline] mark processed %s: %v", opp.ID, err)
	}

	log.Printf("[pipeline] done %s docs=%d texts=%d elapsed=%s",
		opp.ID, len(docs), len(texts), time.Since(start).Round(time.Millisecond))
	return nil
}

// acquire navigates the source URL and registers every downloaded file as a
// document row. Upload-only opportunities skip the walk entirely.
func (p *Pipeline) acquire(ctx context.Context, opp *models.Opportunity) (string, error) {
	if opp.SourceURL == "" || !opp.EnableDocumentAnalysis {
		return strings.TrimSpace(opp.PageText), nil
	}

	p.setStage(ctx, opp.ID, StageAcquirePage)
	destDir := filepath.Join(p.cfg.Download.StorageBasePath, opp.ID.String())

	p.setStage(ctx, opp.ID, StageDownloadDocuments)
	res, err := p.downloader.Run(ctx, opp.SourceURL, destDir)
	if err != nil {
		log.Printf("[pipeline] download walk for %s: %v", opp.ID, err)
	}
	if res == nil {
		return strings.TrimSpace(opp.PageText), err
	}

	for _, f := range res.Files {
		doc := &models.Document{
			ID:             uuid.New(),
			OpportunityID:  opp.ID,
			Source:         models.SourceAttachment,
			FileName:       f.Name,
			FilePath:       f.Path,
			FileType:       f.FileType,
			FileSize:       f.Size,
			SourceURL:      f.SourceURL,
			DownloadStatus: models.DownloadCompleted,
		}
		if ierr := p.store.InsertDocument(ctx, doc); ierr != nil {
			log.Printf("[pipeline] register document %s: %v", f.Name, ierr)
		}
	}

	pageText := strings.TrimSpace(res.PageText)
	if pageText == "" {
		pageText = strings.TrimSpace(opp.PageText)
	}
	return pageText, err
}

// extractAll runs text extraction over the documents with a bounded worker
// pool and records per-document outcomes. Documents that yield no text are
// skipped, not fatal.
func (p *Pipeline) extractAll(ctx context.Context, docs []models.Document) []clin.DocText {
	results := make([]*extract.Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers.ExtractionParallelism)

	for i := range docs {
		if docs[i].DownloadStatus != models.DownloadCompleted || docs[i].FilePath == "" {
			continue
		}
		i := i
		g.Go(func() error {
			res, err := p.extractor.Extract(gctx, docs[i].FilePath)
			if err != nil {
				log.Printf("[pipeline] extract %s: %v", docs[i].FileName, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	var texts []clin.DocText
	for i, res := range results {
		if res == nil || strings.TrimSpace(res.Text) == "" {
			continue
		}
		if err := p.store.SetDocumentExtraction(ctx, docs[i].ID, res.Text, res.Method); err != nil {
			log.Printf("[pipeline] save text for %s: %v", docs[i].FileName, err)
		}
		texts = append(texts, clin.DocText{Name: docs[i].FileName, Text: res.Text})
	}
	return texts
}

func (p *Pipeline) persistEntities(ctx context.Context, oppID uuid.UUID, result *clin.Result) {
	for i := range result.CLINs {
		result.CLINs[i].OpportunityID = oppID
	}
	for i := range result.Deadlines {
		result.Deadlines[i].OpportunityID = oppID
	}
	if err := p.store.ReplaceCLINs(ctx, oppID, result.CLINs); err != nil {
		log.Printf("[pipeline] save CLINs for %s: %v", oppID, err)
	}
	if err := p.store.ReplaceDeadlines(ctx, oppID, result.Deadlines); err != nil {
		log.Printf("[pipeline] save deadlines for %s: %v", oppID, err)
	}
	log.Printf("[pipeline] persisted %d CLINs, %d deadlines for %s",
		len(result.CLINs), len(result.Deadlines), oppID)
}

// Stage and status writes are best-effort: a missing row must not abort a
// run that can still produce results.
func (p *Pipeline) setStage(ctx context.Context, id uuid.UUID, stage string) {
	if err := p.store.SetStage(ctx, id, stage); err != nil {
		log.Printf("[pipeline] set stage %s for %s: %v", stage, id, err)
	}
}

func (p *Pipeline) setStatus(ctx context.Context, id uuid.UUID, status, errMsg string) {
	if err := p.store.SetStatus(ctx, id, status, errMsg); err != nil {
		log.Printf("[pipeline] set status %s for %s: %v", status, id, err)
	}
}
