package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcus/bid-analyzer/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filters ListOpportunities.
type ListParams struct {
	Status string // pending, processing, completed, failed, or "all"
	Query  string // matched against title and agency
	Limit  int
	Offset int
}

const opportunityCols = `id, source_url, title, agency, status, analysis_stage,
	page_text, error_message, enable_document_analysis, enable_clin_extraction,
	created_at, updated_at, processed_at`

func scanOpportunity(scan func(dest ...any) error) (models.Opportunity, error) {
	var o models.Opportunity
	err := scan(
		&o.ID, &o.SourceURL, &o.Title, &o.Agency, &o.Status, &o.AnalysisStage,
		&o.PageText, &o.ErrorMessage, &o.EnableDocumentAnalysis, &o.EnableCLINExtraction,
		&o.CreatedAt, &o.UpdatedAt, &o.ProcessedAt,
	)
	return o, err
}

func (s *Store) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = models.StatusPending
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (
			id, source_url, title, agency, status, page_text,
			enable_document_analysis, enable_clin_extraction
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, o.ID, o.SourceURL, o.Title, o.Agency, o.Status, o.PageText,
		o.EnableDocumentAnalysis, o.EnableCLINExtraction,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", opportunityCols), id)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	return &o, nil
}

// ListOpportunities returns a page of opportunities and the unpaged total.
func (s *Store) ListOpportunities(ctx context.Context, params ListParams) ([]models.Opportunity, int, error) {
	where, args := buildListFilter(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count failed: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM opportunities %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		opportunityCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration failed: %w", err)
	}
	return opps, total, nil
}

// buildListFilter assembles the WHERE clause for ListOpportunities.
func buildListFilter(params ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any

	if params.Status != "" && params.Status != "all" {
		args = append(args, params.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if params.Query != "" {
		args = append(args, params.Query)
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR agency ILIKE '%%' || $%d || '%%')", len(args), len(args))
	}
	return where, args
}

// ListPending returns opportunities awaiting processing, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE status = $1 ORDER BY created_at ASC LIMIT $2",
		opportunityCols), models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

func (s *Store) SetStage(ctx context.Context, id uuid.UUID, stage string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET analysis_stage = $1, updated_at = NOW() WHERE id = $2", stage, id)
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3",
		status, errorMessage, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (s *Store) SetPageText(ctx context.Context, id uuid.UUID, pageText string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET page_text = $1, updated_at = NOW() WHERE id = $2", pageText, id)
	if err != nil {
		return fmt.Errorf("set page text: %w", err)
	}
	return nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET processed_at = NOW(), updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *Store) InsertDocument(ctx context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (
			id, opportunity_id, source, file_name, file_path, file_type,
			file_size, source_url, download_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, d.ID, d.OpportunityID, d.Source, d.FileName, d.FilePath, d.FileType,
		d.FileSize, d.SourceURL, d.DownloadStatus,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, opportunityID uuid.UUID) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, source, file_name, file_path, file_type,
		       file_size, source_url, download_status, extracted_text,
		       extraction_method, created_at, updated_at
		FROM documents WHERE opportunity_id = $1 ORDER BY created_at ASC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.OpportunityID, &d.Source, &d.FileName, &d.FilePath, &d.FileType,
			&d.FileSize, &d.SourceURL, &d.DownloadStatus, &d.ExtractedText,
			&d.ExtractionMethod, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) SetDocumentExtraction(ctx context.Context, id uuid.UUID, text, method string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET extracted_text = $1, extraction_method = $2, updated_at = NOW()
		WHERE id = $3
	`, text, method, id)
	if err != nil {
		return fmt.Errorf("set document extraction: %w", err)
	}
	return nil
}

// ReplaceCLINs swaps the opportunity's line items for the given set in one
// transaction. Reruns of the pipeline replace, never accumulate.
func (s *Store) ReplaceCLINs(ctx context.Context, opportunityID uuid.UUID, clins []models.CLIN) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM clins WHERE opportunity_id = $1", opportunityID); err != nil {
		return fmt.Errorf("clear clins: %w", err)
	}

	for i := range clins {
		c := &clins[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.OpportunityID = opportunityID
		_, err := tx.Exec(ctx, `
			INSERT INTO clins (
				id, opportunity_id, clin_number, base_item_number, product_name,
				description, manufacturer, part_number, model_number, drawing_number,
				quantity, unit, contract_type, extended_price, scope_of_work,
				service_requirements, facility_name, street_address, city, state,
				zip_code, country, fob_terms, delivery_timeline,
				special_instructions, source_document
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
				$21, $22, $23, $24, $25, $26
			)
			ON CONFLICT (opportunity_id, clin_number) DO UPDATE SET
				product_name = EXCLUDED.product_name,
				description = EXCLUDED.description,
				updated_at = NOW()
		`, c.ID, c.OpportunityID, c.CLINNumber, c.BaseItemNumber, c.ProductName,
			c.Description, c.Manufacturer, c.PartNumber, c.ModelNumber, c.DrawingNumber,
			c.Quantity, c.Unit, c.ContractType, c.ExtendedPrice, c.ScopeOfWork,
			c.ServiceReqs, c.Delivery.FacilityName, c.Delivery.StreetAddress,
			c.Delivery.City, c.Delivery.State, c.Delivery.ZipCode, c.Delivery.Country,
			c.Delivery.FOBTerms, c.Delivery.Timeline,
			c.Delivery.SpecialInstructions, c.SourceDocument)
		if err != nil {
			return fmt.Errorf("insert clin %s: %w", c.CLINNumber, err)
		}
	}

	return tx.Commit(ctx)
}

// ReplaceDeadlines swaps the opportunity's deadlines for the given set.
func (s *Store) ReplaceDeadlines(ctx context.Context, opportunityID uuid.UUID, deadlines []models.Deadline) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM deadlines WHERE opportunity_id = $1", opportunityID); err != nil {
		return fmt.Errorf("clear deadlines: %w", err)
	}

	for i := range deadlines {
		d := &deadlines[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.OpportunityID = opportunityID
		_, err := tx.Exec(ctx, `
			INSERT INTO deadlines (
				id, opportunity_id, type, due_date, due_time, timezone,
				is_primary, description
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (opportunity_id, type, due_date) DO UPDATE SET
				due_time = EXCLUDED.due_time,
				timezone = EXCLUDED.timezone,
				is_primary = EXCLUDED.is_primary,
				description = EXCLUDED.description,
				updated_at = NOW()
		`, d.ID, d.OpportunityID, d.Type, d.DueDate, d.DueTime, d.Timezone,
			d.IsPrimary, d.Description)
		if err != nil {
			return fmt.Errorf("insert deadline %s: %w", d.Type, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetCLINs(ctx context.Context, opportunityID uuid.UUID) ([]models.CLIN, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, clin_number, base_item_number, product_name,
		       description, manufacturer, part_number, model_number, drawing_number,
		       quantity, unit, contract_type, extended_price, scope_of_work,
		       service_requirements, facility_name, street_address, city, state,
		       zip_code, country, fob_terms, delivery_timeline,
		       special_instructions, source_document, created_at, updated_at
		FROM clins WHERE opportunity_id = $1 ORDER BY clin_number ASC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list clins: %w", err)
	}
	defer rows.Close()

	var clins []models.CLIN
	for rows.Next() {
		var c models.CLIN
		if err := rows.Scan(
			&c.ID, &c.OpportunityID, &c.CLINNumber, &c.BaseItemNumber, &c.ProductName,
			&c.Description, &c.Manufacturer, &c.PartNumber, &c.ModelNumber, &c.DrawingNumber,
			&c.Quantity, &c.Unit, &c.ContractType, &c.ExtendedPrice, &c.ScopeOfWork,
			&c.ServiceReqs, &c.Delivery.FacilityName, &c.Delivery.StreetAddress,
			&c.Delivery.City, &c.Delivery.State, &c.Delivery.ZipCode, &c.Delivery.Country,
			&c.Delivery.FOBTerms, &c.Delivery.Timeline,
			&c.Delivery.SpecialInstructions, &c.SourceDocument, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan clin: %w", err)
		}
		clins = append(clins, c)
	}
	return clins, rows.Err()
}

func (s *Store) GetDeadlines(ctx context.Context, opportunityID uuid.UUID) ([]models.Deadline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, type, due_date, due_time, timezone,
		       is_primary, description, created_at, updated_at
		FROM deadlines WHERE opportunity_id = $1
		ORDER BY due_date ASC NULLS LAST, type ASC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}
	defer rows.Close()

	var deadlines []models.Deadline
	for rows.Next() {
		var d models.Deadline
		var due *time.Time
		if err := rows.Scan(
			&d.ID, &d.OpportunityID, &d.Type, &due, &d.DueTime, &d.Timezone,
			&d.IsPrimary, &d.Description, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		d.DueDate = due
		deadlines = append(deadlines, d)
	}
	return deadlines, rows.Err()
}
