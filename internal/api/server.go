// Package api exposes the analysis pipeline over HTTP. Submitting an
// opportunity returns 202 immediately; processing happens in the background
// and progress is read back from the opportunity row.
package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/db"
	"github.com/marcus/bid-analyzer/internal/models"
)

// maxUploadBytes caps a single uploaded document.
const maxUploadBytes = 100 << 20

// Store is the persistence surface the handlers need. *db.Store satisfies it.
type Store interface {
	CreateOpportunity(ctx context.Context, o *models.Opportunity) error
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, params db.ListParams) ([]models.Opportunity, int, error)
	ListDocuments(ctx context.Context, opportunityID uuid.UUID) ([]models.Document, error)
	InsertDocument(ctx context.Context, d *models.Document) error
	GetCLINs(ctx context.Context, opportunityID uuid.UUID) ([]models.CLIN, error)
	GetDeadlines(ctx context.Context, opportunityID uuid.UUID) ([]models.Deadline, error)
}

// Runner processes one opportunity; *pipeline.Pipeline satisfies it.
type Runner interface {
	Process(ctx context.Context, opp *models.Opportunity) error
}

type Server struct {
	Store  Store
	Runner Runner
	Echo   *echo.Echo
	cfg    *config.Config
}

func NewServer(cfg *config.Config, store Store, runner Runner) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{Store: store, Runner: runner, Echo: e, cfg: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.POST("/opportunities", s.handleCreateOpportunity)
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.POST("/opportunities/:id/documents", s.handleUploadDocument)
	api.POST("/opportunities/:id/process", s.handleReprocess)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type createOpportunityRequest struct {
	SourceURL              string `json:"source_url"`
	Title                  string `json:"title"`
	Agency                 string `json:"agency"`
	PageText               string `json:"page_text"`
	EnableDocumentAnalysis *bool  `json:"enable_document_analysis"`
	EnableCLINExtraction   *bool  `json:"enable_clin_extraction"`
}

func (s *Server) handleCreateOpportunity(c echo.Context) error {
	var req createOpportunityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.SourceURL == "" && strings.TrimSpace(req.PageText) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_url or page_text required"})
	}
	if req.SourceURL != "" {
		if msg := validateSourceURL(req.SourceURL); msg != "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
		}
	}

	opp := &models.Opportunity{
		SourceURL:              req.SourceURL,
		Title:                  req.Title,
		Agency:                 req.Agency,
		PageText:               req.PageText,
		EnableDocumentAnalysis: boolOr(req.EnableDocumentAnalysis, true),
		EnableCLINExtraction:   boolOr(req.EnableCLINExtraction, true),
	}
	if err := s.Store.CreateOpportunity(c.Request().Context(), opp); err != nil {
		c.Logger().Errorf("create opportunity: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	s.processAsync(c.Request().Context(), opp)

	return c.JSON(http.StatusAccepted, map[string]string{
		"id":     opp.ID.String(),
		"status": opp.Status,
	})
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	limit := 20
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	opps, total, err := s.Store.ListOpportunities(c.Request().Context(), db.ListParams{
		Status: c.QueryParam("status"),
		Query:  c.QueryParam("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.Logger().Errorf("list opportunities: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"opportunities": opps,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	ctx := c.Request().Context()
	opp, err := s.Store.GetOpportunity(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		c.Logger().Errorf("get opportunity: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	docs, err := s.Store.ListDocuments(ctx, id)
	if err != nil {
		c.Logger().Errorf("list documents: %v", err)
	}
	clins, err := s.Store.GetCLINs(ctx, id)
	if err != nil {
		c.Logger().Errorf("list clins: %v", err)
	}
	deadlines, err := s.Store.GetDeadlines(ctx, id)
	if err != nil {
		c.Logger().Errorf("list deadlines: %v", err)
	}

	// Documents carry full extracted text; trim the payload down.
	for i := range docs {
		if len(docs[i].ExtractedText) > 500 {
			docs[i].ExtractedText = docs[i].ExtractedText[:500] + "..."
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"opportunity": opp,
		"documents":   docs,
		"clins":       clins,
		"deadlines":   deadlines,
	})
}

func (s *Server) handleUploadDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	ctx := c.Request().Context()
	if _, err := s.Store.GetOpportunity(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file field required"})
	}
	if fileHeader.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable upload"})
	}
	defer src.Close()

	name := filepath.Base(fileHeader.Filename)
	destDir := filepath.Join(s.cfg.Download.StorageBasePath, id.String(), "uploads")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.Logger().Errorf("create upload dir: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	destPath := filepath.Join(destDir, name)

	dst, err := os.Create(destPath)
	if err != nil {
		c.Logger().Errorf("create upload file: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	size, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes))
	dst.Close()
	if err != nil {
		os.Remove(destPath)
		c.Logger().Errorf("write upload: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	doc := &models.Document{
		OpportunityID:  id,
		Source:         models.SourceUpload,
		FileName:       name,
		FilePath:       destPath,
		FileType:       models.FileTypeForName(name),
		FileSize:       size,
		DownloadStatus: models.DownloadCompleted,
	}
	if err := s.Store.InsertDocument(ctx, doc); err != nil {
		c.Logger().Errorf("register upload: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleReprocess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	opp, err := s.Store.GetOpportunity(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if opp.Status == models.StatusProcessing {
		return c.JSON(http.StatusConflict, map[string]string{"error": "already processing"})
	}

	s.processAsync(c.Request().Context(), opp)
	return c.JSON(http.StatusAccepted, map[string]string{"id": opp.ID.String()})
}

// processAsync detaches from the HTTP request lifecycle but keeps trace
// values, with a hard ceiling on total run time.
func (s *Server) processAsync(reqCtx context.Context, opp *models.Opportunity) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), 30*time.Minute)
	go func() {
		defer cancel()
		if err := s.Runner.Process(ctx, opp); err != nil {
			log.Printf("[api] processing %s failed: %v", opp.ID, err)
		}
	}()
}

// validateSourceURL rejects malformed URLs and anything resolving into
// private address space. Returns an empty string when the URL is acceptable.
func validateSourceURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "Invalid URL scheme"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "URL host is required"
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".local") {
		return "Internal network access forbidden"
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return "Unable to resolve URL host"
	}
	for _, ip := range ips {
		if isPrivateOrSpecialIP(ip) {
			return "Internal network access forbidden"
		}
	}
	return ""
}

func isPrivateOrSpecialIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 100 && ip4[1]&0xC0 == 64 {
			return true
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}

	return false
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
