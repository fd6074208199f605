package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/db"
	"github.com/marcus/bid-analyzer/internal/models"
)

type fakeStore struct {
	opps map[uuid.UUID]*models.Opportunity
	docs []models.Document
}

func newFakeAPIStore() *fakeStore {
	return &fakeStore{opps: make(map[uuid.UUID]*models.Opportunity)}
}

func (s *fakeStore) CreateOpportunity(_ context.Context, o *models.Opportunity) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = models.StatusPending
	}
	cp := *o
	s.opps[o.ID] = &cp
	return nil
}

func (s *fakeStore) GetOpportunity(_ context.Context, id uuid.UUID) (*models.Opportunity, error) {
	o, ok := s.opps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) ListOpportunities(_ context.Context, _ db.ListParams) ([]models.Opportunity, int, error) {
	var out []models.Opportunity
	for _, o := range s.opps {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (s *fakeStore) ListDocuments(_ context.Context, id uuid.UUID) ([]models.Document, error) {
	var out []models.Document
	for _, d := range s.docs {
		if d.OpportunityID == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertDocument(_ context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.docs = append(s.docs, *d)
	return nil
}

func (s *fakeStore) GetCLINs(_ context.Context, _ uuid.UUID) ([]models.CLIN, error) {
	return []models.CLIN{{CLINNumber: "0001", ProductName: "Widget"}}, nil
}

func (s *fakeStore) GetDeadlines(_ context.Context, _ uuid.UUID) ([]models.Deadline, error) {
	return nil, nil
}

type fakeRunner struct {
	called chan uuid.UUID
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{called: make(chan uuid.UUID, 4)}
}

func (r *fakeRunner) Process(_ context.Context, opp *models.Opportunity) error {
	r.called <- opp.ID
	return nil
}

func newTestServer() (*Server, *fakeStore, *fakeRunner) {
	store := newFakeAPIStore()
	runner := newFakeRunner()
	cfg := config.Default()
	cfg.Download.StorageBasePath = ""
	return NewServer(cfg, store, runner), store, runner
}

func TestCreateOpportunityAccepted(t *testing.T) {
	s, store, runner := newTestServer()

	body := `{"title": "Pump Solicitation", "page_text": "Quotes due March 1, 2026."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/opportunities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	id, err := uuid.Parse(resp["id"])
	if err != nil {
		t.Fatalf("id = %q", resp["id"])
	}
	if _, ok := store.opps[id]; !ok {
		t.Error("opportunity not stored")
	}

	select {
	case got := <-runner.called:
		if got != id {
			t.Errorf("runner processed %s, want %s", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Error("runner never invoked")
	}
}

func TestCreateOpportunityRequiresContent(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/opportunities", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOpportunityDetail(t *testing.T) {
	s, store, _ := newTestServer()
	opp := &models.Opportunity{Title: "Pump Solicitation", Status: models.StatusCompleted}
	store.CreateOpportunity(context.Background(), opp)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities/"+opp.ID.String(), nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Opportunity models.Opportunity `json:"opportunity"`
		CLINs       []models.CLIN      `json:"clins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Opportunity.Title != "Pump Solicitation" {
		t.Errorf("title = %q", resp.Opportunity.Title)
	}
	if len(resp.CLINs) != 1 || resp.CLINs[0].CLINNumber != "0001" {
		t.Errorf("clins = %+v", resp.CLINs)
	}
}

func TestGetOpportunityNotFound(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetOpportunityBadID(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadDocument(t *testing.T) {
	s, store, _ := newTestServer()
	s.cfg.Download.StorageBasePath = t.TempDir()

	opp := &models.Opportunity{Title: "Upload Target"}
	store.CreateOpportunity(context.Background(), opp)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "quote.pdf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("%PDF-1.4 fake"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/opportunities/"+opp.ID.String()+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(store.docs) != 1 {
		t.Fatalf("documents = %+v", store.docs)
	}
	d := store.docs[0]
	if d.Source != models.SourceUpload || d.FileType != models.FileTypePDF {
		t.Errorf("document = %+v", d)
	}
	if d.DownloadStatus != models.DownloadCompleted {
		t.Errorf("download status = %q", d.DownloadStatus)
	}
}

func TestReprocessConflictWhileProcessing(t *testing.T) {
	s, store, _ := newTestServer()
	opp := &models.Opportunity{Title: "Busy", Status: models.StatusProcessing}
	store.CreateOpportunity(context.Background(), opp)

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/opportunities/"+opp.ID.String()+"/process", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestValidateSourceURL(t *testing.T) {
	tests := []struct {
		url    string
		wantOK bool
	}{
		{"ftp://example.com/file", false},
		{"http://", false},
		{"http://localhost/opp", false},
		{"http://127.0.0.1/opp", false},
		{"http://internal.local/opp", false},
	}
	for _, tt := range tests {
		msg := validateSourceURL(tt.url)
		if ok := msg == ""; ok != tt.wantOK {
			t.Errorf("validateSourceURL(%q) = %q, want ok=%v", tt.url, msg, tt.wantOK)
		}
	}
}
