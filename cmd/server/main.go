package main

import (
	"context"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/marcus/bid-analyzer/internal/ai"
	"github.com/marcus/bid-analyzer/internal/api"
	"github.com/marcus/bid-analyzer/internal/browse"
	"github.com/marcus/bid-analyzer/internal/clin"
	"github.com/marcus/bid-analyzer/internal/config"
	"github.com/marcus/bid-analyzer/internal/db"
	"github.com/marcus/bid-analyzer/internal/download"
	"github.com/marcus/bid-analyzer/internal/extract"
	"github.com/marcus/bid-analyzer/internal/pipeline"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()
	cfg := config.Default()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	store := db.NewStore(pool)

	var backends []ai.Backend
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		backends = append(backends, ai.NewAnthropicClient(key, os.Getenv("ANTHROPIC_MODEL")))
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		backends = append(backends, ai.NewGroqClient(key, os.Getenv("GROQ_MODEL")))
	}
	if len(backends) == 0 {
		log.Print("No AI backends configured; structured extraction will rely on regex scanning only")
	}
	engine := clin.NewEngine(cfg.Engine, backends...)
	engine.SetLimiter(rate.NewLimiter(rate.Limit(cfg.Workers.ExternalCallRPS), 1))

	var ocr []extract.OCRBackend
	if key := os.Getenv("GOOGLE_VISION_API_KEY"); key != "" {
		ocr = append(ocr, extract.NewVision(key))
	}
	ocr = append(ocr, extract.NewTesseract(cfg.Extraction.TesseractLang, cfg.Extraction.OCRDPI))
	router := extract.NewRouter(cfg.Extraction, ocr...)

	downloader := download.NewService(cfg.Download, browse.Config{
		RemoteURL:  os.Getenv("CHROME_WS_URL"),
		NavTimeout: time.Duration(cfg.Download.NavTimeoutSeconds) * time.Second,
	})

	pipe := pipeline.New(cfg, store, downloader, router, engine)

	srv := api.NewServer(cfg, store, pipe)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
