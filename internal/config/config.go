package config

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed pipeline.yaml
var pipelineYAML embed.FS

// Config holds pipeline tuning knobs. Endpoints and API keys come from the
// environment; everything else is declared in the embedded pipeline.yaml.
type Config struct {
	Download   DownloadConfig   `yaml:"download"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Engine     EngineConfig     `yaml:"engine"`
	Workers    WorkerConfig     `yaml:"workers"`
}

type DownloadConfig struct {
	MaxDepth          int    `yaml:"max_depth"`           // navigation recursion bound
	NavTimeoutSeconds int    `yaml:"nav_timeout_seconds"` // per-navigation timeout
	StorageBasePath   string `yaml:"storage_base_path"`
}

type ExtractionConfig struct {
	PDFSamplePages      int     `yaml:"pdf_sample_pages"`      // pages sampled for text-layer density
	PDFDensityThreshold float64 `yaml:"pdf_density_threshold"` // avg chars/page below which a PDF is treated as scanned
	OCRTimeoutSeconds   int     `yaml:"ocr_timeout_seconds"`
	OCRDPI              int     `yaml:"ocr_dpi"`
	TesseractLang       string  `yaml:"tesseract_lang"`
}

type EngineConfig struct {
	CompletenessThreshold float64  `yaml:"completeness_threshold"` // below this, a second pass runs
	ImportantFields       []string `yaml:"important_fields"`
	MaxPromptChars        int      `yaml:"max_prompt_chars"`
	TimeoutSeconds        int      `yaml:"timeout_seconds"`
}

type WorkerConfig struct {
	ExtractionParallelism int     `yaml:"extraction_parallelism"` // per-opportunity text extraction pool
	PipelineParallelism   int     `yaml:"pipeline_parallelism"`   // concurrent opportunities
	ExternalCallRPS       float64 `yaml:"external_call_rps"`      // shared AI/OCR limiter
}

// Load reads the embedded pipeline.yaml, falling back to the given path for
// local overrides.
func Load(path string) (*Config, error) {
	data, err := pipelineYAML.ReadFile("pipeline.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the embedded configuration, panicking only on a broken build.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Download.MaxDepth <= 0 {
		c.Download.MaxDepth = 4
	}
	if c.Download.NavTimeoutSeconds <= 0 {
		c.Download.NavTimeoutSeconds = 60
	}
	if c.Download.StorageBasePath == "" {
		c.Download.StorageBasePath = "data/documents"
	}
	if c.Extraction.PDFSamplePages <= 0 {
		c.Extraction.PDFSamplePages = 3
	}
	if c.Extraction.PDFDensityThreshold <= 0 {
		c.Extraction.PDFDensityThreshold = 200
	}
	if c.Extraction.OCRTimeoutSeconds <= 0 {
		c.Extraction.OCRTimeoutSeconds = 120
	}
	if c.Extraction.OCRDPI <= 0 {
		c.Extraction.OCRDPI = 300
	}
	if c.Extraction.TesseractLang == "" {
		c.Extraction.TesseractLang = "eng"
	}
	if c.Engine.CompletenessThreshold <= 0 {
		c.Engine.CompletenessThreshold = 0.80
	}
	if len(c.Engine.ImportantFields) == 0 {
		c.Engine.ImportantFields = []string{
			"product_name", "description", "manufacturer", "quantity", "unit",
			"delivery_address", "delivery_timeline", "primary_deadline",
		}
	}
	if c.Engine.MaxPromptChars <= 0 {
		c.Engine.MaxPromptChars = 180000
	}
	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = 120
	}
	if c.Workers.ExtractionParallelism <= 0 {
		c.Workers.ExtractionParallelism = 4
	}
	if c.Workers.PipelineParallelism <= 0 {
		c.Workers.PipelineParallelism = 3
	}
	if c.Workers.ExternalCallRPS <= 0 {
		c.Workers.ExternalCallRPS = 2.0
	}
}
