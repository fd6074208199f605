package download

import (
	"context"
	"log"

	"github.com/marcus/bid-analyzer/internal/browse"
	"github.com/marcus/bid-analyzer/internal/config"
)

// Service opens a fresh browser session for every walk. Sessions are
// single-tab and not safe to share, so concurrent pipeline workers each get
// their own.
type Service struct {
	cfg     config.DownloadConfig
	browser browse.Config
}

func NewService(cfg config.DownloadConfig, browser browse.Config) *Service {
	return &Service{cfg: cfg, browser: browser}
}

func (s *Service) Run(ctx context.Context, startURL, destDir string) (*Result, error) {
	sess, err := browse.NewSession(s.browser)
	if err != nil {
		// No Chrome. Static HTML plus direct file fetches still covers
		// most portals, so fall back to plain HTTP rather than failing.
		log.Printf("[download] browser unavailable, falling back to plain HTTP: %v", err)
		return New(NewFetcher(), s.cfg).Run(ctx, startURL, destDir)
	}
	defer sess.Close()

	return New(sess, s.cfg).Run(ctx, startURL, destDir)
}
