package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Backend is a completion backend. The engine treats backends as
// interchangeable: only their call order matters.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrQuota marks quota/auth failures that must not be retried.
var ErrQuota = errors.New("quota or auth rejected")

// Failover tries each backend in order, returning the first successful
// completion along with the name of the backend that produced it.
// Transient errors get one retry; quota/auth errors are terminal per backend.
func Failover(ctx context.Context, backends []Backend, prompt string) (string, string, error) {
	var lastErr error
	for _, b := range backends {
		for attempt := 0; attempt < 2; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return "", "", ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
			resp, err := b.Complete(ctx, prompt)
			if err == nil {
				return resp, b.Name(), nil
			}
			lastErr = err
			if errors.Is(err, ErrQuota) || ctx.Err() != nil {
				break
			}
			log.Printf("[ai] %s attempt %d failed: %v", b.Name(), attempt+1, err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no backends configured")
	}
	return "", "", fmt.Errorf("all backends failed: %w", lastErr)
}
