// Package render turns a URL into its HTML after client-side rendering has
// had time to complete.
package render

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Renderer fetches a page with JavaScript enabled and returns the DOM as
// text. Implementations must wait at least delay after navigation before
// snapshotting, so dynamically loaded content has a chance to appear, and
// must surface driver failures as errors rather than crashing.
type Renderer interface {
	Render(ctx context.Context, rawURL string, delay time.Duration) (string, error)
	Close(ctx context.Context) error
}

// Backend names for Config.Backend.
const (
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
)

// Config holds renderer construction knobs shared by both backends.
type Config struct {
	Backend    string
	UserAgent  string
	NavTimeout time.Duration
	DomainQPS  float64
}

// New constructs the renderer selected by cfg.Backend.
func New(cfg Config, logger *zap.Logger) (Renderer, error) {
	switch cfg.Backend {
	case BackendChromedp:
		return NewChromedp(cfg, logger)
	case BackendRod:
		return NewRod(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown render backend %q", cfg.Backend)
	}
}
