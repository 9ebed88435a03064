package render

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Rod renders pages with the go-rod headless browser driver. It exists as an
// alternative to the chromedp backend for hosts where rod's managed browser
// download is the easier path.
type Rod struct {
	browser    *rod.Browser
	logger     *zap.Logger
	navTimeout time.Duration
}

// NewRod launches a headless browser via rod's launcher and connects to it.
func NewRod(cfg Config, logger *zap.Logger) (*Rod, error) {
	controlURL, err := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Rod{
		browser:    browser,
		logger:     logger,
		navTimeout: cfg.NavTimeout,
	}, nil
}

// Close shuts the browser down.
func (r *Rod) Close(_ context.Context) error {
	if r == nil || r.browser == nil {
		return nil
	}
	if err := r.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Render opens a page, waits for load plus the requested delay, and returns
// the document HTML.
func (r *Rod) Render(ctx context.Context, rawURL string, delay time.Duration) (string, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.logger.Warn("close page", zap.Error(cerr))
		}
	}()

	page = page.Context(ctx).Timeout(r.navTimeout + delay)
	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}

	r.logger.Debug("rendered page",
		zap.String("url", rawURL),
		zap.Duration("delay", delay),
		zap.Int("bytes", len(html)))
	return html, nil
}
