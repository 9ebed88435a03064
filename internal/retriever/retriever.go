// Package retriever turns one item page into one cached document artifact.
// Retrieval is idempotent: artifact presence in the store is the cache, and
// transient failures are absorbed by an escalating-delay retry loop.
package retriever

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	// Page images arrive in these encodings.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/archive"
	"github.com/mangafold/chapterd/internal/extract"
	"github.com/mangafold/chapterd/internal/metrics"
	"github.com/mangafold/chapterd/internal/render"
)

// ErrAttemptsExhausted is returned when a configured retry cap is reached.
// With the default unbounded cap it is never produced.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// ImageFetcher fetches one image's raw bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Config shapes the retry loop. MaxAttempts of zero retries forever.
type Config struct {
	DelayStep   time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// Options parameterize one retrieval. OutName defaults to the OutDir
// basename joined with the chapter number derived from the URL.
type Options struct {
	Delay   time.Duration
	OutDir  string
	OutName string
}

// Retriever drives render, extraction, image fetching and composition for
// single item pages.
type Retriever struct {
	renderer render.Renderer
	fetcher  ImageFetcher
	store    archive.Store
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New constructs a Retriever.
func New(renderer render.Renderer, fetcher ImageFetcher, store archive.Store, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Retriever {
	return &Retriever{
		renderer: renderer,
		fetcher:  fetcher,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// transientError marks failures the retry loop absorbs. Cooldown requests
// the fixed wait that follows fetch and extraction failures; render errors
// escalate the delay without it.
type transientError struct {
	err      error
	cooldown bool
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Retrieve produces the artifact for itemURL exactly once. It returns 1
// when a new artifact was written and 0 when one already existed. Transient
// failures retry with the render delay raised by DelayStep each attempt;
// only context cancellation, store faults, or an exhausted attempt cap
// surface as errors.
func (r *Retriever) Retrieve(ctx context.Context, itemURL string, opts Options) (int, error) {
	outName := opts.OutName
	if outName == "" {
		outName = defaultName(opts.OutDir, itemURL)
	}
	artifact := path.Join(opts.OutDir, outName+".pdf")
	delay := opts.Delay

	for attempt := 1; ; attempt++ {
		exists, err := r.store.Exists(ctx, artifact)
		if err != nil {
			return 0, fmt.Errorf("check artifact cache: %w", err)
		}
		if exists {
			r.metrics.CacheHits.Inc()
			r.logger.Info("already cached, skipped",
				zap.String("url", itemURL),
				zap.String("artifact", artifact))
			return 0, nil
		}

		n, err := r.attempt(ctx, itemURL, artifact, delay)
		if err == nil {
			return n, nil
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			return 0, err
		}

		r.metrics.Retries.Inc()
		r.logger.Warn("attempt failed, retrying",
			zap.String("url", itemURL),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay+r.cfg.DelayStep),
			zap.Error(transient.err))

		if r.cfg.MaxAttempts > 0 && attempt >= r.cfg.MaxAttempts {
			return 0, fmt.Errorf("%w for %s after %d attempts: %v",
				ErrAttemptsExhausted, itemURL, attempt, transient.err)
		}
		if transient.cooldown {
			if err := sleep(ctx, r.cfg.Cooldown); err != nil {
				return 0, err
			}
		}
		delay += r.cfg.DelayStep
	}
}

// attempt runs one full render-fetch-compose pass. The artifact only ever
// appears through the final whole-file store write, so a failure at any
// earlier point leaves no partial artifact behind.
func (r *Retriever) attempt(ctx context.Context, itemURL, artifact string, delay time.Duration) (int, error) {
	r.logger.Info("scraping item", zap.String("url", itemURL), zap.Duration("delay", delay))
	html, err := r.renderer.Render(ctx, itemURL, delay)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.metrics.RenderFailures.Inc()
		return 0, &transientError{err: fmt.Errorf("render: %w", err)}
	}
	r.metrics.PagesRendered.Inc()

	urls := extract.ImageURLs(html)
	if len(urls) == 0 {
		// Symptomatic of a page snapshotted before its images loaded.
		return 0, &transientError{cooldown: true, err: errors.New("no images found")}
	}

	pages, err := r.fetchAll(ctx, urls)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.metrics.FetchFailures.Inc()
		return 0, &transientError{cooldown: true, err: err}
	}

	data, err := archive.ComposePDF(pages)
	if err != nil {
		return 0, &transientError{cooldown: true, err: fmt.Errorf("compose: %w", err)}
	}
	if err := r.store.Write(ctx, artifact, data); err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}

	r.metrics.ArtifactsWritten.Inc()
	r.logger.Info("saved artifact",
		zap.String("artifact", artifact),
		zap.Int("pages", len(pages)))
	return 1, nil
}

// fetchAll downloads every page image into a scoped temp directory and
// decodes each one to prove it is a usable image before composition.
func (r *Retriever) fetchAll(ctx context.Context, urls []string) ([]archive.PageImage, error) {
	tempDir, err := os.MkdirTemp("", "chapterd-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			r.logger.Warn("clean temp dir", zap.Error(rmErr))
		}
	}()

	pages := make([]archive.PageImage, 0, len(urls))
	for _, rawURL := range urls {
		name := filepath.Join(tempDir, imageBasename(rawURL))
		r.logger.Info("saving image", zap.String("url", rawURL), zap.String("file", name))

		data, err := r.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("fetch image %s: %w", rawURL, err)
		}
		if err := os.WriteFile(name, data, 0o600); err != nil {
			return nil, fmt.Errorf("write temp image %s: %w", name, err)
		}

		img, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", rawURL, err)
		}
		imgType, err := archive.ImageType(format)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", rawURL, err)
		}

		bounds := img.Bounds()
		pages = append(pages, archive.PageImage{
			Data:   data,
			Type:   imgType,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
		r.metrics.ImagesFetched.Inc()
	}
	return pages, nil
}

// defaultName mirrors the historical artifact naming: the output directory's
// basename plus the chapter number pulled from the URL.
func defaultName(outDir, itemURL string) string {
	return filepath.Base(outDir) + "-" + extract.ChapterNumber(itemURL)
}

func imageBasename(rawURL string) string {
	if i := strings.LastIndex(rawURL, "/"); i >= 0 {
		return rawURL[i+1:]
	}
	return rawURL
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
