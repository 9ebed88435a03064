// Package resolver turns one listing page into retrievals: it scans
// candidate entries, picks one winner per logical chapter by popularity,
// and drives the item retriever for each winner.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/extract"
	"github.com/mangafold/chapterd/internal/metrics"
	"github.com/mangafold/chapterd/internal/render"
	"github.com/mangafold/chapterd/internal/retriever"
)

// ErrAttemptsExhausted is returned when a configured retry cap is reached
// while the listing still yields no entries.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// ItemRetriever is the slice of the retriever the resolver needs.
type ItemRetriever interface {
	Retrieve(ctx context.Context, itemURL string, opts retriever.Options) (int, error)
}

// Config shapes the listing-level retry loop. MaxAttempts of zero retries
// forever.
type Config struct {
	DelayStep   time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// Resolver scrapes a listing and dispatches winner entries for retrieval.
type Resolver struct {
	renderer  render.Renderer
	extractor *extract.ListingExtractor
	items     ItemRetriever
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New constructs a Resolver.
func New(renderer render.Renderer, extractor *extract.ListingExtractor, items ItemRetriever, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	return &Resolver{
		renderer:  renderer,
		extractor: extractor,
		items:     items,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// ResolveListing scrapes the listing at listingURL and retrieves one
// artifact per chapter, returning the number of new artifacts written.
// An empty scrape is a transient failure: cool down, raise the render
// delay, and try again.
func (r *Resolver) ResolveListing(ctx context.Context, listingURL string, delay time.Duration) (int, error) {
	entries, delay, err := r.scanEntries(ctx, listingURL, delay)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, group := range groupAdjacent(entries) {
		winner := selectWinner(group)
		r.logger.Info("selected winner",
			zap.String("link", winner.Link),
			zap.String("seq_id", winner.SeqID),
			zap.Int("popularity", winner.Popularity),
			zap.Int("candidates", len(group)))

		container, err := r.extractor.Container(winner.Link)
		if err != nil {
			r.logger.Warn("skipping entry with unparsable link", zap.Error(err))
			continue
		}

		name := container + "_" + extract.SeqPrefix(winner.SeqID) + "_" + extract.Slug(winner.Title)
		n, err := r.items.Retrieve(ctx, winner.Link, retriever.Options{
			Delay:   delay,
			OutDir:  container,
			OutName: name,
		})
		if err != nil {
			return total, fmt.Errorf("retrieve %s: %w", winner.Link, err)
		}
		total += n
	}
	return total, nil
}

// scanEntries renders the listing and extracts rows, retrying transient
// failures with the same escalating-delay discipline the retriever uses.
// It returns the delay it ended on so retrievals start from there.
func (r *Resolver) scanEntries(ctx context.Context, listingURL string, delay time.Duration) ([]extract.Entry, time.Duration, error) {
	for attempt := 1; ; attempt++ {
		r.logger.Info("scraping listing", zap.String("url", listingURL), zap.Duration("delay", delay))

		entries, err := r.scanOnce(ctx, listingURL, delay)
		if err == nil {
			return entries, delay, nil
		}
		if ctx.Err() != nil {
			return nil, delay, ctx.Err()
		}

		r.metrics.Retries.Inc()
		r.logger.Warn("listing scan failed, retrying",
			zap.String("url", listingURL),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if r.cfg.MaxAttempts > 0 && attempt >= r.cfg.MaxAttempts {
			return nil, delay, fmt.Errorf("%w for %s after %d attempts: %v",
				ErrAttemptsExhausted, listingURL, attempt, err)
		}
		if err := sleep(ctx, r.cfg.Cooldown); err != nil {
			return nil, delay, err
		}
		delay += r.cfg.DelayStep
	}
}

func (r *Resolver) scanOnce(ctx context.Context, listingURL string, delay time.Duration) ([]extract.Entry, error) {
	html, err := r.renderer.Render(ctx, listingURL, delay)
	if err != nil {
		r.metrics.RenderFailures.Inc()
		return nil, fmt.Errorf("render: %w", err)
	}
	r.metrics.PagesRendered.Inc()

	entries, err := r.extractor.Entries(html)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// groupAdjacent groups page-ordered entries by sequence id. Competing
// postings of the same chapter appear contiguously, so a run of equal ids
// is one group.
func groupAdjacent(entries []extract.Entry) [][]extract.Entry {
	var groups [][]extract.Entry
	for _, entry := range entries {
		if n := len(groups); n > 0 && groups[n-1][0].SeqID == entry.SeqID {
			groups[n-1] = append(groups[n-1], entry)
			continue
		}
		groups = append(groups, []extract.Entry{entry})
	}
	return groups
}

// selectWinner picks the most popular entry; the sort is stable so ties go
// to the first-seen posting.
func selectWinner(group []extract.Entry) extract.Entry {
	sorted := make([]extract.Entry, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Popularity > sorted[j].Popularity
	})
	return sorted[0]
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
