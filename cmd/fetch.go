package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/archive"
	"github.com/mangafold/chapterd/internal/config"
	"github.com/mangafold/chapterd/internal/extract"
	"github.com/mangafold/chapterd/internal/render"
	"github.com/mangafold/chapterd/internal/resolver"
	"github.com/mangafold/chapterd/internal/retriever"
	"github.com/mangafold/chapterd/internal/target"
)

// fallbackDir receives item-mode artifacts whose URL yields no container
// name.
const fallbackDir = "chapters"

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url-or-file>",
		Short: "Retrieves one target and reports how many new artifacts were written",
		Long: `Fetches a single chapter page, a chapter listing, or a local file of
chapter URLs (one per line). The final line of output is "Total: <n>",
the number of newly created artifacts; already-cached chapters count zero.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	// Classification happens before any service construction, so a
	// malformed target never reaches the network.
	tgt, err := target.Classify(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	store, closeStore, err := buildStore(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	defer closeStore()

	renderer, err := render.New(render.Config{
		Backend:    a.cfg.Render.Backend,
		UserAgent:  a.cfg.Render.UserAgent,
		NavTimeout: a.cfg.NavTimeout(),
		DomainQPS:  a.cfg.Render.DomainQPS,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer func() {
		if cerr := renderer.Close(ctx); cerr != nil {
			a.logger.Warn("close renderer", zap.Error(cerr))
		}
	}()

	fetcher := retriever.NewCollyFetcher(a.cfg.Render.UserAgent, a.cfg.FetchTimeout(), a.logger)
	retryCfg := retriever.Config{
		DelayStep:   a.cfg.DelayStep(),
		Cooldown:    a.cfg.Cooldown(),
		MaxAttempts: a.cfg.Retry.MaxAttempts,
	}
	items := retriever.New(renderer, fetcher, store, retryCfg, a.metrics, a.logger)
	extractor := extract.NewListingExtractor(a.cfg.Listing.BaseURL, a.cfg.Listing.TableIndex)

	var total int
	switch tgt.Kind {
	case target.KindItem:
		total, err = fetchItem(ctx, items, extractor, tgt.Raw, a.cfg)
	case target.KindListing:
		res := resolver.New(renderer, extractor, items, resolver.Config{
			DelayStep:   retryCfg.DelayStep,
			Cooldown:    retryCfg.Cooldown,
			MaxAttempts: retryCfg.MaxAttempts,
		}, a.metrics, a.logger)
		total, err = res.ResolveListing(ctx, tgt.Raw, a.cfg.InitialDelay())
	case target.KindBatch:
		total, err = fetchBatch(ctx, items, tgt.Raw, a.cfg)
	}
	if err != nil {
		return err
	}

	// The supervisor requires this exact line as the worker's last stdout
	// output.
	fmt.Println("Total:", total)
	return nil
}

func fetchItem(ctx context.Context, items *retriever.Retriever, extractor *extract.ListingExtractor, itemURL string, cfg config.Config) (int, error) {
	outDir := fallbackDir
	if container, err := extractor.Container(itemURL); err == nil {
		outDir = container
	}
	return items.Retrieve(ctx, itemURL, retriever.Options{
		Delay:  cfg.InitialDelay(),
		OutDir: outDir,
	})
}

// fetchBatch retrieves every URL listed in a local file, one per line, into
// a directory named after the file's parent.
func fetchBatch(ctx context.Context, items *retriever.Retriever, path string, cfg config.Config) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open batch file: %w", err)
	}
	defer file.Close()

	outDir := filepath.Dir(path)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := items.Retrieve(ctx, line, retriever.Options{
			Delay:  cfg.InitialDelay(),
			OutDir: outDir,
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("read batch file: %w", err)
	}
	return total, nil
}

func buildStore(ctx context.Context, cfg config.Config) (archive.Store, func(), error) {
	switch cfg.Storage.Backend {
	case archive.BackendGCS:
		store, err := archive.NewGCSStore(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return archive.NewFSStore(cfg.Storage.OutputRoot), func() {}, nil
	}
}
