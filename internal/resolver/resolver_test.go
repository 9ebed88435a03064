package resolver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/archive"
	"github.com/mangafold/chapterd/internal/extract"
	"github.com/mangafold/chapterd/internal/metrics"
	"github.com/mangafold/chapterd/internal/retriever"
)

const baseURL = "https://comick.app"

func row(href, chapter, title, popularity string) string {
	return `<a class="py-3 row" href="` + href + `">x` +
		`<span class="font-semibold" title="chapter">Ch. ` + chapter + `</span>` +
		`<span class="title">` + title + `</span>x` +
		`<div class="text-sm !no-link">` + popularity + `</div>x</a>`
}

func listingHTML(rows ...string) string {
	return `<table a="1">nav</table><table a="2">filters</table><table a="3">` +
		strings.Join(rows, "") + `</table>`
}

// mapRenderer serves canned HTML per URL, replaying a per-URL sequence when
// more than one snapshot is scripted.
type mapRenderer struct {
	pages map[string][]string
	calls map[string]int
}

func newMapRenderer() *mapRenderer {
	return &mapRenderer{pages: map[string][]string{}, calls: map[string]int{}}
}

func (r *mapRenderer) add(url string, snapshots ...string) {
	r.pages[url] = append(r.pages[url], snapshots...)
}

func (r *mapRenderer) Render(_ context.Context, url string, _ time.Duration) (string, error) {
	seq, ok := r.pages[url]
	if !ok {
		return "", errors.New("unexpected render: " + url)
	}
	idx := r.calls[url]
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	r.calls[url]++
	return seq[idx], nil
}

func (r *mapRenderer) Close(context.Context) error { return nil }

type itemCall struct {
	url  string
	opts retriever.Options
}

type fakeItems struct {
	calls []itemCall
	ret   int
	err   error
}

func (f *fakeItems) Retrieve(_ context.Context, itemURL string, opts retriever.Options) (int, error) {
	f.calls = append(f.calls, itemCall{url: itemURL, opts: opts})
	return f.ret, f.err
}

func fastCfg() Config {
	return Config{DelayStep: 5 * time.Millisecond, Cooldown: time.Millisecond}
}

func newTestResolver(renderer *mapRenderer, items ItemRetriever, cfg Config) *Resolver {
	return New(renderer, extract.NewListingExtractor(baseURL, 2), items, cfg, metrics.New(), zap.NewNop())
}

func TestResolveListingPicksMostPopularPerGroup(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", listingHTML(
		row("/comic/foo/a-1-en", "1", "First", "5"),
		row("/comic/foo/b-1-en", "1", "First", "9"),
		row("/comic/foo/c-2-en", "2", "Second", "3"),
	))
	items := &fakeItems{ret: 1}
	r := newTestResolver(renderer, items, fastCfg())

	total, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items.calls, 2, "exactly one winner per group")
	require.Equal(t, baseURL+"/comic/foo/b-1-en", items.calls[0].url, "highest popularity wins")
	require.Equal(t, baseURL+"/comic/foo/c-2-en", items.calls[1].url)
}

func TestResolveListingTieBreaksToFirstSeen(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", listingHTML(
		row("/comic/foo/first-1-en", "1", "First", "5"),
		row("/comic/foo/second-1-en", "1", "First", "5"),
	))
	items := &fakeItems{ret: 1}
	r := newTestResolver(renderer, items, fastCfg())

	_, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Len(t, items.calls, 1)
	require.Equal(t, baseURL+"/comic/foo/first-1-en", items.calls[0].url)
}

func TestResolveListingDerivesNames(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", listingHTML(
		row("/comic/foo/x-12.5-en", "12.5", "Interlude: The Calm", "4"),
	))
	items := &fakeItems{ret: 1}
	r := newTestResolver(renderer, items, fastCfg())

	_, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Len(t, items.calls, 1)
	require.Equal(t, "foo", items.calls[0].opts.OutDir)
	require.Equal(t, "foo_0012-5_interlude-the-calm", items.calls[0].opts.OutName)
}

func TestResolveListingRetriesEmptyScrapes(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo",
		"<html><body>loading</body></html>",
		listingHTML(row("/comic/foo/a-1-en", "1", "First", "5")),
	)
	items := &fakeItems{ret: 1}
	r := newTestResolver(renderer, items, fastCfg())

	total, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 2, renderer.calls[baseURL+"/comic/foo"])
}

func TestResolveListingStopsAtAttemptCap(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", "<html><body>never loads</body></html>")
	cfg := fastCfg()
	cfg.MaxAttempts = 2
	r := newTestResolver(renderer, &fakeItems{}, cfg)

	_, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 2, renderer.calls[baseURL+"/comic/foo"])
}

func TestResolveListingPropagatesRetrieverErrors(t *testing.T) {
	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", listingHTML(row("/comic/foo/a-1-en", "1", "First", "5")))
	items := &fakeItems{err: errors.New("store offline")}
	r := newTestResolver(renderer, items, fastCfg())

	total, err := r.ResolveListing(context.Background(), baseURL+"/comic/foo", 0)
	require.Error(t, err)
	require.Zero(t, total)
}

type stubFetcher struct{ body []byte }

func (f *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.body, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 5))
	img.Set(0, 0, color.RGBA{B: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveListingEndToEnd(t *testing.T) {
	pageDiv := `<div class="page"><img alt="p" src="https://img.host/a/1.png" style="w"></div>`

	renderer := newMapRenderer()
	renderer.add(baseURL+"/comic/foo", listingHTML(
		row("/comic/foo/a-1-en", "1", "First", "5"),
		row("/comic/foo/b-1-en", "1", "First", "9"),
		row("/comic/foo/c-2-en", "2", "Second", "3"),
	))
	renderer.add(baseURL+"/comic/foo/b-1-en", pageDiv)
	renderer.add(baseURL+"/comic/foo/c-2-en", pageDiv)

	store := archive.NewFSStore(t.TempDir())
	m := metrics.New()
	items := retriever.New(renderer, &stubFetcher{body: testPNG(t)}, store,
		retriever.Config{DelayStep: 5 * time.Millisecond, Cooldown: time.Millisecond}, m, zap.NewNop())
	r := New(renderer, extract.NewListingExtractor(baseURL, 2), items, fastCfg(), m, zap.NewNop())
	ctx := context.Background()

	total, err := r.ResolveListing(ctx, baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	for _, artifact := range []string{
		"foo/foo_0001_first.pdf",
		"foo/foo_0002_second.pdf",
	} {
		ok, err := store.Exists(ctx, artifact)
		require.NoError(t, err)
		require.True(t, ok, "expected artifact %s", artifact)
	}

	// A second resolution finds everything cached and reports zero new work.
	total, err = r.ResolveListing(ctx, baseURL+"/comic/foo", 0)
	require.NoError(t, err)
	require.Zero(t, total)
}
