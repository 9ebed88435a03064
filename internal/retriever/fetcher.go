package retriever

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements ImageFetcher on a Colly collector.
type CollyFetcher struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based image fetcher.
func NewCollyFetcher(userAgent string, timeout time.Duration, logger *zap.Logger) *CollyFetcher {
	base := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.IgnoreRobotsTxt(),
	)
	// Retried attempts refetch the same image URL.
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	})
	base.SetRequestTimeout(timeout)

	return &CollyFetcher{base: base, logger: logger}
}

type fetchResult struct {
	body []byte
	err  error
}

// Fetch downloads one image and returns its raw bytes.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	collector := f.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.err == nil {
			f.logger.Debug("fetched image", zap.String("url", rawURL), zap.Int("bytes", len(res.body)))
		}
		return res.body, res.err
	default:
		return nil, errors.New("image fetch produced no result")
	}
}
