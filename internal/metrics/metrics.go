// Package metrics exposes Prometheus collectors for the retrieval pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline counters on a private registry so parallel
// tests never fight over collector registration.
type Metrics struct {
	registry *prometheus.Registry

	PagesRendered    prometheus.Counter
	RenderFailures   prometheus.Counter
	ImagesFetched    prometheus.Counter
	FetchFailures    prometheus.Counter
	Retries          prometheus.Counter
	CacheHits        prometheus.Counter
	ArtifactsWritten prometheus.Counter
}

// New builds the counter set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_pages_rendered_total",
			Help: "Total pages successfully rendered.",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_render_failures_total",
			Help: "Total render attempts that returned an error.",
		}),
		ImagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_images_fetched_total",
			Help: "Total page images fetched and decoded.",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_fetch_failures_total",
			Help: "Total image fetch or decode failures.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_retries_total",
			Help: "Total transient-failure retries across all attempts.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_cache_hits_total",
			Help: "Total retrievals skipped because the artifact already existed.",
		}),
		ArtifactsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapterd_artifacts_written_total",
			Help: "Total new artifacts written.",
		}),
	}
}

// Registry returns the backing registry, for scraping or test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
