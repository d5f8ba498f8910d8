// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal          *prometheus.CounterVec
	fetchBytesTotal     *prometheus.CounterVec
	itemsExtractedTotal *prometheus.CounterVec
	syncRunsTotal       *prometheus.CounterVec
	rowsDeletedTotal    *prometheus.CounterVec
	imagesTotal         *prometheus.CounterVec
	inflightExtractions prometheus.Gauge
	syncDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_pages_total",
				Help: "Pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		itemsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_items_extracted_total",
				Help: "Records successfully extracted, labeled by kind.",
			},
			[]string{"kind"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_sync_runs_total",
				Help: "Sync runs, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		rowsDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_rows_deleted_total",
				Help: "Stale rows deleted, labeled by reason.",
			},
			[]string{"reason"},
		)

		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menusync_images_total",
				Help: "Image cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		inflightExtractions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "menusync_inflight_extractions",
				Help: "Extraction tasks currently holding a gate slot.",
			},
		)

		syncDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menusync_sync_duration_seconds",
				Help:    "Wall time of sync runs, labeled by kind.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for metric labels.
// Returns "unknown" for unparseable URLs.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(site string, status string, bytesFetched int) {
	pagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveExtraction counts a successfully extracted record.
func ObserveExtraction(kind string) {
	itemsExtractedTotal.WithLabelValues(kind).Inc()
}

// ObserveSyncRun records the outcome and duration of a sync run.
func ObserveSyncRun(kind, status string, duration time.Duration) {
	syncRunsTotal.WithLabelValues(kind, status).Inc()
	syncDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRowsDeleted accumulates stale-row deletions.
func ObserveRowsDeleted(reason string, rows int64) {
	if rows > 0 {
		rowsDeletedTotal.WithLabelValues(reason).Add(float64(rows))
	}
}

// ObserveImage counts an image cache lookup result.
func ObserveImage(result string) {
	imagesTotal.WithLabelValues(result).Inc()
}

// IncInflightExtractions increments the in-flight extraction gauge.
func IncInflightExtractions() {
	inflightExtractions.Inc()
}

// DecInflightExtractions decrements the in-flight extraction gauge.
func DecInflightExtractions() {
	inflightExtractions.Dec()
}
