// Package metrics exposes Prometheus collectors for the ratings service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scrapePagesTotal       prometheus.Counter
	scrapeRecordsTotal     *prometheus.CounterVec
	scrapeItemsDiscarded   prometheus.Counter
	scrapeRunsTotal        *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		scrapePagesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "esrb_scrape_pages_total",
			Help: "Total number of registry search pages fetched.",
		})

		scrapeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esrb_scrape_records_total",
				Help: "Total number of records processed, labeled by disposition.",
			},
			[]string{"disposition"}, // added | skipped
		)

		scrapeItemsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
			Name: "esrb_scrape_items_discarded_total",
			Help: "Total number of unparseable item fragments discarded.",
		})

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esrb_scrape_runs_total",
				Help: "Total number of scrape runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObservePageFetched increments the fetched-page counter.
func ObservePageFetched() {
	if scrapePagesTotal != nil {
		scrapePagesTotal.Inc()
	}
}

// ObserveRecordAdded increments the added-record counter.
func ObserveRecordAdded() {
	if scrapeRecordsTotal != nil {
		scrapeRecordsTotal.WithLabelValues("added").Inc()
	}
}

// ObserveRecordSkipped increments the skipped-record counter.
func ObserveRecordSkipped() {
	if scrapeRecordsTotal != nil {
		scrapeRecordsTotal.WithLabelValues("skipped").Inc()
	}
}

// ObserveItemDiscarded increments the unparseable-item counter.
func ObserveItemDiscarded() {
	if scrapeItemsDiscarded != nil {
		scrapeItemsDiscarded.Inc()
	}
}

// ObserveRunFinished increments the run counter for the given outcome.
func ObserveRunFinished(outcome string) {
	if scrapeRunsTotal != nil {
		scrapeRunsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code string, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, code).Inc()
	}
	if httpRequestDurationSec != nil {
		httpRequestDurationSec.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}
