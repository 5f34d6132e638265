package erg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchPagesTotal counts search pages by outcome: items, empty, status, failed
	searchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_indexer_search_pages_total",
		Help: "Box search pages requested from the indexer by outcome",
	}, []string{"result"})

	// requestDuration tracks indexer request latency per endpoint
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_indexer_request_duration_seconds",
		Help:    "Indexer request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"endpoint"})
)
