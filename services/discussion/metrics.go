package discussion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decodedBoxesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_decoded_boxes_total",
		Help: "Boxes run through the decoder by kind and outcome",
	}, []string{"kind", "status"})

	threadFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_thread_fetch_duration_seconds",
		Help:    "Time to assemble the comment forest of a discussion",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	writeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_write_ops_total",
		Help: "Ledger write operations by operation and result",
	}, []string{"op", "result"})

	spamThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forum_spam_threshold",
		Help: "Current spam flag threshold",
	})
)
