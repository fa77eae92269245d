// Package metrics Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AtomsWalked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "mp4",
		Name:      "atoms_walked_total",
		Help:      "Total container atoms visited",
	})

	FixesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "gps",
		Name:      "fixes_decoded_total",
		Help:      "Total GPS records decoded into fixes",
	})

	RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "gps",
		Name:      "records_rejected_total",
		Help:      "Total GPS records rejected",
	}, []string{"reason"})

	// stage: file (每个文件解析时一次) / merge (每次加载合并时一次)
	DuplicatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "gps",
		Name:      "duplicates_dropped_total",
		Help:      "Total fixes dropped as duplicates of their predecessor",
	}, []string{"stage"})

	// 只统计写入 sink 的批处理，不含 API 和流的预览
	FramesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "interp",
		Name:      "frames_total",
		Help:      "Frames geotagged by batch runs",
	}, []string{"result"})

	SequencesCut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "sequence",
		Name:      "sequences_total",
		Help:      "Total sequences produced by the segmenter",
	})

	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "geotag",
		Subsystem: "mp4",
		Name:      "parse_duration_seconds",
		Help:      "Duration of one video file analysis",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geotag",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Analysis cache lookups",
	}, []string{"result"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geotag",
		Subsystem: "ws",
		Name:      "active_streams",
		Help:      "Current number of frame streaming sessions",
	})
)

// Handler /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
