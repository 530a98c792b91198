package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StageRunsCounter 各阶段运行次数
	StageRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neogvm_stage_runs_total",
			Help: "Counts pipeline stage runs by outcome.",
		},
		[]string{"stage", "result"},
	)
	// StageDurationHistogram 各阶段耗时
	StageDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neogvm_stage_duration_seconds",
			Help:    "Duration of pipeline stage runs.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"stage"},
	)
	// ArtifactsWrittenCounter 写出的制品数
	ArtifactsWrittenCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neogvm_artifacts_written_total",
			Help: "Counts artifacts written by the pipeline.",
		},
		[]string{"kind"},
	)
	// IndexDocumentsCounter 写入索引的文档数
	IndexDocumentsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neogvm_index_documents_total",
			Help: "Counts vulnerability documents sent to the search index.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(StageRunsCounter)
	prometheus.MustRegister(StageDurationHistogram)
	prometheus.MustRegister(ArtifactsWrittenCounter)
	prometheus.MustRegister(IndexDocumentsCounter)
}

// ObserveStage 记录一次阶段运行
func ObserveStage(stage string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StageRunsCounter.WithLabelValues(stage, result).Inc()
	StageDurationHistogram.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
