package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService 指标服务
type MetricsService struct {
	ingestCounter      *prometheus.CounterVec
	chatCounter        *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	generationDuration prometheus.Histogram
	webSearchDegraded  prometheus.Counter
	indexSize          prometheus.Gauge
}

var globalMetrics *MetricsService

// NewMetricsService 创建指标服务并注册Prometheus指标
func NewMetricsService() *MetricsService {
	if globalMetrics != nil {
		return globalMetrics
	}

	ms := &MetricsService{
		ingestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_ingest_total",
				Help: "Total number of document ingestions",
			},
			[]string{"status"},
		),
		chatCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_chat_total",
				Help: "Total number of chat turns",
			},
			[]string{"status"},
		),
		retrievalDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_retrieval_duration_seconds",
				Help:    "Duration of retrieval phase",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"include_web"},
		),
		generationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_generation_duration_seconds",
				Help:    "Duration of answer generation",
				Buckets: prometheus.DefBuckets,
			},
		),
		webSearchDegraded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_web_search_degraded_total",
				Help: "Total number of chat turns degraded to document-only retrieval",
			},
		),
		indexSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rag_vector_index_entries",
				Help: "Current number of entries in the vector index",
			},
		),
	}

	globalMetrics = ms
	return ms
}

// Handler 返回Prometheus指标的HTTP处理器
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP 实现http.Handler接口
func (ms *MetricsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ms.Handler().ServeHTTP(w, r)
}

// RecordIngest 记录一次文档摄入
func (ms *MetricsService) RecordIngest(status string) {
	ms.ingestCounter.WithLabelValues(status).Inc()
}

// RecordChat 记录一次对话
func (ms *MetricsService) RecordChat(status string) {
	ms.chatCounter.WithLabelValues(status).Inc()
}

// RecordRetrieval 记录检索耗时
func (ms *MetricsService) RecordRetrieval(includeWeb bool, d time.Duration) {
	label := "false"
	if includeWeb {
		label = "true"
	}
	ms.retrievalDuration.WithLabelValues(label).Observe(d.Seconds())
}

// RecordGeneration 记录生成耗时
func (ms *MetricsService) RecordGeneration(d time.Duration) {
	ms.generationDuration.Observe(d.Seconds())
}

// RecordDegraded 记录一次降级为纯文档检索
func (ms *MetricsService) RecordDegraded() {
	ms.webSearchDegraded.Inc()
}

// SetIndexSize 更新向量索引条目数
func (ms *MetricsService) SetIndexSize(n int) {
	ms.indexSize.Set(float64(n))
}
