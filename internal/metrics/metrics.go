// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 会話・抽出・マッチングの各サービス層から利用する。
type MetricsCollector interface {
	RecordCrisisTriggered()
	RecordIntakeCompleted()
	RecordMatchFallback()
	RecordLLMRequest(kind, outcome string)
	RecordLLMLatency(kind string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	crisisTriggered  prometheus.Counter
	intakesCompleted prometheus.Counter
	matchFallback    prometheus.Counter
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		crisisTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sage_crisis_triggered_total",
			Help: "危機応答を返した回数",
		}),
		intakesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sage_intakes_completed_total",
			Help: "インテーク完了（グループ割り当てまで到達）の合計数",
		}),
		matchFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sage_match_fallback_total",
			Help: "キーワード分類に退避したマッチングの合計数",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_llm_requests_total",
			Help: "推論サービス呼び出しの種別・結果別合計数",
		}, []string{"kind", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sage_llm_latency_seconds",
			Help:    "推論サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.crisisTriggered,
		c.intakesCompleted,
		c.matchFallback,
		c.llmRequests,
		c.llmLatency,
	)

	return c
}

// RecordCrisisTriggered は危機応答の発生を記録する。
func (c *Collector) RecordCrisisTriggered() {
	c.crisisTriggered.Inc()
}

// RecordIntakeCompleted はインテーク完了を記録する。
func (c *Collector) RecordIntakeCompleted() {
	c.intakesCompleted.Inc()
}

// RecordMatchFallback はキーワード分類への退避を記録する。
func (c *Collector) RecordMatchFallback() {
	c.matchFallback.Inc()
}

// RecordLLMRequest は推論サービス呼び出しの結果を記録する。
// kindはchat/extract/match、outcomeはok/errorのいずれか。
func (c *Collector) RecordLLMRequest(kind, outcome string) {
	c.llmRequests.WithLabelValues(kind, outcome).Inc()
}

// RecordLLMLatency は推論サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordLLMLatency(kind string, duration time.Duration) {
	c.llmLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
