// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// フェッチ結果ラベルの値。
const (
	ResultSuccess     = "success"
	ResultNotFound    = "not_found"
	ResultRateLimited = "rate_limited"
	ResultBlocked     = "blocked"
	ResultTimeout     = "timeout"
	ResultMalformed   = "malformed"
	ResultError       = "error"
)

// エンキュー元ラベルの値。
const (
	OriginSeeder  = "seeder"
	OriginRequest = "request"
)

// SyncMetrics は同期スケジューラのメトリクス収集インターフェース。
// スケジューラ、シーダー、エンキュートリガーから利用する。
type SyncMetrics interface {
	RecordFetch(source, result string)
	RecordFetchLatency(source string, duration time.Duration)
	RecordMergeFailure(kind string)
	RecordCycleSkipped(queue string)
	RecordDrained(queue string, count int)
	SetQueueDepth(queue string, depth int)
	RecordEnqueued(queue, origin string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	mergeFail    *prometheus.CounterVec
	cycleSkipped *prometheus.CounterVec
	drained      *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	enqueued     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algohaja_sync_fetch_total",
			Help: "外部サービス呼び出しの結果別合計数",
		}, []string{"source", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "algohaja_sync_fetch_latency_seconds",
			Help:    "外部サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		mergeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algohaja_sync_merge_fail_total",
			Help: "取得結果の反映に失敗した合計数",
		}, []string{"kind"}),
		cycleSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algohaja_sync_cycle_skipped_total",
			Help: "前回サイクル実行中のためスキップしたサイクル数",
		}, []string{"queue"}),
		drained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algohaja_sync_drained_total",
			Help: "キューから取り出した項目の合計数",
		}, []string{"queue"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "algohaja_sync_queue_depth",
			Help: "キューに滞留している項目数",
		}, []string{"queue"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algohaja_sync_enqueued_total",
			Help: "キューに追加した項目の合計数",
		}, []string{"queue", "origin"}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.fetchLatency,
		c.mergeFail,
		c.cycleSkipped,
		c.drained,
		c.queueDepth,
		c.enqueued,
	)

	return c
}

// RecordFetch は外部サービス呼び出しの結果を記録する。
func (c *Collector) RecordFetch(source, result string) {
	c.fetchTotal.WithLabelValues(source, result).Inc()
}

// RecordFetchLatency は外部サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(source string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordMergeFailure は反映失敗を記録する。
func (c *Collector) RecordMergeFailure(kind string) {
	c.mergeFail.WithLabelValues(kind).Inc()
}

// RecordCycleSkipped はサイクルの重複によるスキップを記録する。
func (c *Collector) RecordCycleSkipped(queue string) {
	c.cycleSkipped.WithLabelValues(queue).Inc()
}

// RecordDrained は取り出した項目数を記録する。
func (c *Collector) RecordDrained(queue string, count int) {
	c.drained.WithLabelValues(queue).Add(float64(count))
}

// SetQueueDepth はキューの現在の項目数を記録する。
func (c *Collector) SetQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordEnqueued は追加した項目数を記録する。
func (c *Collector) RecordEnqueued(queue, origin string, count int) {
	c.enqueued.WithLabelValues(queue, origin).Add(float64(count))
}

// Nop は何も記録しないSyncMetrics。メトリクスを使わない構成（worker単体テスト等）で使用する。
type Nop struct{}

func (Nop) RecordFetch(string, string)               {}
func (Nop) RecordFetchLatency(string, time.Duration) {}
func (Nop) RecordMergeFailure(string)                {}
func (Nop) RecordCycleSkipped(string)                {}
func (Nop) RecordDrained(string, int)                {}
func (Nop) SetQueueDepth(string, int)                {}
func (Nop) RecordEnqueued(string, string, int)       {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ SyncMetrics = (*Collector)(nil)
	_ SyncMetrics = Nop{}
)
