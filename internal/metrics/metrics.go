// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// ゲートキーパー、決済、アップロードの各層から利用する。
type Recorder interface {
	RecordGuardRejection(endpoint, reason string)
	RecordRateLimit(outcome string)
	RecordPaymentOrder(result string)
	RecordPaymentVerification(result string)
	RecordWebhookEvent(event, result string)
	RecordUploadScan(result string)
	RecordGatewayLatency(duration time.Duration)
	SetRateLimitEntries(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	guardRejections      *prometheus.CounterVec
	rateLimitDecisions   *prometheus.CounterVec
	paymentOrders        *prometheus.CounterVec
	paymentVerifications *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	uploadScans          *prometheus.CounterVec
	gatewayLatency       prometheus.Histogram
	rateLimitEntries     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_guard_rejections_total",
			Help: "ゲートキーパーで拒否されたリクエスト数（エンドポイント・理由別）",
		}, []string{"endpoint", "reason"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_rate_limit_decisions_total",
			Help: "レート制限の判定結果別の件数",
		}, []string{"result"}),
		paymentOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_orders_total",
			Help: "決済注文作成の結果別の件数",
		}, []string{"result"}),
		paymentVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_verifications_total",
			Help: "決済署名検証の結果別の件数",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Webhookイベントの種別・処理結果別の件数",
		}, []string{"event", "result"}),
		uploadScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_upload_scans_total",
			Help: "アップロード検査の結果別の件数",
		}, []string{"result"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_gateway_latency_seconds",
			Help:    "決済ゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimitEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_rate_limit_entries",
			Help: "インメモリのレート制限で保持しているキー数",
		}),
	}

	reg.MustRegister(
		c.guardRejections,
		c.rateLimitDecisions,
		c.paymentOrders,
		c.paymentVerifications,
		c.webhookEvents,
		c.uploadScans,
		c.gatewayLatency,
		c.rateLimitEntries,
	)

	return c
}

// RecordGuardRejection はゲートキーパーでの拒否を記録する。
func (c *Collector) RecordGuardRejection(endpoint, reason string) {
	c.guardRejections.WithLabelValues(endpoint, reason).Inc()
}

// RecordRateLimit はレート制限の判定結果を記録する。
func (c *Collector) RecordRateLimit(outcome string) {
	c.rateLimitDecisions.WithLabelValues(outcome).Inc()
}

// RecordPaymentOrder は決済注文作成の結果を記録する。
func (c *Collector) RecordPaymentOrder(result string) {
	c.paymentOrders.WithLabelValues(result).Inc()
}

// RecordPaymentVerification は決済署名検証の結果を記録する。
func (c *Collector) RecordPaymentVerification(result string) {
	c.paymentVerifications.WithLabelValues(result).Inc()
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(event, result string) {
	c.webhookEvents.WithLabelValues(event, result).Inc()
}

// RecordUploadScan はアップロード検査の結果を記録する。
func (c *Collector) RecordUploadScan(result string) {
	c.uploadScans.WithLabelValues(result).Inc()
}

// RecordGatewayLatency は決済ゲートウェイ呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(duration time.Duration) {
	c.gatewayLatency.Observe(duration.Seconds())
}

// SetRateLimitEntries はインメモリリミッターのキー数を設定する。
func (c *Collector) SetRateLimitEntries(n int) {
	c.rateLimitEntries.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ Recorder = (*Collector)(nil)
