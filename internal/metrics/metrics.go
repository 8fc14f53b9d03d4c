// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// post.MetricsRecorder、presence.MetricsRecorder、auth.LoginRecorderを満たす。
type Collector struct {
	postsPublished  prometheus.Counter
	publishRejected *prometheus.CounterVec
	upstream        *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titan_posts_published_total",
			Help: "公開された記事の合計数",
		}),
		publishRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titan_publish_rejected_total",
			Help: "拒否された公開リクエストの理由別合計数",
		}, []string{"reason"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titan_presence_upstream_total",
			Help: "Discord上流呼び出しのソース・結果別合計数",
		}, []string{"source", "outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titan_presence_cache_hits_total",
			Help: "プレゼンスキャッシュのソース別ヒット数",
		}, []string{"source"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titan_login_attempts_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "titan_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.postsPublished,
		c.publishRejected,
		c.upstream,
		c.cacheHits,
		c.loginAttempts,
		c.httpStatus,
	)

	return c
}

// RecordPostPublished は記事の公開を記録する。
func (c *Collector) RecordPostPublished() {
	c.postsPublished.Inc()
}

// RecordPublishRejected は公開の拒否を記録する。
func (c *Collector) RecordPublishRejected(reason string) {
	c.publishRejected.WithLabelValues(reason).Inc()
}

// RecordUpstream はDiscord上流呼び出しの結果を記録する。
func (c *Collector) RecordUpstream(source, outcome string) {
	c.upstream.WithLabelValues(source, outcome).Inc()
}

// RecordCacheHit はプレゼンスキャッシュのヒットを記録する。
func (c *Collector) RecordCacheHit(source string) {
	c.cacheHits.WithLabelValues(source).Inc()
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt(outcome string) {
	c.loginAttempts.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
