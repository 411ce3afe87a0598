// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// サービス層のMetricsRecorderインターフェースを実装する。
type Collector struct {
	loginSuccess    *prometheus.CounterVec
	loginFailure    *prometheus.CounterVec
	loginLatency    prometheus.Histogram
	invitesCreated  prometheus.Counter
	invitesAccepted prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachhub_login_success_total",
			Help: "ログイン成功の合計数（新規アカウントかどうかのラベル付き）",
		}, []string{"new_account"}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachhub_login_failure_total",
			Help: "ログイン失敗の合計数（失敗ステージ別）",
		}, []string{"stage"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coachhub_login_latency_seconds",
			Help:    "ログイン処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		invitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coachhub_invites_created_total",
			Help: "発行された招待トークンの合計数",
		}),
		invitesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coachhub_invites_accepted_total",
			Help: "受諾された招待の合計数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachhub_http_requests_total",
			Help: "HTTPメソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.loginLatency,
		c.invitesCreated,
		c.invitesAccepted,
		c.httpRequests,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(isNewAccount bool) {
	c.loginSuccess.WithLabelValues(strconv.FormatBool(isNewAccount)).Inc()
}

// RecordLoginFailure はログイン失敗を失敗ステージ別に記録する。
func (c *Collector) RecordLoginFailure(stage string) {
	c.loginFailure.WithLabelValues(stage).Inc()
}

// RecordLoginLatency はログイン処理のレイテンシを記録する。
func (c *Collector) RecordLoginLatency(duration time.Duration) {
	c.loginLatency.Observe(duration.Seconds())
}

// RecordInviteCreated は招待トークンの発行を記録する。
func (c *Collector) RecordInviteCreated() {
	c.invitesCreated.Inc()
}

// RecordInviteAccepted は招待の受諾を記録する。
func (c *Collector) RecordInviteAccepted() {
	c.invitesAccepted.Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果を記録する。
// pathはカーディナリティ抑制のためラベルに含めない。
func (c *Collector) RecordHTTPRequest(method, path string, status int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
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
