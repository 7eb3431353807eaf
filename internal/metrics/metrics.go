// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 候補リフレッシュの結果ラベル
const (
	RefreshRun     = "run"
	RefreshSkipped = "skipped"
	RefreshFailed  = "failed"
)

// チーム作成経路のラベル
const (
	TeamPathAtomic     = "atomic"
	TeamPathSequential = "sequential"
	TeamPathFailed     = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リゾルバやリコンサイラ、HTTP層から利用する。
type MetricsCollector interface {
	RecordCandidateRefresh(outcome string)
	RecordResolveLatency(component string, duration time.Duration)
	RecordUnreadComputation(strategy string)
	RecordUnreadFallback()
	RecordTeamCreation(path string)
	RecordRealtimeEvent(channel string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	candidateRefresh  *prometheus.CounterVec
	resolveLatency    *prometheus.HistogramVec
	unreadComputation *prometheus.CounterVec
	unreadFallback    prometheus.Counter
	teamCreation      *prometheus.CounterVec
	realtimeEvents    *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		candidateRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studiomatch_candidate_refresh_total",
			Help: "候補リフレッシュの結果別の合計数",
		}, []string{"outcome"}),
		resolveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studiomatch_resolve_latency_seconds",
			Help:    "解決処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"component"}),
		unreadComputation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studiomatch_unread_computation_total",
			Help: "未読数の再計算回数（戦略別）",
		}, []string{"strategy"}),
		unreadFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studiomatch_unread_fallback_total",
			Help: "集計関数の失敗によりフォールバックした回数",
		}),
		teamCreation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studiomatch_team_creation_total",
			Help: "チーム作成の経路別の合計数",
		}, []string{"path"}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studiomatch_realtime_events_total",
			Help: "受信したリアルタイムイベント数（チャネル別）",
		}, []string{"channel"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studiomatch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.candidateRefresh,
		c.resolveLatency,
		c.unreadComputation,
		c.unreadFallback,
		c.teamCreation,
		c.realtimeEvents,
		c.httpStatus,
	)

	return c
}

// RecordCandidateRefresh は候補リフレッシュの結果を記録する。
func (c *Collector) RecordCandidateRefresh(outcome string) {
	c.candidateRefresh.WithLabelValues(outcome).Inc()
}

// RecordResolveLatency はコンポーネントごとの解決時間を記録する。
func (c *Collector) RecordResolveLatency(component string, duration time.Duration) {
	c.resolveLatency.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordUnreadComputation は未読数の再計算を記録する。
func (c *Collector) RecordUnreadComputation(strategy string) {
	c.unreadComputation.WithLabelValues(strategy).Inc()
}

// RecordUnreadFallback はフォールバック発生を記録する。
func (c *Collector) RecordUnreadFallback() {
	c.unreadFallback.Inc()
}

// RecordTeamCreation はチーム作成の経路を記録する。
func (c *Collector) RecordTeamCreation(path string) {
	c.teamCreation.WithLabelValues(path).Inc()
}

// RecordRealtimeEvent はリアルタイムイベントの受信を記録する。
func (c *Collector) RecordRealtimeEvent(channel string) {
	c.realtimeEvents.WithLabelValues(channel).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordCandidateRefresh(string)              {}
func (Nop) RecordResolveLatency(string, time.Duration) {}
func (Nop) RecordUnreadComputation(string)             {}
func (Nop) RecordUnreadFallback()                      {}
func (Nop) RecordTeamCreation(string)                  {}
func (Nop) RecordRealtimeEvent(string)                 {}
func (Nop) RecordHTTPStatus(int)                       {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
