// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ユーザー単位の処理結果ラベル
const (
	OutcomeNotified = "notified" // メール送信と通知レコード保存が完了
	OutcomeSkipped  = "skipped"  // 通知対象なし
	OutcomeFailed   = "failed"   // エラーによりスキップ
)

// MetricsCollector はメトリクス収集のインターフェース。
// 通知ジョブ、ディスパッチャー、クリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordRun(success bool, duration time.Duration)
	RecordUserOutcome(outcome string)
	RecordCandidates(tier string, count int)
	RecordEmailSent(duration time.Duration)
	RecordEmailFailed()
	RecordNotificationsStored(count int)
	RecordNotificationsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runs                *prometheus.CounterVec
	runDuration         prometheus.Histogram
	lastSuccess         prometheus.Gauge
	userOutcomes        *prometheus.CounterVec
	candidates          *prometheus.CounterVec
	emailsSent          prometheus.Counter
	emailsFailed        prometheus.Counter
	emailLatency        prometheus.Histogram
	notificationsStored prometheus.Counter
	notificationsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deprenotify_runs_total",
			Help: "通知ジョブの実行回数（結果別）",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deprenotify_run_duration_seconds",
			Help:    "通知ジョブ1回の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deprenotify_last_success_timestamp_seconds",
			Help: "最後に成功した通知ジョブの完了時刻（UNIX秒）",
		}),
		userOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deprenotify_user_outcomes_total",
			Help: "ユーザー単位の処理結果の合計数",
		}, []string{"outcome"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deprenotify_candidates_total",
			Help: "緊急度ティア別の通知候補の合計数",
		}, []string{"tier"}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deprenotify_emails_sent_total",
			Help: "送信が受理されたメールの合計数",
		}),
		emailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deprenotify_emails_failed_total",
			Help: "送信に失敗したメールの合計数",
		}),
		emailLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deprenotify_email_send_seconds",
			Help:    "メール送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		notificationsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deprenotify_notifications_stored_total",
			Help: "保存されたアプリ内通知レコードの合計数",
		}),
		notificationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deprenotify_notifications_purged_total",
			Help: "保持期間切れで削除された通知レコードの合計数",
		}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.lastSuccess,
		c.userOutcomes,
		c.candidates,
		c.emailsSent,
		c.emailsFailed,
		c.emailLatency,
		c.notificationsStored,
		c.notificationsPurged,
	)

	return c
}

// RecordRun は通知ジョブ1回分の結果と所要時間を記録する。
func (c *Collector) RecordRun(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(duration.Seconds())
	if success {
		c.lastSuccess.SetToCurrentTime()
	}
}

// RecordUserOutcome はユーザー単位の処理結果を記録する。
func (c *Collector) RecordUserOutcome(outcome string) {
	c.userOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCandidates はティア別の通知候補数を記録する。
func (c *Collector) RecordCandidates(tier string, count int) {
	c.candidates.WithLabelValues(tier).Add(float64(count))
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent(duration time.Duration) {
	c.emailsSent.Inc()
	c.emailLatency.Observe(duration.Seconds())
}

// RecordEmailFailed はメール送信失敗を記録する。
func (c *Collector) RecordEmailFailed() {
	c.emailsFailed.Inc()
}

// RecordNotificationsStored は保存した通知レコード数を記録する。
func (c *Collector) RecordNotificationsStored(count int) {
	c.notificationsStored.Add(float64(count))
}

// RecordNotificationsPurged は削除した通知レコード数を記録する。
func (c *Collector) RecordNotificationsPurged(count int64) {
	c.notificationsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。
// runコマンドなどメトリクスを公開しない実行で使用する。
type NopCollector struct{}

func (NopCollector) RecordRun(bool, time.Duration)   {}
func (NopCollector) RecordUserOutcome(string)        {}
func (NopCollector) RecordCandidates(string, int)    {}
func (NopCollector) RecordEmailSent(time.Duration)   {}
func (NopCollector) RecordEmailFailed()              {}
func (NopCollector) RecordNotificationsStored(int)   {}
func (NopCollector) RecordNotificationsPurged(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
