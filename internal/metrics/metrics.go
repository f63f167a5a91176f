// Package metrics は認証ガードの Prometheus メトリクスを提供します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	csrfRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebra_csrf_rejections_total",
		Help: "Total number of requests rejected by the CSRF guard",
	}, []string{"reason"})

	accessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebra_access_decisions_total",
		Help: "Total number of access guard decisions by outcome",
	}, []string{"outcome"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebra_login_attempts_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	auditDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebra_audit_dropped_total",
		Help: "Total number of audit events dropped before reaching the queue",
	}, []string{"reason"})

	passwordHashSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "celebra_password_hash_seconds",
		Help:    "Latency of bcrypt hash and verify operations in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"op"})
)

// CSRFRejected は CSRF 拒否を記録します。
func CSRFRejected(reason string) {
	csrfRejections.WithLabelValues(reason).Inc()
}

// AccessDecision はアクセスガードの判定結果を記録します。
func AccessDecision(outcome string) {
	accessDecisions.WithLabelValues(outcome).Inc()
}

// LoginAttempt はログイン試行の結果を記録します。
func LoginAttempt(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// AuditDropped はキューに投入できなかった監査イベントを記録します。
func AuditDropped(reason string) {
	auditDropped.WithLabelValues(reason).Inc()
}

// ObservePasswordHash は bcrypt 処理時間を記録します。
func ObservePasswordHash(op string, started time.Time) {
	passwordHashSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
