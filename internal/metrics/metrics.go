// Package metrics はトークン発行・検証・セットアップの Prometheus メトリクスを提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "token_issuer"

// 結果ラベルの値。
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultConflict = "conflict"
)

// Metrics はサービスのカウンタをまとめたもの。
type Metrics struct {
	registry *prometheus.Registry

	tokensIssued    *prometheus.CounterVec
	tokensValidated *prometheus.CounterVec
	setupTotal      *prometheus.CounterVec
}

// New は専用レジストリにカウンタを登録した Metrics を生成する。
// Go ランタイムとプロセスのコレクタも同じレジストリに登録する。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Total number of token issuance attempts by result",
			},
			[]string{"result"},
		),
		tokensValidated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_validated_total",
				Help:      "Total number of token validations by outcome",
			},
			[]string{"outcome"},
		),
		setupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "setup_total",
				Help:      "Total number of keystore setup attempts by result",
			},
			[]string{"result"},
		),
	}
}

// TokenIssued は発行結果を記録する。
func (m *Metrics) TokenIssued(result string) {
	m.tokensIssued.WithLabelValues(result).Inc()
}

// TokenValidated は検証結果の分類を記録する。
func (m *Metrics) TokenValidated(outcome string) {
	m.tokensValidated.WithLabelValues(outcome).Inc()
}

// SetupCompleted はセットアップの結果を記録する。
func (m *Metrics) SetupCompleted(result string) {
	m.setupTotal.WithLabelValues(result).Inc()
}

// Handler は /metrics 用の HTTP ハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
