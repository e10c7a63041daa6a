// 文件: pkg/quote/metrics.go
// 报价服务 Prometheus 指标

package quote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 结果标签
const (
	resultOK       = "ok"
	resultRejected = "rejected" // 参数非法
	resultError    = "error"
)

// Metrics 指标集合
type Metrics struct {
	Requests        *prometheus.CounterVec   // 按模型和结果计数
	Duration        *prometheus.HistogramVec // 按模型统计耗时
	JournalFailures prometheus.Counter
	PublishFailures prometheus.Counter
}

// NewMetrics 创建并注册指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optlab",
			Subsystem: "pricer",
			Name:      "requests_total",
			Help:      "Pricing requests by model and result",
		}, []string{"model", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optlab",
			Subsystem: "pricer",
			Name:      "request_duration_seconds",
			Help:      "Pricing latency by model",
			// 解析解微秒级，蒙特卡洛可到秒级
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"model"}),
		JournalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optlab",
			Subsystem: "pricer",
			Name:      "journal_failures_total",
			Help:      "Quotes that could not be journaled",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optlab",
			Subsystem: "pricer",
			Name:      "publish_failures_total",
			Help:      "Quote events that could not be published",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration, m.JournalFailures, m.PublishFailures)
	}
	return m
}

func (m *Metrics) observe(model string, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(model, result).Inc()
	m.Duration.WithLabelValues(model).Observe(elapsed.Seconds())
}

func (m *Metrics) journalFailed() {
	if m != nil {
		m.JournalFailures.Inc()
	}
}

func (m *Metrics) publishFailed() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}
