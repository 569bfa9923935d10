package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。每个实例持有独立 registry，
// 不注册到全局 DefaultRegisterer。
type Monitor struct {
	registry *prometheus.Registry

	// 加载指标
	rowsLoaded     *prometheus.CounterVec
	recordsEmitted *prometheus.CounterVec
	rowsRejected   *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec

	// inbox / replay
	inboxPending  prometheus.Gauge
	replayClients prometheus.Gauge
	replaySent    prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "tw",
		Subsystem: "ingest",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		rowsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rows_loaded_total",
			Help:      "读取的原始行数",
		}, []string{"kind"}),
		recordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "records_emitted_total",
			Help:      "输出的 tick 记录数",
		}, []string{"kind"}),
		rowsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rows_rejected_total",
			Help:      "按错误分类统计的拒绝行数",
		}, []string{"reason"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "pipeline 运行次数",
		}, []string{"kind", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "单次 pipeline 耗时（秒）",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		inboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inbox_pending_files",
			Help:      "inbox 中等待处理的文件数",
		}),
		replayClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replay_clients",
			Help:      "当前回放连接数",
		}),
		replaySent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replay_records_sent_total",
			Help:      "回放发送的记录数",
		}),
	}
}

// 加载相关方法
func (m *Monitor) RecordRowsLoaded(kind string, n int) {
	m.rowsLoaded.WithLabelValues(kind).Add(float64(n))
}

func (m *Monitor) RecordRecordsEmitted(kind string, n int) {
	m.recordsEmitted.WithLabelValues(kind).Add(float64(n))
}

func (m *Monitor) RecordReject(reason string) {
	m.rowsRejected.WithLabelValues(reason).Inc()
}

func (m *Monitor) RecordRun(kind, status string, d time.Duration) {
	m.runs.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// inbox / replay
func (m *Monitor) SetInboxPending(n int) {
	m.inboxPending.Set(float64(n))
}

func (m *Monitor) ReplayClientConnected() {
	m.replayClients.Inc()
}

func (m *Monitor) ReplayClientDisconnected() {
	m.replayClients.Dec()
}

func (m *Monitor) RecordReplaySent(n int) {
	m.replaySent.Add(float64(n))
}

// Registry 返回私有 registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer 在 addr 上暴露 /metrics
func (m *Monitor) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
