// ============================================================================
// bounce Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露遊戲執行環境的指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 排程器 (coroutine.Observer)：
//      - bounce_ticks_total: 已執行的 tick 數
//      - bounce_tick_duration_seconds: 單次 tick 的耗時分佈
//      - bounce_jobs_active: 當前 active job 數
//      - bounce_job_events_total{event}: job 生命週期事件
//
//   2. 狀態機與佇列：
//      - bounce_fsm_transitions_total{machine,from,to}: 狀態轉換次數
//      - bounce_queue_events_total{event}: JobQueue 事件
//
//   3. 遊戲進度：
//      - bounce_levels_completed_total: 完成的關卡數
//      - bounce_level_current: 當前關卡編號
//      - bounce_sfx_pending / bounce_sfx_dropped: 音效佇列狀態
//
// Prometheus 查詢示例:
//
//   # 95 分位 tick 耗時
//   histogram_quantile(0.95, rate(bounce_tick_duration_seconds_bucket[1m]))
//
//   # 每分鐘完成關卡數
//   rate(bounce_levels_completed_total[1m])
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/fsm"
	"github.com/ChuLiYu/bounce/internal/jobqueue"
)

// Collector 指標收集器，同時實作 coroutine.Observer
type Collector struct {
	// 排程器
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	jobsActive   prometheus.Gauge
	jobEvents    *prometheus.CounterVec

	// 狀態機與佇列
	transitions *prometheus.CounterVec
	queueEvents *prometheus.CounterVec

	// 遊戲進度
	levelsCompleted prometheus.Counter
	levelCurrent    prometheus.Gauge
	sfxPending      prometheus.Gauge
	sfxDropped      prometheus.Gauge

	gatherer prometheus.Gatherer
}

var _ coroutine.Observer = (*Collector)(nil)

// NewCollector 建立並註冊所有指標
//
// reg 為 nil 時使用 prometheus.DefaultRegisterer；同一個 registry 只能建立一個 Collector。
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bounce_ticks_total",
			Help: "Total number of dispatcher ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bounce_tick_duration_seconds",
			Help:    "Wall time spent pumping jobs in one tick",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bounce_jobs_active",
			Help: "Number of jobs registered with the dispatcher",
		}),
		jobEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bounce_job_events_total",
			Help: "Job lifecycle notifications by kind",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bounce_fsm_transitions_total",
			Help: "State machine transitions",
		}, []string{"machine", "from", "to"}),
		queueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bounce_queue_events_total",
			Help: "Job queue notifications by kind",
		}, []string{"event"}),
		levelsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bounce_levels_completed_total",
			Help: "Total number of completed levels",
		}),
		levelCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bounce_level_current",
			Help: "Id of the level currently being played",
		}),
		sfxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bounce_sfx_pending",
			Help: "Sound effect requests waiting to be played",
		}),
		sfxDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bounce_sfx_dropped",
			Help: "Sound effect requests dropped because the buffer was full",
		}),
	}

	reg.MustRegister(
		c.ticks,
		c.tickDuration,
		c.jobsActive,
		c.jobEvents,
		c.transitions,
		c.queueEvents,
		c.levelsCompleted,
		c.levelCurrent,
		c.sfxPending,
		c.sfxDropped,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}

	return c
}

// ============================================================================
// 排程器
// ============================================================================

// ObserveTick 記錄一次 tick
func (c *Collector) ObserveTick(active int, took time.Duration) {
	c.ticks.Inc()
	c.jobsActive.Set(float64(active))
	c.tickDuration.Observe(took.Seconds())
}

// ObserveJob 記錄 job 事件
func (c *Collector) ObserveJob(kind coroutine.EventKind) {
	c.jobEvents.WithLabelValues(string(kind)).Inc()
}

// ============================================================================
// 狀態機與佇列
// ============================================================================

// ObserveMachine 訂閱狀態機轉換；回傳的函式取消訂閱
func (c *Collector) ObserveMachine(m *fsm.FSM) func() {
	tok := m.OnTransition(func(e fsm.TransitionEvent) {
		c.RecordTransition(m.Name(), e)
	})
	return func() { m.OffTransition(tok) }
}

// RecordTransition 記錄一次狀態轉換
func (c *Collector) RecordTransition(machine string, e fsm.TransitionEvent) {
	c.transitions.WithLabelValues(machine, string(e.From), string(e.To)).Inc()
}

// ObserveQueue 訂閱佇列的所有事件
func (c *Collector) ObserveQueue(q *jobqueue.JobQueue) {
	for _, k := range []jobqueue.EventKind{jobqueue.QueueStarted, jobqueue.JobProcessed, jobqueue.QueueComplete} {
		kind := k
		q.On(kind, func(jobqueue.QueueEvent) {
			c.queueEvents.WithLabelValues(string(kind)).Inc()
		})
	}
}

// ============================================================================
// 遊戲進度
// ============================================================================

// RecordLevelComplete 記錄關卡完成
func (c *Collector) RecordLevelComplete() {
	c.levelsCompleted.Inc()
}

// SetCurrentLevel 設定當前關卡
func (c *Collector) SetCurrentLevel(id int) {
	c.levelCurrent.Set(float64(id))
}

// UpdateAudioStats 更新音效佇列狀態
func (c *Collector) UpdateAudioStats(pending, dropped int) {
	c.sfxPending.Set(float64(pending))
	c.sfxDropped.Set(float64(dropped))
}

// ============================================================================
// HTTP
// ============================================================================

// Handler 回傳 /metrics 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Server 指標 HTTP 服務
type Server struct {
	srv *http.Server
}

// NewServer 建立監聽 port 的指標服務
func NewServer(port int, c *Collector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 在背景啟動服務；監聽失敗會寫入 errc
func (s *Server) Start(errc chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown 關閉服務
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr 監聽位址
func (s *Server) Addr() string { return s.srv.Addr }
