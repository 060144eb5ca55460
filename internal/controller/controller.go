// ============================================================================
// bounce 控制器 - 執行環境的組合根
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 建立所有元件、以固定間隔驅動 tick、處理關卡包熱更新並發佈狀態
//
// 架構設計:
//   - Dispatcher: 所有 Job 的 tick 幫浦
//   - level.Manager: 關卡順序與完成紀錄 (progress.Store)
//   - player.TouchControl + KinematicBody: 觸控 → 玩家狀態訊號
//   - audio.Player: 每 tick 播放一個音效
//   - sim.Autoplayer: 沒有真人輸入時的自動玩家
//
// 每個 tick 的順序:
//   1. Dispatcher.Tick(dt)：deferred 指令、計時器、所有 Job
//   2. 球移動 → TouchControl.Update（離開畫面偵測）
//   3. level.Manager.Update（狀態機 Reason → Act）
//   4. audio.Player.Update
//   5. 發佈狀態快照
//
// 並發安全:
//   - 遊戲狀態只在 tick goroutine 上修改
//   - fsnotify、外部輸入 (Touch / SetMenu / LoadLevel) 一律經由 Dispatcher.Defer
//   - Status() 讀取以 atomic.Pointer 發佈的快照，可從任何 goroutine 呼叫
//
// 關閉順序:
//   1. close(stopCh) → tick loop 與 watch loop 退出
//   2. loopWg.Wait()
//   3. 自動玩家、關卡、觸控、音效依序停止
//   4. 關閉 watcher、Dispatcher、progress store
//
// ============================================================================

package controller

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/audio"
	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/internal/level"
	"github.com/ChuLiYu/bounce/internal/metrics"
	"github.com/ChuLiYu/bounce/internal/player"
	"github.com/ChuLiYu/bounce/internal/progress"
	"github.com/ChuLiYu/bounce/internal/sim"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrStopped        = errors.New("controller stopped")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Config Controller 配置
type Config struct {
	TickInterval time.Duration // tick 間隔
	MaxTicks     int           // 0 = 直到 Stop

	PackPath string // 關卡包 YAML
	Watch    bool   // 關卡包變更時重新載入

	ProgressBackend string // memory | file | sqlite
	ProgressPath    string

	MinTouchDistance float64
	BallSpeed        float64
	Bounds           types.Rect
	AnnounceDelay    time.Duration
	MaxPendingSFX    int

	Autoplay  bool
	Seed      uint64
	MissRate  float64
	ShotDelay time.Duration

	Sink      audio.Sink         // nil = 寫入日誌
	Collector *metrics.Collector // nil = 不收集指標
	Logger    zerolog.Logger
}

// Status is the snapshot published after every tick.
type Status struct {
	level.Status
	Running    bool          `json:"running"`
	Ticks      uint64        `json:"ticks"`
	GameTime   time.Duration `json:"game_time"`
	Uptime     time.Duration `json:"uptime"`
	ActiveJobs int           `json:"active_jobs"`
	Shots      int           `json:"shots"`
	Hits       int           `json:"hits"`
	SFXPending int           `json:"sfx_pending"`
	SFXDropped int           `json:"sfx_dropped"`
	Reloads    int           `json:"pack_reloads"`
}

// Controller 核心控制器
type Controller struct {
	config Config

	d       *coroutine.Dispatcher
	signals *event.Signals
	store   progress.Store
	manager *level.Manager
	body    *player.KinematicBody
	control *player.TouchControl
	sfx     *audio.Player
	auto    *sim.Autoplayer
	watcher *fsnotify.Watcher

	status  atomic.Pointer[Status]
	running atomic.Bool
	reloads int

	mu        sync.Mutex // 保護 started / stopped
	started   bool
	stopped   bool
	startTime time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	loopWg sync.WaitGroup
	log    zerolog.Logger
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewController opens the progress store, loads the level pack and wires
// every component. Nothing runs until Start.
func NewController(config Config) (*Controller, error) {
	c := &Controller{
		config:  config,
		signals: event.NewSignals(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     config.Logger,
	}

	opts := []coroutine.DispatcherOption{coroutine.WithLogger(c.log.With().Str("component", "dispatcher").Logger())}
	if config.Collector != nil {
		opts = append(opts, coroutine.WithObserver(config.Collector))
	}
	c.d = coroutine.NewDispatcher(opts...)

	store, err := progress.Open(config.ProgressBackend, config.ProgressPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}
	c.store = store

	pack, err := level.LoadPack(config.PackPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load level pack: %w", err)
	}
	manager, err := c.buildManager(pack)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.manager = manager

	c.body = player.NewKinematicBody(config.BallSpeed, config.Bounds)
	c.control = player.NewTouchControl(c.signals, c.body,
		player.WithMinTouchDistance(config.MinTouchDistance),
		player.WithLogger(c.log.With().Str("component", "touch").Logger()),
	)

	sink := config.Sink
	if sink == nil {
		sink = audio.LogSink{Log: c.log.With().Str("component", "sfx").Logger()}
	}
	sfxOpts := []audio.PlayerOption{audio.WithPlayerLogger(c.log)}
	if config.MaxPendingSFX > 0 {
		sfxOpts = append(sfxOpts, audio.WithMaxPending(config.MaxPendingSFX))
	}
	c.sfx = audio.NewPlayer(c.signals.SFX, sink, sfxOpts...)

	if config.Autoplay {
		c.auto = sim.New(c.d, c, c.control, c.body, config.Bounds,
			sim.WithSeed(config.Seed),
			sim.WithMissRate(config.MissRate),
			sim.WithShotDelay(config.ShotDelay),
			sim.WithDragLength(3*config.MinTouchDistance),
			sim.WithLogger(c.log.With().Str("component", "autoplay").Logger()),
		)
		if config.Collector != nil {
			config.Collector.ObserveQueue(c.auto.Queue())
		}
	}

	c.publishStatus()
	return c, nil
}

// buildManager creates the levels of pack and a manager over them.
func (c *Controller) buildManager(pack *level.Pack) (*level.Manager, error) {
	lib, err := pack.Library()
	if err != nil {
		return nil, fmt.Errorf("failed to load sound library: %w", err)
	}
	levels := pack.Build(c.d, c.signals, c.log.With().Str("component", "level").Logger())
	m := level.NewManager(levels, c.store, c.d, c.signals,
		level.WithLibrary(lib),
		level.WithAnnounceDelay(c.config.AnnounceDelay),
		level.WithManagerLogger(c.log.With().Str("component", "levels").Logger()),
	)

	m.OnNewLevelLoaded(func(l *level.Level) {
		c.control.Listen()
		if c.config.Collector != nil {
			c.config.Collector.SetCurrentLevel(l.ID())
		}
	})
	if col := c.config.Collector; col != nil {
		m.OnLevelCompleted(func(*level.Level) { col.RecordLevelComplete() })
		for _, l := range levels {
			col.ObserveMachine(l.Machine())
		}
	}
	return m, nil
}

// Start enters the first level and launches the tick loop (and the pack
// watcher when enabled).
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}

	if err := c.prepare(); err != nil {
		return err
	}

	if c.config.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create pack watcher: %w", err)
		}
		// 監看目錄：編輯器常以 rename 方式存檔
		if err := w.Add(filepath.Dir(c.config.PackPath)); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch level pack: %w", err)
		}
		c.watcher = w
		c.loopWg.Add(1)
		go c.watchLoop()
	}

	c.started = true
	c.startTime = time.Now()
	c.running.Store(true)
	c.loopWg.Add(1)
	go c.tickLoop()

	c.log.Info().
		Dur("tick", c.config.TickInterval).
		Int("levels", len(c.manager.Levels())).
		Bool("autoplay", c.auto != nil).
		Msg("Controller started")
	return nil
}

// prepare starts the game state without a loop. Tests drive step directly.
func (c *Controller) prepare() error {
	if err := c.manager.Start(); err != nil {
		return fmt.Errorf("failed to start level manager: %w", err)
	}
	if c.config.Collector != nil {
		c.config.Collector.SetCurrentLevel(c.manager.Current().ID())
	}
	if c.auto != nil {
		if err := c.auto.Start(); err != nil {
			return fmt.Errorf("failed to start autoplayer: %w", err)
		}
	}
	c.publishStatus()
	return nil
}

// ============================================================================
// 循環
// ============================================================================

// tickLoop 以固定間隔驅動遊戲
func (c *Controller) tickLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.log.Debug().Msg("Tick loop stopped")
			return

		case <-ticker.C:
			c.step(c.config.TickInterval)
			if c.config.MaxTicks > 0 && c.d.Ticks() >= uint64(c.config.MaxTicks) {
				c.log.Info().Uint64("ticks", c.d.Ticks()).Msg("Tick limit reached")
				close(c.doneCh)
				return
			}
		}
	}
}

// step runs one tick on the caller's goroutine.
func (c *Controller) step(dt time.Duration) {
	c.d.Tick(dt)
	c.body.Step(dt.Seconds())
	c.control.Update()
	c.manager.Update()
	c.sfx.Update()
	if c.config.Collector != nil {
		c.config.Collector.UpdateAudioStats(c.sfx.Pending(), c.sfx.Dropped())
	}
	c.publishStatus()
}

// watchLoop 轉送關卡包檔案變更到 tick goroutine
func (c *Controller) watchLoop() {
	defer c.loopWg.Done()
	target := filepath.Clean(c.config.PackPath)

	for {
		select {
		case <-c.stopCh:
			return

		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			c.log.Info().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("level pack changed")
			if err := c.d.Defer(c.reloadPack); err != nil {
				return
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Error().Err(err).Msg("pack watcher error")
		}
	}
}

// reloadPack swaps in the levels of the pack on disk. An invalid pack is
// logged and the current levels keep running.
func (c *Controller) reloadPack() {
	pack, err := level.LoadPack(c.config.PackPath)
	if err != nil {
		c.log.Error().Err(err).Msg("level pack reload rejected")
		return
	}
	manager, err := c.buildManager(pack)
	if err != nil {
		c.log.Error().Err(err).Msg("level pack reload rejected")
		return
	}

	c.manager.Stop()
	c.manager = manager
	if err := c.manager.Start(); err != nil {
		c.log.Error().Err(err).Msg("failed to start reloaded levels")
		return
	}
	c.control.Listen()
	c.reloads++
	c.log.Info().Int("levels", len(manager.Levels())).Msg("level pack reloaded")
	c.publishStatus()
}

// ============================================================================
// 外部輸入（任何 goroutine）
// ============================================================================

// Touch forwards an input event to the touch control on the next tick.
func (c *Controller) Touch(td types.TouchData) error {
	return c.d.Defer(func() { c.control.Touch(td) })
}

// SetMenu publishes a menu visibility change on the next tick.
func (c *Controller) SetMenu(m types.MenuStatus) error {
	return c.d.Defer(func() { c.signals.Menu.Publish(m) })
}

// LoadLevel switches to the level at index on the next tick.
func (c *Controller) LoadLevel(index int) error {
	return c.d.Defer(func() {
		c.manager.LoadLevel(index)
		c.control.Listen()
	})
}

// ============================================================================
// 公開方法
// ============================================================================

// Current implements sim.Game against whichever manager is active.
func (c *Controller) Current() *level.Level { return c.manager.Current() }

// Done is closed when the tick loop stops on its own at MaxTicks.
func (c *Controller) Done() <-chan struct{} { return c.doneCh }

// Status returns the last published snapshot.
func (c *Controller) Status() Status {
	if st := c.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// GetStats 取得統計資訊
func (c *Controller) GetStats() map[string]int {
	st := c.Status()
	return map[string]int{
		"level":       st.Level,
		"highest":     st.Highest,
		"completed":   len(st.Completed),
		"remaining":   st.Remaining,
		"ticks":       int(st.Ticks),
		"active_jobs": st.ActiveJobs,
		"shots":       st.Shots,
		"hits":        st.Hits,
		"sfx_dropped": st.SFXDropped,
	}
}

func (c *Controller) publishStatus() {
	st := &Status{
		Status:     c.manager.Status(),
		Ticks:      c.d.Ticks(),
		GameTime:   c.d.Now(),
		ActiveJobs: c.d.Active(),
		SFXPending: c.sfx.Pending(),
		SFXDropped: c.sfx.Dropped(),
		Reloads:    c.reloads,
		Running:    c.running.Load(),
	}
	if c.auto != nil {
		st.Shots = c.auto.Shots()
		st.Hits = c.auto.Hits()
	}
	if !c.startTime.IsZero() {
		st.Uptime = time.Since(c.startTime)
	}
	c.status.Store(st)
}

// Stop 優雅關閉 Controller
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.log.Debug().Msg("Controller already stopped")
		return
	}
	c.stopped = true
	c.running.Store(false)
	c.mu.Unlock()

	c.log.Info().Msg("Stopping controller...")

	// 1. 通知循環退出並等待
	close(c.stopCh)
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.loopWg.Wait()

	// 2. 遊戲元件（此時已沒有 tick goroutine）
	if c.auto != nil {
		c.auto.Stop()
	}
	c.manager.Stop()
	c.control.Close()
	c.sfx.Stop()
	c.publishStatus()

	// 3. 資源
	c.d.Close()
	if err := c.store.Close(); err != nil {
		c.log.Error().Err(err).Msg("Failed to close progress store")
	}

	c.log.Info().Msg("Controller stopped")
}
