// ============================================================================
// bounce 關卡管理器
// ============================================================================
//
// Package: internal/level
// 文件: manager.go
// 功能: 載入完成紀錄、選擇起始關卡、每 tick 驅動目前關卡、完成後前進到下一關
//
// 進度格式:
//   store key = 關卡 id 字串，value = 1 代表已完成
//
// 起始關卡:
//   最高已完成關卡的下一關（關卡 id 從 1 開始，所以索引 = 最高已完成 id）；
//   超出範圍時回到第一關；沒有任何完成紀錄時從第一關開始
//
// 完成流程:
//   LevelCompleteAction.Enter → OnLevelComplete()
//     → 寫入完成旗標、更新最高完成關卡
//     → 啟動關卡數字動畫 Job（AnnounceDelay）
//     → 動畫結束：載入下一關（最後一關之後回到第一關），發出 NewLevelLoaded
//
// ============================================================================

package level

import (
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/audio"
	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/internal/fsm"
	"github.com/ChuLiYu/bounce/internal/jobmanager"
	"github.com/ChuLiYu/bounce/internal/progress"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrNoLevels = errors.New("no levels to play")
)

// 音效群組名稱
const (
	ConsumableGroup    = "piano_keys"
	NonConsumableGroup = "drums"
)

// AnnounceJobID 關卡數字動畫 Job 的 id
const AnnounceJobID = "level_number_animation"

// DefaultAnnounceDelay 預設關卡數字動畫長度
const DefaultAnnounceDelay = 1500 * time.Millisecond

// Status is a point-in-time view of the manager.
type Status struct {
	Level     int         `json:"level"`
	Name      string      `json:"name"`
	State     fsm.StateID `json:"state"`
	Remaining int         `json:"remaining"`
	Highest   int         `json:"highest_completed"`
	Completed []int       `json:"completed"`
	Playing   bool        `json:"playing"`
}

// Manager sequences the levels.
type Manager struct {
	levels  []*Level
	current int

	store   progress.Store
	library *audio.Library
	signals *event.Signals
	jobs    *jobmanager.JobManager

	consumableClips []types.Clip
	otherClips      []types.Clip

	highest       int
	shouldUpdate  bool
	started       bool
	announceDelay time.Duration

	loaded    *event.Hub[*Level]
	completed *event.Hub[*Level]
	menuTok   event.Token
	log       zerolog.Logger
}

// ManagerOption 設定 Manager
type ManagerOption func(*Manager)

// WithManagerLogger 設定 logger
func WithManagerLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithAnnounceDelay 設定關卡數字動畫長度
func WithAnnounceDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.announceDelay = d }
}

// WithLibrary 設定音效庫；沒有設定時擊中形狀不播放音效
func WithLibrary(lib *audio.Library) ManagerOption {
	return func(m *Manager) { m.library = lib }
}

// NewManager orders levels by id. Nothing is loaded until Start.
func NewManager(levels []*Level, store progress.Store, d *coroutine.Dispatcher, signals *event.Signals, opts ...ManagerOption) *Manager {
	sorted := slices.Clone(levels)
	slices.SortStableFunc(sorted, func(a, b *Level) int { return a.ID() - b.ID() })

	m := &Manager{
		levels:        sorted,
		store:         store,
		signals:       signals,
		announceDelay: DefaultAnnounceDelay,
		shouldUpdate:  true,
		loaded:        event.NewHub[*Level](),
		completed:     event.NewHub[*Level](),
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.jobs = jobmanager.NewJobManager(d, jobmanager.WithLogger(m.log))
	return m
}

// ============================================================================
// 生命週期
// ============================================================================

// Start reads the completion flags, picks the starting level and enters it.
func (m *Manager) Start() error {
	if len(m.levels) == 0 {
		return ErrNoLevels
	}
	if m.library != nil {
		m.consumableClips = m.library.Group(ConsumableGroup)
		m.otherClips = m.library.Group(NonConsumableGroup)
	}

	m.highest = 0
	for _, l := range m.levels {
		v, err := m.store.GetInt(ProgressKey(l.ID()), -1)
		if errors.Is(err, progress.ErrCorruptedFile) {
			m.log.Warn().Err(err).Int("level", l.ID()).Msg("unreadable completion flag, treating level as incomplete")
			v = -1
		} else if err != nil {
			return err
		}
		l.SetCompleted(v == progress.LevelCompleted)
		if l.Completed() && l.ID() > m.highest {
			m.highest = l.ID()
		}
	}

	m.current = m.indexOf(m.highest) + 1
	if m.current >= len(m.levels) {
		m.current = 0
	}
	m.menuTok = m.signals.Menu.Subscribe(m.onMenu)
	m.started = true
	m.shouldUpdate = true

	m.log.Info().
		Int("levels", len(m.levels)).
		Int("highest_completed", m.highest).
		Int("start", m.Current().ID()).
		Msg("level manager started")
	m.Current().Enter(m, m.consumableClips, m.otherClips)
	return nil
}

// Stop leaves the current level and kills the pending announcement.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	m.started = false
	m.jobs.KillAll()
	m.signals.Menu.Unsubscribe(m.menuTok)
	m.Current().Exit()
}

// Update drives the current level unless a menu covers the game.
func (m *Manager) Update() {
	if !m.started || !m.shouldUpdate {
		return
	}
	m.Current().Update()
}

// LoadLevel moves to the level at index. Invalid indexes are ignored.
func (m *Manager) LoadLevel(index int) {
	if !m.started || !m.valid(index) {
		return
	}
	m.log.Info().Int("index", index).Msg("load level")
	m.jobs.KillJob(AnnounceJobID)
	m.moveTo(index)
}

// OnLevelComplete persists the flag for the current level and starts the
// level number announcement; the next level loads when it ends.
func (m *Manager) OnLevelComplete() {
	cur := m.Current()
	if err := m.store.SetInt(ProgressKey(cur.ID()), progress.LevelCompleted); err != nil {
		m.log.Error().Err(err).Int("level", cur.ID()).Msg("failed to store level completion")
	}
	cur.SetCompleted(true)
	if cur.ID() > m.highest {
		m.highest = cur.ID()
	}
	m.log.Info().Int("level", cur.ID()).Int("next", m.Levels()[m.next()].ID()).Msg("level complete")
	m.completed.Publish(cur)

	delay := m.announceDelay
	_, err := m.jobs.AddRoutine(AnnounceJobID, func(yield func(coroutine.Instruction) bool) {
		if !yield(coroutine.WaitForSeconds(delay)) {
			return
		}
		m.advance()
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("level announcement already pending")
		return
	}
	m.jobs.StartJob(AnnounceJobID)
}

// ResetProgress clears every stored completion flag.
func (m *Manager) ResetProgress() error {
	for _, l := range m.levels {
		if err := m.store.Delete(ProgressKey(l.ID())); err != nil {
			return err
		}
		l.SetCompleted(false)
	}
	m.highest = 0
	return nil
}

func (m *Manager) advance() {
	m.moveTo(m.next())
	m.loaded.Publish(m.Current())
}

func (m *Manager) next() int {
	n := m.current + 1
	if n >= len(m.levels) {
		m.log.Info().Msg("all levels played, wrapping around")
		n = 0
	}
	return n
}

func (m *Manager) moveTo(index int) {
	m.Current().Exit()
	m.current = index
	m.Current().Enter(m, m.consumableClips, m.otherClips)
}

func (m *Manager) onMenu(s types.MenuStatus) {
	playing := !s.Additional
	m.shouldUpdate = playing
	if m.started {
		m.Current().SetActive(playing)
	}
}

// ============================================================================
// 事件訂閱
// ============================================================================

// OnNewLevelLoaded subscribes to level changes caused by completion.
func (m *Manager) OnNewLevelLoaded(h func(*Level)) event.Token { return m.loaded.Subscribe(h) }

// OnLevelCompleted subscribes to level completions.
func (m *Manager) OnLevelCompleted(h func(*Level)) event.Token { return m.completed.Subscribe(h) }

// ============================================================================
// 查詢方法
// ============================================================================

// HighestCompletedLevelID returns 0 when no level is complete.
func (m *Manager) HighestCompletedLevelID() int { return m.highest }

// IsLevelComplete reports the flag of the level with id; unknown ids are
// not complete.
func (m *Manager) IsLevelComplete(id int) bool {
	i := m.indexOf(id)
	return i >= 0 && m.levels[i].Completed()
}

func (m *Manager) Levels() []*Level { return m.levels }

// Current returns nil when there are no levels.
func (m *Manager) Current() *Level {
	if !m.valid(m.current) {
		return nil
	}
	return m.levels[m.current]
}

func (m *Manager) CurrentIndex() int { return m.current }

// Jobs 管理器自己的 Job（關卡數字動畫）
func (m *Manager) Jobs() *jobmanager.JobManager { return m.jobs }

// Status 目前狀態
func (m *Manager) Status() Status {
	st := Status{Highest: m.highest, Playing: m.started && m.shouldUpdate}
	for _, l := range m.levels {
		if l.Completed() {
			st.Completed = append(st.Completed, l.ID())
		}
	}
	if cur := m.Current(); cur != nil {
		st.Level = cur.ID()
		st.Name = cur.Name()
		st.State = cur.State()
		st.Remaining = cur.Remaining()
	}
	return st
}

func (m *Manager) valid(i int) bool { return i >= 0 && i < len(m.levels) }

func (m *Manager) indexOf(id int) int {
	for i, l := range m.levels {
		if l.ID() == id {
			return i
		}
	}
	return -1
}

// ProgressKey is the store key of the completion flag of level id.
func ProgressKey(id int) string { return strconv.Itoa(id) }
