// ============================================================================
// bounce 自動玩家
// ============================================================================
//
// Package: internal/sim
// 文件: autoplayer.go
// 功能: 以協程模擬玩家：拖曳發射、飛行中擊中形狀、等待球離開畫面
//
// 一發的流程（一個 Job）:
//   1. 等待可以出手：觸控正在監聽、球沒有在飛、關卡在 Start 或 InProgress
//   2. Began（Placed）→ 等待 ShotDelay → Moved + Ended（Fired，球發射）
//   3. 每隔兩個 tick 擊中一個形狀；每個目標以 MissRate 的機率錯過
//   4. 等待球停下（離開畫面或被隱藏）
//
// 佇列:
//   一發包成一個 Job 放進 Repeat 的 JobQueue；每個循環以 Clone 重新產生乾淨的 Job。
//
// ============================================================================

package sim

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/jobqueue"
	"github.com/ChuLiYu/bounce/internal/level"
	"github.com/ChuLiYu/bounce/pkg/types"
)

var (
	ErrAlreadyRunning = errors.New("autoplayer already running")
)

// ShotJobID 每一發的 Job id
const ShotJobID = "autoplay_shot"

// Game exposes the level being played.
type Game interface {
	Current() *level.Level
}

// Touchable receives synthetic input.
type Touchable interface {
	Touch(td types.TouchData)
	Listening() bool
}

// Ball reports whether the ball is in flight.
type Ball interface {
	Moving() bool
}

// Autoplayer plays the game through the public input surface.
type Autoplayer struct {
	d       *coroutine.Dispatcher
	game    Game
	control Touchable
	ball    Ball
	bounds  types.Rect

	rng        *rand.Rand
	missRate   float64
	shotDelay  time.Duration
	dragLength float64

	queue   *jobqueue.JobQueue
	running bool
	shots   int
	hits    int
	log     zerolog.Logger
}

// Option 設定 Autoplayer
type Option func(*Autoplayer)

// WithSeed 固定亂數種子
func WithSeed(seed uint64) Option {
	return func(a *Autoplayer) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithMissRate 設定每個目標被錯過的機率
func WithMissRate(p float64) Option {
	return func(a *Autoplayer) { a.missRate = p }
}

// WithShotDelay 設定按下到放開的時間
func WithShotDelay(d time.Duration) Option {
	return func(a *Autoplayer) { a.shotDelay = d }
}

// WithDragLength 設定拖曳長度（需大於觸控的最小距離）
func WithDragLength(l float64) Option {
	return func(a *Autoplayer) { a.dragLength = l }
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(a *Autoplayer) { a.log = l }
}

// New builds an idle autoplayer; Start enqueues the shot loop.
func New(d *coroutine.Dispatcher, game Game, control Touchable, ball Ball, bounds types.Rect, opts ...Option) *Autoplayer {
	a := &Autoplayer{
		d:          d,
		game:       game,
		control:    control,
		ball:       ball,
		bounds:     bounds,
		rng:        rand.New(rand.NewPCG(1, 2)),
		shotDelay:  300 * time.Millisecond,
		dragLength: 3,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.queue = jobqueue.New(d, jobqueue.WithLogger(a.log))
	return a
}

// ============================================================================
// 生命週期
// ============================================================================

// Start begins shooting until Stop.
func (a *Autoplayer) Start() error {
	if a.running {
		return ErrAlreadyRunning
	}
	if _, err := a.queue.EnqueueRoutine(ShotJobID, a.shot); err != nil {
		return err
	}
	a.running = true
	a.queue.Repeat().Start()
	a.log.Info().Float64("miss_rate", a.missRate).Msg("autoplayer started")
	return nil
}

// Stop kills the shot in progress and ends the loop.
func (a *Autoplayer) Stop() {
	if !a.running {
		return
	}
	a.running = false
	a.queue.StopRepeat().KillAll()
	a.log.Info().Int("shots", a.shots).Int("hits", a.hits).Msg("autoplayer stopped")
}

// ============================================================================
// 單發
// ============================================================================

func (a *Autoplayer) shot(yield func(coroutine.Instruction) bool) {
	if !yield(coroutine.WaitUntil(a.ready)) {
		return
	}

	origin := types.Vec2{X: (a.bounds.Min.X + a.bounds.Max.X) / 2, Y: a.bounds.Min.Y + 1}
	a.touch(types.TouchBegan, origin)
	if !yield(coroutine.WaitForSeconds(a.shotDelay)) {
		return
	}

	// 向上 45° 到 135° 之間
	angle := math.Pi/4 + a.rng.Float64()*math.Pi/2
	aim := origin.Add(types.Vec2{X: math.Cos(angle), Y: math.Sin(angle)}.Scale(a.dragLength))
	a.touch(types.TouchMoved, aim)
	a.touch(types.TouchEnded, aim)
	if !a.ball.Moving() {
		return
	}
	a.shots++

	for _, id := range a.targets() {
		if !yield(coroutine.WaitTicks(2)) {
			return
		}
		if lvl := a.game.Current(); lvl != nil && lvl.HitShape(id) {
			a.hits++
		}
	}

	yield(coroutine.WaitUntil(func() bool { return !a.ball.Moving() }))
}

func (a *Autoplayer) ready() bool {
	lvl := a.game.Current()
	if lvl == nil || !a.control.Listening() || a.ball.Moving() {
		return false
	}
	st := lvl.State()
	return st == level.StateStart || st == level.StateInProgress
}

func (a *Autoplayer) touch(phase types.TouchPhase, at types.Vec2) {
	a.control.Touch(types.TouchData{Phase: phase, Screen: at, World: at})
}

// targets picks the shapes this shot will hit: an occasional
// non-consumable, then the remaining consumables in random order.
func (a *Autoplayer) targets() []string {
	lvl := a.game.Current()
	if lvl == nil {
		return nil
	}
	var consumables, others []string
	for _, s := range lvl.Shapes() {
		if !s.Interactable() {
			continue
		}
		if s.Kind == level.Consumable {
			consumables = append(consumables, s.ID)
		} else {
			others = append(others, s.ID)
		}
	}

	var out []string
	if len(others) > 0 && a.rng.IntN(2) == 0 {
		out = append(out, others[a.rng.IntN(len(others))])
	}
	a.rng.Shuffle(len(consumables), func(i, j int) {
		consumables[i], consumables[j] = consumables[j], consumables[i]
	})
	for _, id := range consumables {
		if a.rng.Float64() < a.missRate {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ============================================================================
// 查詢方法
// ============================================================================

func (a *Autoplayer) Running() bool { return a.running }

// Shots 已發射的次數
func (a *Autoplayer) Shots() int { return a.shots }

// Hits 成功擊中的次數
func (a *Autoplayer) Hits() int { return a.hits }

// Queue 單發 Job 的佇列（供指標訂閱）
func (a *Autoplayer) Queue() *jobqueue.JobQueue { return a.queue }
