package controller

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/bounce/internal/level"
	"github.com/ChuLiYu/bounce/internal/metrics"
	"github.com/ChuLiYu/bounce/internal/progress"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

const tick = 100 * time.Millisecond

const twoLevelPack = `
levels:
  - id: 1
    name: First
    shapes:
      - {id: a, kind: consumable, pos: {x: 3, y: 6}}
      - {id: b, kind: consumable, pos: {x: 7, y: 6}}
      - {id: wall, kind: non_consumable}
  - id: 2
    name: Second
    shapes:
      - {id: a, kind: consumable}
      - {id: b, kind: consumable}
audio_groups:
  piano_keys: [{name: c4}, {name: d4}, {name: e4}]
  drums: [{name: kick}]
`

// recordingSink collects played clips.
type recordingSink struct {
	mu    sync.Mutex
	clips []string
}

func (s *recordingSink) Play(clip types.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, clip.Name)
}

func (s *recordingSink) PlayAt(clip types.Clip, _ types.Vec2) { s.Play(clip) }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

// writePack writes a level pack into dir and returns its path.
func writePack(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "levels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// testConfig returns a config driven by step with a memory store.
func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		TickInterval:     tick,
		PackPath:         writePack(t, t.TempDir(), twoLevelPack),
		ProgressBackend:  progress.BackendMemory,
		MinTouchDistance: 1,
		BallSpeed:        10,
		Bounds:           types.Rect{Max: types.Vec2{X: 10, Y: 10}},
		AnnounceDelay:    tick,
		MaxPendingSFX:    30,
		Seed:             42,
		ShotDelay:        2 * tick,
		Logger:           zerolog.Nop(),
	}
}

// createTestController creates a test Controller
func createTestController(t *testing.T, config Config) *Controller {
	t.Helper()
	c, err := NewController(config)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

// waitFor polls check until it holds or timeout expires.
func waitFor(t *testing.T, check func() bool, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func (c *Controller) steps(n int) {
	for i := 0; i < n; i++ {
		c.step(tick)
	}
}

// ============================================================================
// Basic Functionality Tests
// ============================================================================

func TestNewController(t *testing.T) {
	c := createTestController(t, testConfig(t))

	st := c.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.Ticks)
	assert.Len(t, c.manager.Levels(), 2)
	assert.Nil(t, c.auto, "autoplay is off by default")
}

func TestNewControllerErrors(t *testing.T) {
	t.Run("missing pack", func(t *testing.T) {
		config := testConfig(t)
		config.PackPath = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := NewController(config)
		assert.Error(t, err)
	})

	t.Run("invalid pack", func(t *testing.T) {
		config := testConfig(t)
		config.PackPath = writePack(t, t.TempDir(), "levels: []\n")
		_, err := NewController(config)
		assert.ErrorIs(t, err, level.ErrInvalidPack)
	})

	t.Run("unknown backend", func(t *testing.T) {
		config := testConfig(t)
		config.ProgressBackend = "redis"
		_, err := NewController(config)
		assert.ErrorIs(t, err, progress.ErrUnknownBackend)
	})
}

func TestControllerPrepare(t *testing.T) {
	c := createTestController(t, testConfig(t))
	require.NoError(t, c.prepare())

	st := c.Status()
	assert.Equal(t, 1, st.Level)
	assert.Equal(t, "First", st.Name)
	assert.Equal(t, 2, st.Remaining)
	assert.Equal(t, level.StateStart, st.State)
	assert.True(t, st.Playing)
}

// ============================================================================
// Input Tests
// ============================================================================

func TestControllerTouchIsDeferred(t *testing.T) {
	c := createTestController(t, testConfig(t))
	require.NoError(t, c.prepare())

	require.NoError(t, c.Touch(types.TouchData{Phase: types.TouchBegan, World: types.Vec2{X: 5, Y: 1}}))
	require.NoError(t, c.Touch(types.TouchData{Phase: types.TouchEnded, World: types.Vec2{X: 5, Y: 4}}))
	assert.False(t, c.body.Moving(), "nothing runs before the tick")

	c.steps(1)
	assert.True(t, c.body.Moving())

	ok := false
	for i := 0; i < 5 && !ok; i++ {
		c.steps(1)
		ok = c.Status().State == level.StateInProgress
	}
	assert.True(t, ok, "a fired ball starts the level")
}

func TestControllerLoadLevel(t *testing.T) {
	c := createTestController(t, testConfig(t))
	require.NoError(t, c.prepare())

	require.NoError(t, c.LoadLevel(1))
	c.steps(1)
	assert.Equal(t, 2, c.Status().Level)

	// 無效索引被忽略
	require.NoError(t, c.LoadLevel(9))
	c.steps(1)
	assert.Equal(t, 2, c.Status().Level)
}

func TestControllerSetMenu(t *testing.T) {
	c := createTestController(t, testConfig(t))
	require.NoError(t, c.prepare())

	require.NoError(t, c.SetMenu(types.MenuStatus{Visible: true, Additional: true}))
	c.steps(1)
	assert.False(t, c.Status().Playing)
	assert.False(t, c.control.Listening())

	require.NoError(t, c.SetMenu(types.MenuStatus{}))
	c.steps(1)
	assert.True(t, c.Status().Playing)
	assert.True(t, c.control.Listening())
}

// ============================================================================
// Autoplay Tests
// ============================================================================

func TestControllerAutoplayClearsLevels(t *testing.T) {
	config := testConfig(t)
	config.Autoplay = true
	config.MissRate = 0
	sink := &recordingSink{}
	config.Sink = sink
	reg := prometheus.NewRegistry()
	config.Collector = metrics.NewCollector(reg)

	c := createTestController(t, config)
	require.NoError(t, c.prepare())
	c.steps(400)

	st := c.Status()
	assert.ElementsMatch(t, []int{1, 2}, st.Completed)
	assert.Equal(t, 2, st.Highest)
	assert.GreaterOrEqual(t, st.Shots, 2)
	assert.GreaterOrEqual(t, st.Hits, 4)
	assert.Equal(t, uint64(400), st.Ticks)
	assert.Greater(t, sink.count(), 0, "hits play sound effects")

	stats := c.GetStats()
	assert.Equal(t, 2, stats["completed"])
	assert.Equal(t, 400, stats["ticks"])
}

func TestControllerProgressPersists(t *testing.T) {
	config := testConfig(t)
	config.Autoplay = true
	config.MissRate = 0
	config.ProgressBackend = progress.BackendFile
	config.ProgressPath = filepath.Join(t.TempDir(), "progress.json")

	c, err := NewController(config)
	require.NoError(t, err)
	require.NoError(t, c.prepare())
	c.steps(400)
	c.Stop()

	store, err := progress.Open(progress.BackendFile, config.ProgressPath)
	require.NoError(t, err)
	v, err := store.GetInt("1", -1)
	require.NoError(t, err)
	assert.Equal(t, progress.LevelCompleted, v)
	require.NoError(t, store.Close(), "release the file lock")

	// 重新啟動時從最高完成關卡之後開始
	config.Autoplay = false
	c2 := createTestController(t, config)
	require.NoError(t, c2.prepare())
	assert.ElementsMatch(t, []int{1, 2}, c2.Status().Completed)
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestControllerStartStop(t *testing.T) {
	config := testConfig(t)
	config.TickInterval = 5 * time.Millisecond
	config.MaxTicks = 20
	c := createTestController(t, config)

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyStarted)
	assert.True(t, c.Status().Running)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("tick loop did not reach MaxTicks")
	}
	assert.Equal(t, uint64(20), c.Status().Ticks)

	c.Stop()
	c.Stop()
	assert.False(t, c.Status().Running)
	assert.ErrorIs(t, c.Start(), ErrStopped)
	assert.Error(t, c.Touch(types.TouchData{Phase: types.TouchBegan}), "dispatcher closed")
}

func TestControllerStopWithoutStart(t *testing.T) {
	c, err := NewController(testConfig(t))
	require.NoError(t, err)
	c.Stop()
	assert.ErrorIs(t, c.Start(), ErrStopped)
}

func TestControllerHotReload(t *testing.T) {
	config := testConfig(t)
	config.TickInterval = 5 * time.Millisecond
	config.Watch = true
	c := createTestController(t, config)
	require.NoError(t, c.Start())

	writePack(t, filepath.Dir(config.PackPath), `
levels:
  - id: 7
    name: Reloaded
    shapes:
      - {id: x, kind: consumable}
      - {id: y, kind: consumable}
      - {id: z, kind: consumable}
`)
	ok := waitFor(t, func() bool {
		st := c.Status()
		return st.Reloads >= 1 && st.Name == "Reloaded"
	}, 5*time.Second)
	require.True(t, ok, "pack was not reloaded")

	st := c.Status()
	assert.Equal(t, 7, st.Level)
	assert.Equal(t, 3, st.Remaining)

	// 一次存檔可能觸發多個事件，等它們都處理完
	time.Sleep(200 * time.Millisecond)
	reloads := c.Status().Reloads

	// 不合法的關卡包被拒絕，沿用目前的關卡
	writePack(t, filepath.Dir(config.PackPath), "levels: [\n")
	time.Sleep(200 * time.Millisecond)
	st = c.Status()
	assert.Equal(t, reloads, st.Reloads)
	assert.Equal(t, 7, st.Level)
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkControllerStep(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "levels.yaml")
	require.NoError(b, os.WriteFile(path, []byte(twoLevelPack), 0o644))

	c, err := NewController(Config{
		TickInterval:     tick,
		PackPath:         path,
		ProgressBackend:  progress.BackendMemory,
		MinTouchDistance: 1,
		BallSpeed:        10,
		Bounds:           types.Rect{Max: types.Vec2{X: 10, Y: 10}},
		AnnounceDelay:    tick,
		Autoplay:         true,
		MissRate:         0.2,
		ShotDelay:        2 * tick,
		Logger:           zerolog.Nop(),
	})
	require.NoError(b, err)
	defer c.Stop()
	require.NoError(b, c.prepare())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.step(tick)
	}
}
