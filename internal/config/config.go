// ============================================================================
// bounce 設定
// ============================================================================
//
// Package: internal/config
// 文件: config.go
// 功能: 以 koanf 疊加多個來源並驗證最終設定
//
// 來源優先順序（後者覆蓋前者）:
//   1. 內建預設值 (confmap)
//   2. YAML 設定檔 (file + yaml parser)；路徑為空或檔案不存在時略過
//   3. 環境變數 BOUNCE_*（BOUNCE_LOG_LEVEL → log.level）
//   4. 命令列旗標 (posflag)；只有使用者明確指定的旗標會覆蓋
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ChuLiYu/bounce/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// EnvPrefix 環境變數前綴
const EnvPrefix = "BOUNCE_"

// ============================================================================
// 資料結構定義
// ============================================================================

// Config is the root configuration of the runtime.
type Config struct {
	Tick     TickConfig     `koanf:"tick"`
	Game     GameConfig     `koanf:"game"`
	Progress ProgressConfig `koanf:"progress"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Health   HealthConfig   `koanf:"health"`
	Log      LogConfig      `koanf:"log"`
	Sim      SimConfig      `koanf:"sim"`
}

// TickConfig 遊戲迴圈
type TickConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
	// MaxTicks 為 0 時持續執行直到收到停止訊號
	MaxTicks int `koanf:"max_ticks" validate:"gte=0"`
}

// GameConfig 關卡與玩家
type GameConfig struct {
	Pack             string        `koanf:"pack" validate:"required"`
	Watch            bool          `koanf:"watch"`
	MinTouchDistance float64       `koanf:"min_touch_distance" validate:"gt=0"`
	BallSpeed        float64       `koanf:"ball_speed" validate:"gt=0"`
	Width            float64       `koanf:"width" validate:"gt=0"`
	Height           float64       `koanf:"height" validate:"gt=0"`
	AnnounceDelay    time.Duration `koanf:"announce_delay" validate:"gte=0"`
	MaxPendingSFX    int           `koanf:"max_pending_sfx" validate:"gte=1"`
}

// Bounds 可視範圍
func (g GameConfig) Bounds() types.Rect {
	return types.Rect{Max: types.Vec2{X: g.Width, Y: g.Height}}
}

// ProgressConfig 完成紀錄儲存
type ProgressConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory file sqlite"`
	Path    string `koanf:"path" validate:"required_unless=Backend memory"`
}

// MetricsConfig Prometheus 端點
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port" validate:"min=1,max=65535"`
}

// HealthConfig gRPC health 服務
type HealthConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port" validate:"min=1,max=65535"`
}

// LogConfig 日誌
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// SimConfig 自動玩家；MissRate 為每一發沒有擊中形狀的機率
type SimConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Seed      uint64        `koanf:"seed"`
	MissRate  float64       `koanf:"miss_rate" validate:"gte=0,lte=1"`
	ShotDelay time.Duration `koanf:"shot_delay" validate:"gte=0"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Tick: TickConfig{Interval: 16 * time.Millisecond},
		Game: GameConfig{
			Pack:             "configs/levels.yaml",
			MinTouchDistance: 1.0,
			BallSpeed:        12,
			Width:            20,
			Height:           32,
			AnnounceDelay:    1500 * time.Millisecond,
			MaxPendingSFX:    30,
		},
		Progress: ProgressConfig{Backend: "file", Path: "data/progress.json"},
		Metrics:  MetricsConfig{Enabled: false, Port: 9090},
		Health:   HealthConfig{Enabled: false, Port: 50051},
		Log:      LogConfig{Level: "info", Format: "console"},
		Sim: SimConfig{
			Enabled:   true,
			Seed:      1,
			MissRate:  0.2,
			ShotDelay: 300 * time.Millisecond,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for the confmap provider.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"tick.interval":  def.Tick.Interval,
		"tick.max_ticks": def.Tick.MaxTicks,

		"game.pack":               def.Game.Pack,
		"game.watch":              def.Game.Watch,
		"game.min_touch_distance": def.Game.MinTouchDistance,
		"game.ball_speed":         def.Game.BallSpeed,
		"game.width":              def.Game.Width,
		"game.height":             def.Game.Height,
		"game.announce_delay":     def.Game.AnnounceDelay,
		"game.max_pending_sfx":    def.Game.MaxPendingSFX,

		"progress.backend": def.Progress.Backend,
		"progress.path":    def.Progress.Path,

		"metrics.enabled": def.Metrics.Enabled,
		"metrics.port":    def.Metrics.Port,

		"health.enabled": def.Health.Enabled,
		"health.port":    def.Health.Port,

		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"sim.enabled":    def.Sim.Enabled,
		"sim.seed":       def.Sim.Seed,
		"sim.miss_rate":  def.Sim.MissRate,
		"sim.shot_delay": def.Sim.ShotDelay,
	}
}

// ============================================================================
// 命令列旗標
// ============================================================================

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"pack":          "game.pack",
	"watch":         "game.watch",
	"tick":          "tick.interval",
	"max-ticks":     "tick.max_ticks",
	"progress":      "progress.backend",
	"progress-path": "progress.path",
	"metrics":       "metrics.enabled",
	"metrics-port":  "metrics.port",
	"health":        "health.enabled",
	"health-port":   "health.port",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"autoplay":      "sim.enabled",
	"seed":          "sim.seed",
}

// BindFlags defines the flags that override config keys.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()
	flags.String("pack", def.Game.Pack, "level pack YAML file")
	flags.Bool("watch", def.Game.Watch, "reload the level pack when the file changes")
	flags.Duration("tick", def.Tick.Interval, "tick interval")
	flags.Int("max-ticks", def.Tick.MaxTicks, "stop after this many ticks (0 = run until interrupted)")
	flags.String("progress", def.Progress.Backend, "progress backend: memory, file, sqlite")
	flags.String("progress-path", def.Progress.Path, "progress file or database path")
	flags.Bool("metrics", def.Metrics.Enabled, "serve prometheus metrics")
	flags.Int("metrics-port", def.Metrics.Port, "metrics port")
	flags.Bool("health", def.Health.Enabled, "serve the gRPC health service")
	flags.Int("health-port", def.Health.Port, "gRPC health port")
	flags.String("log-level", def.Log.Level, "log level: trace, debug, info, warn, error")
	flags.String("log-format", def.Log.Format, "log format: console, json")
	flags.Bool("autoplay", def.Sim.Enabled, "drive the game with the scripted autoplayer")
	flags.Uint64("seed", def.Sim.Seed, "autoplayer random seed")
}

// ============================================================================
// 載入
// ============================================================================

// Load merges defaults, the YAML file at path, BOUNCE_* environment
// variables and the changed flags, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error checking config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("error loading command-line flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envKey turns BOUNCE_GAME_MIN_TOUCH_DISTANCE into game.min_touch_distance:
// the first underscore separates the section, the rest belong to the key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}
