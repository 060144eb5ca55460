// ============================================================================
// bounce CLI - 命令列介面
// ============================================================================
//
// Package: internal/cli
// 文件: cli.go
// 功能: 以 Cobra 提供 run / status / reset / levels 指令
//
// 指令結構:
//   bounce                         # 根指令
//   ├── run                        # 執行遊戲迴圈
//   │   └── --pack, --tick, ...    # 覆蓋設定檔（見 config.BindFlags）
//   ├── status                     # 顯示關卡完成進度
//   ├── reset                      # 清除完成紀錄
//   ├── levels                     # 列出關卡包內容
//   ├── --config, -c               # 設定檔（預設 configs/default.yaml）
//   └── --version
//
// run 指令流程:
//   1. 載入設定（預設值 → 設定檔 → BOUNCE_* → 旗標）
//   2. 設定 zerolog
//   3. 建立 Controller（含 metrics Collector）
//   4. 啟動 metrics HTTP 與 gRPC health（如果啟用）
//   5. 等待 SIGINT / SIGTERM、MaxTicks 或伺服器錯誤
//   6. 依序關閉 health → metrics → Controller
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/bounce/internal/config"
	"github.com/ChuLiYu/bounce/internal/controller"
	"github.com/ChuLiYu/bounce/internal/level"
	"github.com/ChuLiYu/bounce/internal/logging"
	"github.com/ChuLiYu/bounce/internal/metrics"
	"github.com/ChuLiYu/bounce/internal/progress"
	"github.com/ChuLiYu/bounce/internal/server"
)

var configFile string

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	headColor = color.New(color.FgCyan, color.Bold)
)

// BuildCLI 建立根指令
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bounce",
		Short: "bounce: a tick-driven level runtime for a slingshot ball game",
		Long: `bounce runs a sequence of levels on a deterministic tick loop:
- coroutine jobs, queues and managers
- reason/action state machines per level
- persistent level completion
- Prometheus metrics and gRPC health`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildResetCommand())
	rootCmd.AddCommand(buildLevelsCommand())

	return rootCmd
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the game loop",
		Long:  "Run the level sequence, driven by the autoplayer unless --autoplay=false",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runGame(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// controllerConfig maps the loaded configuration onto the controller.
func controllerConfig(cfg *config.Config, col *metrics.Collector, log zerolog.Logger) controller.Config {
	return controller.Config{
		TickInterval:     cfg.Tick.Interval,
		MaxTicks:         cfg.Tick.MaxTicks,
		PackPath:         cfg.Game.Pack,
		Watch:            cfg.Game.Watch,
		ProgressBackend:  cfg.Progress.Backend,
		ProgressPath:     cfg.Progress.Path,
		MinTouchDistance: cfg.Game.MinTouchDistance,
		BallSpeed:        cfg.Game.BallSpeed,
		Bounds:           cfg.Game.Bounds(),
		AnnounceDelay:    cfg.Game.AnnounceDelay,
		MaxPendingSFX:    cfg.Game.MaxPendingSFX,
		Autoplay:         cfg.Sim.Enabled,
		Seed:             cfg.Sim.Seed,
		MissRate:         cfg.Sim.MissRate,
		ShotDelay:        cfg.Sim.ShotDelay,
		Collector:        col,
		Logger:           log,
	}
}

func runGame(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logging.Configure(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	var col *metrics.Collector
	if cfg.Metrics.Enabled {
		col = metrics.NewCollector(nil)
	}

	ctrl, err := controller.NewController(controllerConfig(cfg, col, log))
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	errc := make(chan error, 2)

	// Metrics 伺服器
	var metricsSrv *metrics.Server
	if col != nil {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port, col)
		metricsSrv.Start(errc)
		log.Info().Str("addr", metricsSrv.Addr()).Msg("metrics server started")
	}

	// gRPC health
	var healthSrv *server.Server
	if cfg.Health.Enabled {
		healthSrv = server.NewServer(cfg.Health.Port, ctrl, server.WithLogger(log.With().Str("component", "health").Logger()))
		if err := healthSrv.Start(errc); err != nil {
			ctrl.Stop()
			return err
		}
	}

	if err := ctrl.Start(); err != nil {
		ctrl.Stop()
		return fmt.Errorf("failed to start controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal, stopping gracefully...")
	case <-ctrl.Done():
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("server failed")
	}

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
		cancel()
	}
	ctrl.Stop()

	printSummary(out, ctrl.Status())
	return runErr
}

func printSummary(w io.Writer, st controller.Status) {
	fmt.Fprintln(w)
	headColor.Fprintln(w, "Session summary")
	fmt.Fprintf(w, "  ├─ Ticks:          %d (%s game time)\n", st.Ticks, st.GameTime)
	fmt.Fprintf(w, "  ├─ Current level:  %d %s\n", st.Level, st.Name)
	fmt.Fprintf(w, "  ├─ Completed:      %v\n", st.Completed)
	fmt.Fprintf(w, "  ├─ Shots / hits:   %d / %d\n", st.Shots, st.Hits)
	fmt.Fprintf(w, "  └─ SFX dropped:    %d\n", st.SFXDropped)
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show level completion status",
		Long:  "Display the level pack, stored completion flags and enabled endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showStatus(cmd.OutOrStdout(), cfg)
		},
	}
}

func showStatus(w io.Writer, cfg *config.Config) error {
	pack, err := level.LoadPack(cfg.Game.Pack)
	if err != nil {
		return err
	}
	store, err := progress.Open(cfg.Progress.Backend, cfg.Progress.Path)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer store.Close()

	headColor.Fprintln(w, "bounce status")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  ├─ Config file:  %s\n", configFile)
	fmt.Fprintf(w, "  ├─ Level pack:   %s\n", cfg.Game.Pack)
	fmt.Fprintf(w, "  ├─ Progress:     %s %s\n", cfg.Progress.Backend, cfg.Progress.Path)
	fmt.Fprintf(w, "  └─ Tick:         %s\n", cfg.Tick.Interval)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Levels:")
	done := 0
	for i, l := range pack.Levels {
		branch := "├─"
		if i == len(pack.Levels)-1 {
			branch = "└─"
		}
		v, err := store.GetInt(level.ProgressKey(l.ID), -1)
		if err != nil && !errors.Is(err, progress.ErrCorruptedFile) {
			return err
		}
		fmt.Fprintf(w, "  %s %3d %-20s ", branch, l.ID, l.Name)
		if v == progress.LevelCompleted {
			done++
			okColor.Fprintln(w, "completed")
		} else {
			warnColor.Fprintln(w, "open")
		}
	}
	fmt.Fprintf(w, "\nCompleted %d/%d\n\n", done, len(pack.Levels))

	fmt.Fprintln(w, "Endpoints:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  ├─ Metrics: enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(w, "  ├─ Metrics: disabled")
	}
	if cfg.Health.Enabled {
		fmt.Fprintf(w, "  └─ Health:  enabled on :%d\n", cfg.Health.Port)
	} else {
		fmt.Fprintln(w, "  └─ Health:  disabled")
	}
	return nil
}

// ============================================================================
// reset
// ============================================================================

func buildResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear stored level completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return resetProgress(cmd.OutOrStdout(), cfg)
		},
	}
}

func resetProgress(w io.Writer, cfg *config.Config) error {
	store, err := progress.Open(cfg.Progress.Backend, cfg.Progress.Path)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer store.Close()

	keys, err := store.Keys()
	if err != nil {
		return err
	}
	if err := progress.Reset(store); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	okColor.Fprintf(w, "cleared %d completion flags\n", len(keys))
	return nil
}

// ============================================================================
// levels
// ============================================================================

func buildLevelsCommand() *cobra.Command {
	var packPath string
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List the levels of a pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			if packPath == "" {
				cfg, err := config.Load(configFile, nil)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				packPath = cfg.Game.Pack
			}
			return listLevels(cmd.OutOrStdout(), packPath)
		},
	}
	cmd.Flags().StringVarP(&packPath, "pack", "p", "", "level pack file (default from config)")
	return cmd
}

func listLevels(w io.Writer, path string) error {
	pack, err := level.LoadPack(path)
	if err != nil {
		return err
	}
	lib, err := pack.Library()
	if err != nil {
		return err
	}

	headColor.Fprintf(w, "%s: %d levels\n", path, len(pack.Levels))
	for _, l := range pack.Levels {
		consumable, other := 0, 0
		for _, s := range l.Shapes {
			if s.Kind == level.Consumable {
				consumable++
			} else {
				other++
			}
		}
		fmt.Fprintf(w, "  %3d %-20s consumable=%d other=%d\n", l.ID, l.Name, consumable, other)
	}
	fmt.Fprintf(w, "audio: %d consumable clips, %d other clips\n",
		lib.ClipCount(level.ConsumableGroup), lib.ClipCount(level.NonConsumableGroup))
	return nil
}
