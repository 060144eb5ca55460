// ============================================================================
// bounce 日誌設定
// ============================================================================
//
// Package: internal/logging
// 文件: logging.go
// 功能: 依設定建立 zerolog logger；console 給人看，json 給收集器
//
// 等級:
//   trace < debug < info < warn < error；空字串視為 info
//   debug 以下加上呼叫位置 (caller)
//
// ============================================================================

package logging

import (
	"errors"
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// 輸出格式
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	ErrUnknownFormat = errors.New("unknown log format")
)

// ParseLevel 解析日誌等級；空字串為 info
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New builds a logger writing to w in the given format.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// Configure builds the process logger on stderr and installs it as the
// zerolog global and as the target of the standard library logger.
func Configure(level, format string) (zerolog.Logger, error) {
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(stdLogWriter{logger: logger.With().Str("source", "stdlog").Logger()})
	return logger, nil
}

// stdLogWriter forwards standard library log lines at debug level.
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Msg(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
