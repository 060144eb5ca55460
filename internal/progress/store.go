// ============================================================================
// bounce 進度儲存
// ============================================================================
//
// Package: internal/progress
// 文件: store.go
// 功能: 以 key → int 的方式保存每一關的完成旗標
//
// 格式:
//   key   = 關卡 id 的十進位字串（"1", "2", ...）
//   value = 1 代表已完成；不存在或其他值代表未完成
//
// 後端:
//   memory - 測試與 --ephemeral 執行
//   file   - JSON 檔，原子性寫入 + 檔案鎖
//   sqlite - modernc.org/sqlite，單連線
//
// ============================================================================

package progress

import (
	"errors"
	"fmt"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrUnknownBackend      = errors.New("unknown progress backend")
	ErrCorruptedFile       = errors.New("progress file is corrupted")
	ErrIncompatibleVersion = errors.New("progress schema version is incompatible")
	ErrLocked              = errors.New("progress file is locked by another process")
	ErrClosed              = errors.New("progress store is closed")
)

// LevelCompleted 已完成旗標值
const LevelCompleted = 1

// Store is a flat key → int persistence layer.
type Store interface {
	// GetInt returns def when key is absent.
	GetInt(key string, def int) (int, error)
	SetInt(key string, value int) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}

// 後端名稱
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open builds the store for backend at path. path is ignored by the memory
// backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Reset deletes every key in s.
func Reset(s Store) error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}
	return nil
}
