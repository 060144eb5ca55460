package progress

// ============================================================================
// 職責說明：
// 1. 將進度值序列化為 JSON 檔
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// 4. 以 .lock 檔案鎖避免兩個行程同時寫入（例如 run 執行中又執行 reset）
// ============================================================================

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cast"
)

const fileSchemaVersion = 1

// fileData 檔案內容；Values 保留原始 JSON 值，讀取時再轉為 int
type fileData struct {
	SchemaVer int            `json:"schema_version"`
	UpdatedAt time.Time      `json:"updated_at"`
	Values    map[string]any `json:"values"`
}

// File JSON 檔案儲存
type File struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
	data fileData
}

// NewFile 開啟（或建立）進度檔並取得檔案鎖
//
// 行為：
//   - 檔案不存在時視為首次啟動，從空狀態開始
//   - 其他行程持有鎖時回傳 ErrLocked
//   - 驗證 schema 版本
func NewFile(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create progress directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock progress file: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	f := &File{path: path, lock: lock}
	if err := f.load(); err != nil {
		lock.Unlock()
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	f.data = fileData{SchemaVer: fileSchemaVersion, Values: make(map[string]any)}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read progress: %w", err)
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}
	if data.SchemaVer != fileSchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, fileSchemaVersion)
	}
	if data.Values == nil {
		data.Values = make(map[string]any)
	}
	f.data = data
	return nil
}

// write 原子性寫入：先寫 .tmp 再 rename
func (f *File) write() error {
	f.data.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp progress: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename progress: %w", err)
	}
	return nil
}

// GetInt 讀取整數值；手動編輯成字串或浮點數的值也能讀取
func (f *File) GetInt(key string, def int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return def, ErrClosed
	}
	raw, ok := f.data.Values[key]
	if !ok {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return def, fmt.Errorf("%w: key %q: %v", ErrCorruptedFile, key, err)
	}
	return v, nil
}

func (f *File) SetInt(key string, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return ErrClosed
	}
	f.data.Values[key] = value
	return f.write()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return ErrClosed
	}
	if _, ok := f.data.Values[key]; !ok {
		return nil
	}
	delete(f.data.Values, key)
	return f.write()
}

func (f *File) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data.Values))
	for k := range f.data.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Close 釋放檔案鎖；重複呼叫無作用
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil
	}
	err := f.lock.Unlock()
	f.lock = nil
	return err
}

// Path 取得檔案路徑（用於測試與除錯）
func (f *File) Path() string { return f.path }
