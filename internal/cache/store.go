package cache

import (
	"context"
	"errors"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<sha256(key)>    # 原始字节
//
// 目录内没有索引或 manifest，列目录是枚举条目的唯一方式。
type Store interface {
	// Get 返回 key 对应的完整内容。条目不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 写入（或覆盖）key 对应的内容。实现需通过临时文件 + rename 保证原子性，
	// 并在失败时清理临时文件。
	Put(ctx context.Context, key string, blob []byte) error

	// Remove 删除单个条目，条目不存在时不报错。
	Remove(ctx context.Context, key string) error

	// Clear 删除缓存目录下的所有文件，但保留目录本身。部分失败时返回
	// 已删除/失败数量以及合并后的错误。
	Clear(ctx context.Context) (ClearResult, error)

	// Path 返回 key 对应的绝对文件路径，仅用于诊断。
	Path(key string) string

	// Dir 返回缓存目录。
	Dir() string

	// Close 取消内存压力订阅。
	Close() error
}

// ClearResult 记录一次清空操作的结果。
type ClearResult struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Observer 接收清空结果，供 metrics 等观测组件使用。
type Observer interface {
	ObserveClear(reason string, result ClearResult, err error)
}

// PressureSource 表示宿主环境的内存压力信号源。Subscribe 返回的函数用于取消订阅。
type PressureSource interface {
	Subscribe(handler func()) (unsubscribe func())
}

// Clear reasons reported to observers and logs.
const (
	ReasonManual         = "manual"
	ReasonMemoryPressure = "memory_pressure"
)

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
