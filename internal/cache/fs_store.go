package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	defaultDirPerm  os.FileMode = 0o755
	defaultFilePerm os.FileMode = 0o644

	// DefaultDirName 是平台缓存根目录下的子目录。
	DefaultDirName = "recipe-hub/images"
)

// Option 调整 NewStore 的可选行为。
type Option func(*fileStore)

// WithDirPerm 设置缓存目录权限。
func WithDirPerm(mode os.FileMode) Option {
	return func(s *fileStore) { s.dirPerm = mode }
}

// WithFilePerm 设置缓存文件权限。
func WithFilePerm(mode os.FileMode) Option {
	return func(s *fileStore) { s.filePerm = mode }
}

// WithLogger 指定内存压力清理时使用的 logger。
func WithLogger(logger *logrus.Logger) Option {
	return func(s *fileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver 注入清空结果的观测者。
func WithObserver(observer Observer) Option {
	return func(s *fileStore) { s.observer = observer }
}

// WithPressureSource 在构造时订阅内存压力信号，Close 时取消订阅。
func WithPressureSource(source PressureSource) Option {
	return func(s *fileStore) { s.pressure = source }
}

// ResolveDir 返回最终缓存目录：baseDir 为空时使用平台缓存根目录。
func ResolveDir(baseDir string) (string, error) {
	if baseDir == "" {
		root, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolve platform cache root: %w", err)
		}
		baseDir = filepath.Join(root, filepath.FromSlash(DefaultDirName))
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return abs, nil
}

// NewStore 以 baseDir 为缓存目录构建磁盘缓存，整个进程复用一份实例。
// 目录无法解析或创建时返回错误，调用方应视为启动失败。
func NewStore(baseDir string, opts ...Option) (Store, error) {
	s := &fileStore{
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
		logger:   logrus.StandardLogger(),
		locks:    make(map[string]*entryLock),
	}
	for _, opt := range opts {
		opt(s)
	}

	dir, err := ResolveDir(baseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s.dir = dir

	if s.pressure != nil {
		s.unsubscribe = s.pressure.Subscribe(s.handlePressure)
	}
	return s, nil
}

// fileStore 通过 entryLock 避免同一 key 并发写入，所有条目平铺在 dir 下。
type fileStore struct {
	dir      string
	dirPerm  os.FileMode
	filePerm os.FileMode
	logger   *logrus.Logger
	observer Observer
	pressure PressureSource

	mu    sync.Mutex
	locks map[string]*entryLock

	closeOnce   sync.Once
	unsubscribe func()
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := s.entryPath(key)
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return data, nil
}

func (s *fileStore) Put(ctx context.Context, key string, blob []byte) error {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath := s.entryPath(key)
	tempFile, err := os.CreateTemp(s.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(blob)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tempName)
		return fmt.Errorf("write cache file: %w", err)
	}

	if err := os.Chmod(tempName, s.filePerm); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("chmod cache file: %w", err)
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	unlock := s.lockEntry(key)
	defer unlock()

	if err := os.Remove(s.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Clear(ctx context.Context) (ClearResult, error) {
	var result ClearResult

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return result, fmt.Errorf("list cache dir: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		target := filepath.Join(s.dir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			result.Failed++
			errs = append(errs, err)
			continue
		}
		result.Removed++
	}
	return result, errors.Join(errs...)
}

func (s *fileStore) Path(key string) string {
	return s.entryPath(key)
}

func (s *fileStore) Dir() string {
	return s.dir
}

func (s *fileStore) Close() error {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
	return nil
}

// handlePressure 在收到内存压力信号时清空缓存，结果只记录日志与观测，不向外传播。
func (s *fileStore) handlePressure() {
	s.logger.WithFields(logrus.Fields{
		"action": "cache_clear",
		"reason": ReasonMemoryPressure,
		"dir":    s.dir,
	}).Info("memory pressure received, clearing cache")

	result, err := s.Clear(context.Background())
	fields := logrus.Fields{
		"action":  "cache_clear",
		"reason":  ReasonMemoryPressure,
		"removed": result.Removed,
		"failed":  result.Failed,
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("cache_clear_partial")
	} else {
		s.logger.WithFields(fields).Info("cache_clear_complete")
	}
	if s.observer != nil {
		s.observer.ObserveClear(ReasonMemoryPressure, result, err)
	}
}

func (s *fileStore) lockEntry(key string) func() {
	name := EntryName(key)
	s.mu.Lock()
	lock := s.locks[name]
	if lock == nil {
		lock = &entryLock{}
		s.locks[name] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) entryPath(key string) string {
	return filepath.Join(s.dir, EntryName(key))
}
