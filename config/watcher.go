// 配置文件变更监听器实现。
//
// 以轮询修改时间的方式检测配置文件变更，事件经过防抖后分发。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 文件操作类型
type FileOp int

const (
	// FileOpCreate 文件被创建
	FileOpCreate FileOp = iota
	// FileOpWrite 文件被修改
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 文件变更事件
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often the file is stat'ed.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.interval = d }
}

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// FileWatcher polls a single configuration file for changes.
type FileWatcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	modTime time.Time
	exists  bool
}

// NewFileWatcher creates a watcher for path. A missing file is watched for creation.
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watcher: empty path")
	}
	w := &FileWatcher{
		path:     path,
		interval: time.Second,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		w.modTime, w.exists = info.ModTime(), true
	case os.IsNotExist(err):
		w.logger.Warn("config file does not exist, watching for creation", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return w, nil
}

// Watch polls until ctx is done, calling fn once per debounced change.
// fn runs on the watcher goroutine.
func (w *FileWatcher) Watch(ctx context.Context, fn func(FileEvent)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		pending *FileEvent
		timer   <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ev, ok := w.check(); ok {
				pending = &ev
				timer = time.After(w.debounce)
			}
		case <-timer:
			w.logger.Debug("dispatching file event",
				zap.String("path", pending.Path),
				zap.String("op", pending.Op.String()))
			fn(*pending)
			pending, timer = nil, nil
		}
	}
}

// check compares the file's state against the last observation.
func (w *FileWatcher) check() (FileEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: now}, true
		}
		return FileEvent{}, false
	}
	if !w.exists {
		w.exists, w.modTime = true, info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: now}, true
	}
	if info.ModTime().After(w.modTime) {
		w.modTime = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: now}, true
	}
	return FileEvent{}, false
}

// Path returns the watched path.
func (w *FileWatcher) Path() string { return w.path }
