// 配置热更新。
//
// 只有 reloadableFields 中列出的字段在运行时生效，其余字段的变化会被记录，
// 需要重启服务。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// reloadableFields 运行时可生效的字段
var reloadableFields = map[string]string{
	"Log.Level":             "log level (debug, info, warn, error)",
	"Server.RateLimitRPS":   "API requests per second",
	"Server.RateLimitBurst": "API burst size",
}

// sensitiveFields 日志中不输出取值的字段
var sensitiveFields = map[string]bool{
	"Redis.Password":    true,
	"Database.Password": true,
	"LLM.APIKey":        true,
	"Search.APIKey":     true,
	"Auth.JWTSecret":    true,
}

// ConfigChange 单个字段的变更
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(oldConfig, newConfig *Config, changes []ConfigChange)

// IsReloadable reports whether a field path takes effect without a restart.
func IsReloadable(path string) bool {
	_, ok := reloadableFields[path]
	return ok
}

// Reloader 监听配置文件并重新加载
type Reloader struct {
	loader  *Loader
	watcher *FileWatcher
	logger  *zap.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []ReloadCallback
}

// NewReloader 创建 Reloader。loader 必须设置了配置文件路径
func NewReloader(loader *Loader, current *Config, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if loader == nil || loader.configPath == "" {
		return nil, fmt.Errorf("reloader needs a loader with a config path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "config_reloader"))
	watcher, err := NewFileWatcher(loader.configPath, append([]WatcherOption{WithWatcherLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Reloader{loader: loader, watcher: watcher, logger: logger, current: current}, nil
}

// OnReload registers a callback.
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current returns the active configuration.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Run watches the file until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	return r.watcher.Watch(ctx, func(ev FileEvent) {
		if ev.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current configuration", zap.String("path", ev.Path))
			return
		}
		if _, err := r.Reload(); err != nil {
			r.logger.Error("config reload failed, keeping current configuration", zap.Error(err))
		}
	})
}

// Reload loads the file again. An invalid file leaves the current
// configuration in place. Fields that need a restart keep their old value.
func (r *Reloader) Reload() ([]ConfigChange, error) {
	next, err := r.loader.Load()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.current
	changes := DetectChanges(old, next)
	applied := *old
	for _, c := range changes {
		if !c.RequiresRestart {
			if err := setPath(&applied, c.Path, c.NewValue); err != nil {
				r.mu.Unlock()
				return nil, err
			}
		}
	}
	r.current = &applied
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	for _, c := range changes {
		r.logChange(c)
	}
	if len(changes) == 0 {
		return nil, nil
	}
	for _, cb := range callbacks {
		r.notify(cb, old, &applied, changes)
	}
	return changes, nil
}

func (r *Reloader) notify(cb ReloadCallback, old, next *Config, changes []ConfigChange) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reload callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(old, next, changes)
}

func (r *Reloader) logChange(c ConfigChange) {
	fields := []zap.Field{
		zap.String("path", c.Path),
		zap.Bool("requires_restart", c.RequiresRestart),
	}
	if !sensitiveFields[c.Path] {
		fields = append(fields, zap.Any("old_value", c.OldValue), zap.Any("new_value", c.NewValue))
	}
	r.logger.Info("configuration changed", fields...)
}

// DetectChanges 检测新旧配置之间的变化
func DetectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

// compareStructs 递归比较结构体字段
func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        oldField.Interface(),
				NewValue:        newField.Interface(),
				RequiresRestart: !IsReloadable(path),
			})
		}
	}
}

// setPath 按 "Section.Field" 路径写入字段
func setPath(cfg *Config, path string, value any) error {
	v := reflect.ValueOf(cfg).Elem()
	for _, name := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("invalid config path %q", path)
		}
		v = v.FieldByName(name)
		if !v.IsValid() {
			return fmt.Errorf("unknown config field %q", path)
		}
	}
	nv := reflect.ValueOf(value)
	if !nv.Type().AssignableTo(v.Type()) {
		return fmt.Errorf("type mismatch for %s: %s", path, nv.Type())
	}
	v.Set(nv)
	return nil
}
