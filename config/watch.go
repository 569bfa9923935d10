package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk.
// 监听配置所在目录，兼容编辑器的 rename 原子写入。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 冷却时间，避免一次保存触发多次重载
	OnError  func(error)   // 重载失败（yaml/校验错误）时回调，可为空
}

// Start blocks until ctx is done; onUpdate receives each successfully reloaded config.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	target := filepath.Clean(w.Path)

	var lastReload time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !isChange(event.Op) {
				continue
			}
			if w.Cooldown > 0 && time.Since(lastReload) < w.Cooldown {
				continue
			}
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				w.report(err)
				continue
			}
			lastReload = time.Now()
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.report(err)
		}
	}
}

func (w Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

func isChange(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}
