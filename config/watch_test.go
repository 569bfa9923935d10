package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Watcher{Path: path}.Start(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatcherMissingDir(t *testing.T) {
	err := Watcher{Path: "/definitely/not/here/cfg.yaml"}.Start(context.Background(), nil)
	require.Error(t, err)
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, baseConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan AppConfig, 4)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = Watcher{Path: path}.Start(ctx, func(cfg AppConfig) { updates <- cfg })
	}()
	<-started

	// fsnotify 注册是异步的，重复写入直到收到回调
	changed := strings.Replace(baseConfig, "env: dev", "env: prod", 1)
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-updates:
			require.Equal(t, "prod", cfg.Env)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}

func TestWatcherReportsInvalidReload(t *testing.T) {
	path := writeTempConfig(t, baseConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 4)
	go func() {
		_ = Watcher{Path: path, OnError: func(err error) { errs <- err }}.Start(ctx, nil)
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-errs:
			require.Error(t, err)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("env: [broken"), 0o644))
		case <-deadline:
			t.Fatalf("expected error callback")
		}
	}
}
