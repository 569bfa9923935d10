package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"tick-wrangler/config"
	"tick-wrangler/inbox"
	"tick-wrangler/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/tick-wrangler.yaml", "配置文件路径")
	settle := flag.Duration("settle", 500*time.Millisecond, "文件静默多久后开始处理")
	format := flag.String("format", inbox.FormatArrow, "输出格式 arrow | parquet")
	healthEvery := flag.Duration("health", 5*time.Second, "健康检查间隔（无 systemd watchdog 时）")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger()
	c.OnReload = func(config.AppConfig) {
		daemon.SdNotify(false, daemon.SdNotifyReloading)
		daemon.SdNotify(false, daemon.SdNotifyReady)
	}
	if err := c.EnableInbox(container.InboxOptions{Format: *format, Settle: *settle}); err != nil {
		log.Fatalf("初始化 inbox 失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify failed", zap.Error(err))
	}

	unhealthy := supervise(ctx, c, *healthEvery)

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil || unhealthy {
		os.Exit(1)
	}
}

// supervise 定期检查组件健康；systemd 开启 WatchdogSec 时同时发送心跳。
// 返回 true 表示因组件异常退出。
func supervise(ctx context.Context, c *container.Container, every time.Duration) bool {
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		every = interval / 2
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.Logger().LogError(err, map[string]interface{}{"action": "health_check"})
				return true
			}
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
