package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tick-wrangler/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/tick-wrangler.yaml", "配置文件路径")
	addr := flag.String("addr", "", "websocket 监听地址，覆盖 replay.addr")
	speed := flag.Float64("speed", -1, "默认回放倍速，覆盖 replay.speed（0 = 不限速）")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	cfg := c.Config()
	if *addr == "" {
		*addr = cfg.Replay.Addr
	}
	if *addr == "" {
		*addr = ":8090"
	}
	if *speed < 0 {
		*speed = cfg.Replay.Speed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.EnableReplay(ctx, *addr, *speed, flag.Args()); err != nil {
		log.Fatalf("加载回放数据失败: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	c.Logger().Info("replay ready", zap.String("addr", *addr), zap.Float64("speed", *speed))

	<-ctx.Done()
	if err := c.Stop(); err != nil {
		os.Exit(1)
	}
}
