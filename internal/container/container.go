package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tick-wrangler/codec"
	"tick-wrangler/config"
	"tick-wrangler/inbox"
	"tick-wrangler/infrastructure/alert"
	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/infrastructure/monitor"
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/replay"
	"tick-wrangler/wrangler"
)

// routing 是可热更新的部分：合约表与文件路由。
type routing struct {
	cfg config.AppConfig
	reg *instrument.Registry
}

// Container 组装 daemon 需要的组件并管理其生命周期
type Container struct {
	cfgPath string
	cfg     config.AppConfig
	current atomic.Pointer[routing]

	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	inbox  *inbox.Inbox
	replay *replay.Server

	// OnReload 在配置热更新生效后调用（例如 sd_notify）
	OnReload func(config.AppConfig)

	lifecycle *LifecycleManager
}

// New 加载配置并构建基础设施
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewFromConfig(configPath, cfg, nil)
}

// NewFromConfig 使用已加载的配置；log 为空时按 cfg.Log 创建。
func NewFromConfig(configPath string, cfg config.AppConfig, log *logger.Logger) (*Container, error) {
	c := &Container{cfgPath: configPath, cfg: cfg, lifecycle: NewLifecycleManager()}
	if err := c.buildInfrastructure(log); err != nil {
		return nil, fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.setRouting(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildInfrastructure(log *logger.Logger) error {
	if log == nil {
		var err error
		if log, err = logger.New(c.cfg.Log); err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}
	c.logger = log
	c.monitor = monitor.New(c.cfg.MonitorConfig())

	channels := []alert.Channel{alert.NewLoggerChannel("log", c.logger)}
	if c.cfg.Alert.Stderr {
		channels = append(channels, alert.NewWriterChannel("stderr", os.Stderr))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle, alert.Rules{
		MaxRejectRatio: c.cfg.Alert.MaxRejectRatio,
		MinRows:        c.cfg.Alert.MinRows,
	})

	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}
	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) setRouting(cfg config.AppConfig) error {
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	c.current.Store(&routing{cfg: cfg, reg: reg})
	return nil
}

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func (c *Container) Config() config.AppConfig { return c.current.Load().cfg }

// Resolve 按当前路由找到文件对应的合约与类型
func (c *Container) Resolve(path string) (*instrument.Context, market.Kind, bool) {
	r := c.current.Load()
	route, kind, ok := r.cfg.Route(path)
	if !ok {
		return nil, 0, false
	}
	inst, ok := r.reg.Lookup(route.Instrument)
	return inst, kind, ok
}

func (c *Container) wranglerOptions() []wrangler.Option {
	return append(c.cfg.WranglerOptions(), wrangler.WithLogger(c.logger), wrangler.WithObserver(c.monitor))
}

// InboxOptions 是命令行可覆盖的 inbox 参数
type InboxOptions struct {
	Format string
	Settle time.Duration
}

// EnableInbox 构建 inbox 并注册为生命周期组件
func (c *Container) EnableInbox(opts InboxOptions) error {
	ic := c.cfg.Inbox
	if ic.Dir == "" {
		return errors.New("inbox.dir is not configured")
	}
	box, err := inbox.New(inbox.Config{
		Dir:       ic.Dir,
		OutDir:    ic.OutDir,
		Format:    opts.Format,
		DoneDir:   ic.DoneDir,
		FailedDir: ic.FailedDir,
		Workers:   ic.Workers,
		Settle:    opts.Settle,
	}, c.Resolve, c.logger, c.monitor, c.wranglerOptions()...)
	if err != nil {
		return fmt.Errorf("build inbox failed: %w", err)
	}
	box.OnOutcome = c.onOutcome
	c.inbox = box
	c.lifecycle.Register(&runComponent{name: "inbox", run: box.Run})
	c.watchConfig()
	return nil
}

func (c *Container) onOutcome(out inbox.Outcome) {
	rows, rejected := 0, 0
	if out.Result != nil {
		rows, rejected = out.Result.Rows, len(out.Result.Rejects)
	}
	if err := c.alerts.CheckRun(out.Path, out.Instrument, rows, rejected, out.Err); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "alert", "path": out.Path})
	}
}

// watchConfig 热更新路由和合约表；pipeline 选项需要重启生效
func (c *Container) watchConfig() {
	if c.cfgPath == "" {
		return
	}
	w := config.Watcher{
		Path:     c.cfgPath,
		Cooldown: time.Second,
		OnError: func(err error) {
			c.logger.LogError(err, map[string]interface{}{"config": c.cfgPath})
		},
	}
	c.lifecycle.Register(&runComponent{name: "config_watcher", run: func(ctx context.Context) error {
		return w.Start(ctx, func(next config.AppConfig) {
			if err := c.setRouting(next); err != nil {
				c.logger.LogError(err, map[string]interface{}{"config": c.cfgPath})
				return
			}
			c.logger.Info("config reloaded", zap.Int("routes", len(next.Sources)), zap.Strings("instruments", c.current.Load().reg.IDs()))
			if c.OnReload != nil {
				c.OnReload(next)
			}
		})
	}})
}

// EnableReplay 加载 paths 中的序列并注册 websocket 服务
func (c *Container) EnableReplay(ctx context.Context, addr string, speed float64, paths []string) error {
	srv := replay.NewServer(speed, c.logger, c.monitor)
	for _, path := range paths {
		series, err := c.LoadSeries(ctx, path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		key := srv.Publish(series)
		c.logger.Info("series published", zap.String("key", key), zap.Int("records", series.Len()), zap.String("path", path))
	}
	c.replay = srv
	c.lifecycle.Register(&httpServerComponent{
		name:    "replay_server",
		handler: srv.Handler(),
		addr:    addr,
		logger:  c.logger,
	})
	return nil
}

// LoadSeries 读取 codec 输出的 .arrow 文件；其余文件按路由走 wrangler。
func (c *Container) LoadSeries(ctx context.Context, path string) (*market.TickSeries, error) {
	if strings.HasSuffix(path, ".arrow") {
		if f, err := os.Open(path); err == nil {
			series, derr := codec.DecodeFrom(f)
			f.Close()
			if derr == nil {
				return series, nil
			}
			c.logger.Debug("not a codec stream, falling back to wrangler", zap.String("path", path), zap.Error(derr))
		}
	}
	inst, kind, ok := c.Resolve(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", inbox.ErrNoRoute, path)
	}
	w, err := wrangler.New(inst, kind, c.wranglerOptions()...)
	if err != nil {
		return nil, err
	}
	res, err := w.ProcessFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.Series, nil
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}
