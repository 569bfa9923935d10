// Package inbox watches a drop directory and runs every new tick file
// through a wrangler pipeline.
//
// 每个文件按路由确定合约和类型，独立文件由固定数量的 worker 并行处理。
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/wrangler"
)

// ErrNoRoute is returned for files no source route matches.
var ErrNoRoute = errors.New("no source route for file")

// Output formats.
const (
	FormatArrow   = "arrow"
	FormatParquet = "parquet"
)

// Config 控制目录与并发。
type Config struct {
	Dir       string
	OutDir    string // 为空时不落盘
	Format    string // arrow | parquet
	DoneDir   string // 处理成功后移动到此目录，为空则原地保留
	FailedDir string
	Workers   int
	Settle    time.Duration // 文件最后一次变更后需静默的时间
}

// Resolver maps a file path to its instrument and tick kind.
type Resolver func(path string) (*instrument.Context, market.Kind, bool)

// Gauge receives the number of files queued or in flight.
type Gauge interface {
	SetInboxPending(n int)
}

// Outcome describes one processed file.
type Outcome struct {
	Path       string
	Instrument string
	Kind       market.Kind
	Result     *wrangler.Result
	Output     string
	Err        error
}

// Inbox is a directory-driven pipeline runner.
type Inbox struct {
	cfg     Config
	resolve Resolver
	opts    []wrangler.Option
	log     *logger.Logger
	gauge   Gauge

	// OnOutcome, if set, is called from worker goroutines after each file.
	OnOutcome func(Outcome)

	mu       sync.Mutex
	pending  map[string]time.Time // path -> 最近一次事件时间
	inflight map[string]struct{}
	seen     map[string]time.Time // path -> 已处理版本的 mtime
}

// New validates cfg and builds an Inbox. opts are applied to every wrangler it creates.
func New(cfg Config, resolve Resolver, log *logger.Logger, gauge Gauge, opts ...wrangler.Option) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox dir is required")
	}
	if resolve == nil {
		return nil, errors.New("inbox resolver is required")
	}
	if cfg.OutDir != "" && filepath.Clean(cfg.OutDir) == filepath.Clean(cfg.Dir) {
		return nil, errors.New("inbox out dir must differ from the watched dir")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatArrow
	case FormatArrow, FormatParquet:
	default:
		return nil, fmt.Errorf("unknown inbox output format %q", cfg.Format)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Inbox{
		cfg:      cfg,
		resolve:  resolve,
		opts:     opts,
		log:      log,
		gauge:    gauge,
		pending:  make(map[string]time.Time),
		inflight: make(map[string]struct{}),
		seen:     make(map[string]time.Time),
	}, nil
}

// Run watches the directory until ctx is done. Files already present are
// queued on start.
func (b *Inbox) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(b.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch inbox dir: %w", err)
	}
	if err := b.scan(); err != nil {
		return err
	}

	jobs := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.cfg.Workers; i++ {
		g.Go(func() error {
			for path := range jobs {
				b.finish(path, b.ProcessFile(gctx, path))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		return b.loop(gctx, fw, jobs)
	})
	return g.Wait()
}

func (b *Inbox) loop(ctx context.Context, fw *fsnotify.Watcher, jobs chan<- string) error {
	ticker := time.NewTicker(b.cfg.Settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				b.touch(event.Name, time.Now())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("inbox_watch_error", zap.Error(err))
		case <-ticker.C:
			b.dispatch(ctx, jobs)
		}
	}
}

// dispatch hands settled files to idle workers without blocking the event loop.
func (b *Inbox) dispatch(ctx context.Context, jobs chan<- string) {
	for _, path := range b.ready(time.Now()) {
		// 先标记 inflight，worker 可能在 send 返回前就完成 finish。
		b.mu.Lock()
		delete(b.pending, path)
		b.inflight[path] = struct{}{}
		b.mu.Unlock()
		select {
		case jobs <- path:
		case <-ctx.Done():
			b.requeue(path)
			return
		default:
			b.requeue(path)
			b.publish()
			return
		}
	}
	b.publish()
}

// requeue 撤销未送出的派发，下个 tick 重试。
func (b *Inbox) requeue(path string) {
	b.mu.Lock()
	delete(b.inflight, path)
	b.pending[path] = time.Time{}
	b.mu.Unlock()
}

func (b *Inbox) ready(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for path, at := range b.pending {
		if now.Sub(at) >= b.cfg.Settle {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Inbox) scan() error {
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read inbox dir: %w", err)
	}
	for _, e := range entries {
		b.touch(filepath.Join(b.cfg.Dir, e.Name()), time.Time{})
	}
	return nil
}

func (b *Inbox) touch(path string, at time.Time) {
	if !Supported(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.inflight[path]; busy {
		return
	}
	if mod, ok := b.seen[path]; ok && mod.Equal(info.ModTime()) {
		return
	}
	b.pending[path] = at
	b.publishLocked()
}

func (b *Inbox) finish(path string, out Outcome) {
	moved := b.archive(path, out.Err)
	b.mu.Lock()
	delete(b.inflight, path)
	if !moved {
		if info, err := os.Stat(path); err == nil {
			b.seen[path] = info.ModTime()
		}
	}
	b.publishLocked()
	b.mu.Unlock()
	if b.OnOutcome != nil {
		b.OnOutcome(out)
	}
}

// archive moves a processed file out of the inbox when a target dir is configured.
func (b *Inbox) archive(path string, procErr error) bool {
	dir := b.cfg.DoneDir
	if procErr != nil {
		dir = b.cfg.FailedDir
	}
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.log.LogError(err, map[string]interface{}{"path": path})
		return false
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		b.log.LogError(err, map[string]interface{}{"path": path})
		return false
	}
	return true
}

func (b *Inbox) publish() {
	b.mu.Lock()
	b.publishLocked()
	b.mu.Unlock()
}

func (b *Inbox) publishLocked() {
	if b.gauge != nil {
		b.gauge.SetInboxPending(len(b.pending) + len(b.inflight))
	}
}

// Supported reports whether path has an extension the inbox can load.
// Hidden files are skipped so writers can stage data under a dot name.
func Supported(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".csv", ".parquet", ".arrow", ".arrows", ".ipc":
		return true
	}
	return false
}
