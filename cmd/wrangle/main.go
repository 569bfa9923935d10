package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tick-wrangler/codec"
	"tick-wrangler/config"
	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/ordering"
	"tick-wrangler/source"
	"tick-wrangler/wrangler"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径（可选，提供合约精度与 pipeline 选项）")
	instrumentID := flag.String("instrument", "", "合约 ID，例如 AUD/USD.SIM")
	kindName := flag.String("kind", "", "quote 或 trade（有 config 路由时可省略）")
	pricePrecision := flag.Int("price-precision", -1, "价格精度（config 中没有该合约时必填）")
	sizePrecision := flag.Int("size-precision", -1, "数量精度")
	policy := flag.String("policy", "", "排序策略：allow-duplicates | strict | drop-duplicates")
	strict := flag.Bool("strict", false, "任意一行出错即终止")
	indexColumn := flag.String("index", "", "时间戳列名")
	parseFormat := flag.String("parse-format", "", "mixed 或 Go 时间 layout")
	epochUnit := flag.String("epoch-unit", "", "整数时间戳单位 auto|s|ms|us|ns")
	out := flag.String("out", "", "输出文件（.arrow 或 .parquet）")
	printRecords := flag.Bool("print", false, "逐行打印记录")
	limit := flag.Int("limit", 0, "打印行数上限，0 表示全部")
	bars := flag.Duration("bars", 0, "按周期聚合为 OHLCV 打印，例如 1m")
	verbose := flag.Bool("v", false, "输出 debug 日志")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: wrangle [flags] <file.csv|file.parquet|file.arrow>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	logCfg := logger.DefaultConfig()
	logCfg.Format = "console"
	logCfg.Outputs = []string{"stdout"}
	// 记录输出走 stdout，默认只保留 error 日志
	logCfg.Level = "error"
	if *verbose {
		logCfg.Level = "debug"
	}

	var cfg *config.AppConfig
	if *cfgPath != "" {
		c, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = &c
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	inst, kind, err := resolve(cfg, path, *instrumentID, *kindName, *pricePrecision, *sizePrecision)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := []wrangler.Option{wrangler.WithLogger(lg)}
	srcOpts := source.DefaultOptions()
	if cfg != nil {
		opts = append(opts, cfg.WranglerOptions()...)
		srcOpts = cfg.SourceOptions()
	}
	if *indexColumn != "" {
		srcOpts.IndexColumn = *indexColumn
	}
	if *parseFormat != "" {
		srcOpts.Format = source.ParseFormatFromString(*parseFormat)
	}
	if *epochUnit != "" {
		u, err := source.ParseEpochUnit(*epochUnit)
		if err != nil {
			log.Fatalf("%v", err)
		}
		srcOpts.Reader.EpochUnit = u
	}
	opts = append(opts, wrangler.WithSourceOptions(srcOpts))
	if *policy != "" {
		p, err := ordering.ParsePolicy(*policy)
		if err != nil {
			log.Fatalf("%v", err)
		}
		opts = append(opts, wrangler.WithPolicy(p))
	}
	if *strict {
		opts = append(opts, wrangler.WithStrict(true))
	}

	w, err := wrangler.New(inst, kind, opts...)
	if err != nil {
		log.Fatalf("初始化 wrangler 失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := w.ProcessFile(ctx, path)
	if err != nil {
		log.Fatalf("处理失败 [%s]: %v", market.KindName(err), err)
	}

	if *printRecords {
		bw := bufio.NewWriter(os.Stdout)
		res.Series.Each(func(i int, t market.Tick) bool {
			if *limit > 0 && i >= *limit {
				return false
			}
			fmt.Fprintln(bw, t.String())
			return true
		})
		bw.Flush()
	}

	if *bars > 0 {
		agg, err := market.AggregateBars(res.Series, *bars)
		if err != nil {
			log.Fatalf("聚合失败: %v", err)
		}
		bw := bufio.NewWriter(os.Stdout)
		for _, b := range agg {
			fmt.Fprintln(bw, b.String())
		}
		bw.Flush()
	}

	if *out != "" {
		if err := writeOutput(*out, res.Series); err != nil {
			log.Fatalf("写出失败: %v", err)
		}
	}

	printReport(res)
	if len(res.Rejects) > 0 {
		os.Exit(1)
	}
}

// resolve 优先使用命令行参数，其次 config 路由与合约表。
func resolve(cfg *config.AppConfig, path, id, kindName string, pp, sp int) (*instrument.Context, market.Kind, error) {
	var kind market.Kind
	if cfg != nil {
		if route, k, ok := cfg.Route(path); ok {
			if id == "" {
				id = route.Instrument
			}
			kind = k
		}
	}
	if kindName != "" {
		k, ok := market.ParseKind(kindName)
		if !ok {
			return nil, 0, fmt.Errorf("unknown kind %q", kindName)
		}
		kind = k
	}
	if id == "" || kind == 0 {
		return nil, 0, fmt.Errorf("instrument and kind are required (flags or config sources)")
	}
	if pp < 0 && cfg != nil {
		reg, err := cfg.Registry()
		if err != nil {
			return nil, 0, err
		}
		if inst, ok := reg.Lookup(id); ok {
			return inst, kind, nil
		}
	}
	if pp < 0 || sp < 0 {
		return nil, 0, fmt.Errorf("instrument %s: price and size precision are required", id)
	}
	inst, err := instrument.NewContext(id, pp, sp)
	return inst, kind, err
}

func writeOutput(path string, s *market.TickSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		err = codec.WriteParquet(f, s)
	} else {
		err = codec.EncodeTo(f, s, codec.DefaultBatchRows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func printReport(res *wrangler.Result) {
	fmt.Fprintf(os.Stderr, "run %s: %d rows, %d %s records, %d rejected\n",
		res.RunID, res.Rows, res.Series.Len(), res.Series.Kind, len(res.Rejects))
	byKind := map[string]int{}
	for _, r := range res.Rejects {
		byKind[market.KindName(r)]++
	}
	for k, n := range byKind {
		fmt.Fprintf(os.Stderr, "  %-20s %d\n", k, n)
	}
	for i, r := range res.Rejects {
		if i == 20 {
			fmt.Fprintf(os.Stderr, "  ... %d more\n", len(res.Rejects)-i)
			break
		}
		fmt.Fprintf(os.Stderr, "  %v\n", r)
	}
}
