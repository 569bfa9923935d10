package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/infrastructure/monitor"
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/ordering"
	"tick-wrangler/source"
	"tick-wrangler/wrangler"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string                      `yaml:"env" validate:"required"`
	Log         logger.Config               `yaml:"log"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Pipeline    PipelineConfig              `yaml:"pipeline"`
	Instruments map[string]InstrumentConfig `yaml:"instruments" validate:"required,min=1,dive"`
	Sources     []SourceRoute               `yaml:"sources" validate:"dive"`
	Inbox       InboxConfig                 `yaml:"inbox"`
	Replay      ReplayConfig                `yaml:"replay"`
	Alert       AlertConfig                 `yaml:"alert"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// PipelineConfig 对应 source.Options + wrangler 选项。
type PipelineConfig struct {
	IndexColumn      string            `yaml:"indexColumn"`
	ParseFormat      string            `yaml:"parseFormat"` // mixed 或 Go 时间 layout
	EpochUnit        string            `yaml:"epochUnit" validate:"omitempty,oneof=auto s ms us ns"`
	Delimiter        string            `yaml:"delimiter" validate:"omitempty,len=1"`
	Comment          string            `yaml:"comment" validate:"omitempty,len=1"`
	LazyQuotes       bool              `yaml:"lazyQuotes"`
	ColumnAliases    map[string]string `yaml:"columnAliases"`
	Policy           string            `yaml:"policy" validate:"omitempty,oneof=strict drop-duplicates allow-duplicates"`
	Strict           bool              `yaml:"strict"`
	DefaultQuoteSize string            `yaml:"defaultQuoteSize" validate:"omitempty,numeric"`
}

// InstrumentConfig 保存合约精度（来自 instrument provider）。
type InstrumentConfig struct {
	PricePrecision int `yaml:"pricePrecision" validate:"min=0,max=9"`
	SizePrecision  int `yaml:"sizePrecision" validate:"min=0,max=9"`
}

// SourceRoute maps inbox file names to an instrument and tick kind.
type SourceRoute struct {
	Pattern    string `yaml:"pattern" validate:"required"`
	Instrument string `yaml:"instrument" validate:"required"`
	Kind       string `yaml:"kind" validate:"required,oneof=quote trade"`
}

type InboxConfig struct {
	Dir       string `yaml:"dir"`
	OutDir    string `yaml:"outDir"`
	DoneDir   string `yaml:"doneDir"`
	FailedDir string `yaml:"failedDir"`
	Workers   int    `yaml:"workers" validate:"min=0,max=64"`
}

type ReplayConfig struct {
	Addr  string  `yaml:"addr"`
	Speed float64 `yaml:"speed" validate:"min=0"`
}

// AlertConfig 控制 inbox 告警规则。
type AlertConfig struct {
	MaxRejectRatio float64       `yaml:"maxRejectRatio" validate:"min=0,max=1"`
	MinRows        int           `yaml:"minRows" validate:"min=0"`
	Throttle       time.Duration `yaml:"throttle"`
	Stderr         bool          `yaml:"stderr"` // 额外把告警写到 stderr
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("TW_INBOX_DIR"); v != "" {
		cfg.Inbox.Dir = v
	}
	if v := os.Getenv("TW_INBOX_OUT_DIR"); v != "" {
		cfg.Inbox.OutDir = v
	}
	if v := os.Getenv("TW_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TW_REPLAY_ADDR"); v != "" {
		cfg.Replay.Addr = v
	}
	if v := os.Getenv("TW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

// SourceOptions converts the pipeline section into adapter options.
func (c AppConfig) SourceOptions() source.Options {
	opts := source.DefaultOptions()
	p := c.Pipeline
	if p.IndexColumn != "" {
		opts.IndexColumn = p.IndexColumn
	}
	opts.Format = source.ParseFormatFromString(p.ParseFormat)
	if unit, err := source.ParseEpochUnit(p.EpochUnit); err == nil {
		opts.Reader.EpochUnit = unit
	}
	if p.Delimiter != "" {
		opts.Reader.Delimiter = []rune(p.Delimiter)[0]
	}
	if p.Comment != "" {
		opts.Reader.Comment = []rune(p.Comment)[0]
	}
	opts.Reader.LazyQuotes = p.LazyQuotes
	if len(p.ColumnAliases) > 0 {
		opts.Reader.ColumnAliases = make(map[string]string, len(p.ColumnAliases))
		for k, v := range p.ColumnAliases {
			opts.Reader.ColumnAliases[k] = v
		}
	}
	return opts
}

// WranglerOptions returns the options every wrangler built from this config shares.
func (c AppConfig) WranglerOptions() []wrangler.Option {
	policy, _ := ordering.ParsePolicy(c.Pipeline.Policy)
	return []wrangler.Option{
		wrangler.WithSourceOptions(c.SourceOptions()),
		wrangler.WithPolicy(policy),
		wrangler.WithStrict(c.Pipeline.Strict),
		wrangler.WithDefaultQuoteSize(c.Pipeline.DefaultQuoteSize),
	}
}

// Registry builds the instrument registry from the instruments section.
func (c AppConfig) Registry() (*instrument.Registry, error) {
	specs := make([]instrument.Spec, 0, len(c.Instruments))
	for id, ic := range c.Instruments {
		specs = append(specs, instrument.Spec{ID: id, PricePrecision: ic.PricePrecision, SizePrecision: ic.SizePrecision})
	}
	return instrument.NewRegistry(specs)
}

// Route returns the first source route whose pattern matches the base name of path.
func (c AppConfig) Route(path string) (SourceRoute, market.Kind, bool) {
	base := filepath.Base(path)
	for _, r := range c.Sources {
		if ok, _ := filepath.Match(r.Pattern, base); ok {
			kind, _ := market.ParseKind(r.Kind)
			return r, kind, true
		}
	}
	return SourceRoute{}, 0, false
}

// MonitorConfig 返回指标命名配置。
func (c AppConfig) MonitorConfig() monitor.Config {
	mc := monitor.DefaultConfig()
	if c.Metrics.Namespace != "" {
		mc.Namespace = c.Metrics.Namespace
	}
	if c.Metrics.Subsystem != "" {
		mc.Subsystem = c.Metrics.Subsystem
	}
	return mc
}
