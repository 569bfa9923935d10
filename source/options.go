package source

import (
	"fmt"
	"strings"
)

// DefaultIndexColumn is the timestamp column looked up when none is set.
const DefaultIndexColumn = "timestamp"

// DefaultChunkSize bounds the rows pulled per Arrow batch when iterating tables.
const DefaultChunkSize = 64 * 1024

type formatKind uint8

const (
	formatMixed formatKind = iota
	formatFixed
)

// ParseFormat selects how timestamp text is parsed: Mixed infers the layout
// per row, Fixed uses one Go time layout for every row.
type ParseFormat struct {
	kind   formatKind
	layout string
}

// Mixed 逐行推断时间格式（真实 tick 数据常混用多种格式）。
func Mixed() ParseFormat { return ParseFormat{kind: formatMixed} }

// Fixed uses layout (Go reference-time syntax) for every row.
func Fixed(layout string) ParseFormat { return ParseFormat{kind: formatFixed, layout: layout} }

func (f ParseFormat) IsMixed() bool { return f.kind == formatMixed }

func (f ParseFormat) Layout() string { return f.layout }

func (f ParseFormat) String() string {
	if f.kind == formatFixed {
		return "fixed(" + f.layout + ")"
	}
	return "mixed"
}

// ParseFormatFromString maps a config value: "" or "mixed" -> Mixed,
// anything else is a fixed layout.
func ParseFormatFromString(s string) ParseFormat {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "mixed") {
		return Mixed()
	}
	return Fixed(s)
}

// EpochUnit is the unit of integer/decimal epoch timestamps.
type EpochUnit uint8

const (
	UnitAuto EpochUnit = iota
	UnitSeconds
	UnitMillis
	UnitMicros
	UnitNanos
)

// ParseEpochUnit accepts auto|s|ms|us|ns.
func ParseEpochUnit(s string) (EpochUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return UnitAuto, nil
	case "s", "sec", "seconds":
		return UnitSeconds, nil
	case "ms", "millis":
		return UnitMillis, nil
	case "us", "micros":
		return UnitMicros, nil
	case "ns", "nanos":
		return UnitNanos, nil
	}
	return UnitAuto, fmt.Errorf("unknown epoch unit %q", s)
}

func (u EpochUnit) nanos() int64 {
	switch u {
	case UnitSeconds:
		return 1_000_000_000
	case UnitMillis:
		return 1_000_000
	case UnitMicros:
		return 1_000
	default:
		return 1
	}
}

// ReaderOptions are the reader knobs that used to travel as free-form
// keyword arguments.
type ReaderOptions struct {
	Delimiter        rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	EpochUnit        EpochUnit
	// ColumnAliases renames source columns (source name -> canonical name).
	ColumnAliases map[string]string
	ChunkSize     int64
}

// Options configure a source adapter.
type Options struct {
	IndexColumn string
	Format      ParseFormat
	Reader      ReaderOptions
}

// DefaultOptions: timestamp column "timestamp", mixed parsing, comma CSV.
func DefaultOptions() Options {
	return Options{
		IndexColumn: DefaultIndexColumn,
		Format:      Mixed(),
		Reader: ReaderOptions{
			Delimiter: ',',
			ChunkSize: DefaultChunkSize,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.IndexColumn == "" {
		o.IndexColumn = DefaultIndexColumn
	}
	if o.Reader.Delimiter == 0 {
		o.Reader.Delimiter = ','
	}
	if o.Reader.ChunkSize <= 0 {
		o.Reader.ChunkSize = DefaultChunkSize
	}
	return o
}
