package source

import (
	"context"
	"fmt"

	"tick-wrangler/market"
)

// BarColumns are required by the bar loaders.
var BarColumns = []string{"open", "high", "low", "close", "volume"}

// CSVTickDataLoader loads a tick CSV fully into memory.
type CSVTickDataLoader struct {
	Options Options
}

func (l CSVTickDataLoader) Load(path string) (*Batch, error) {
	src, err := OpenCSV(path, l.Options)
	if err != nil {
		return nil, err
	}
	return Load(src)
}

// CSVBarDataLoader loads an OHLCV CSV; the bar columns must be present.
type CSVBarDataLoader struct {
	Options Options
}

func (l CSVBarDataLoader) Load(path string) (*Batch, error) {
	src, err := OpenCSV(path, l.Options)
	if err != nil {
		return nil, err
	}
	if err := requireBarColumns(src.Header()); err != nil {
		src.Close()
		return nil, err
	}
	return Load(src)
}

// ParquetTickDataLoader loads a tick Parquet file indexed by TimestampColumn.
type ParquetTickDataLoader struct {
	TimestampColumn string
}

func (l ParquetTickDataLoader) Load(ctx context.Context, path string) (*Batch, error) {
	opts := DefaultOptions()
	if l.TimestampColumn != "" {
		opts.IndexColumn = l.TimestampColumn
	}
	src, err := OpenParquet(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return Load(src)
}

// ParquetBarDataLoader loads an OHLCV Parquet file indexed by "timestamp".
type ParquetBarDataLoader struct{}

func (ParquetBarDataLoader) Load(ctx context.Context, path string) (*Batch, error) {
	src, err := OpenParquet(ctx, path, DefaultOptions())
	if err != nil {
		return nil, err
	}
	if err := requireBarColumns(src.Header()); err != nil {
		src.Close()
		return nil, err
	}
	return Load(src)
}

func requireBarColumns(h *Header) error {
	if h.Empty() {
		return nil
	}
	for _, c := range BarColumns {
		if !h.Has(c) {
			return fmt.Errorf("%w: bar column %q missing", market.ErrSchema, c)
		}
	}
	return nil
}
