// Package source adapts tabular inputs (CSV, Arrow IPC, Arrow tables,
// Parquet, in-memory frames) into RawRow streams.
package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"tick-wrangler/market"
)

// Source yields rows in input order. Next returns io.EOF after the last row
// and a *market.RowError for a row whose timestamp could not be parsed; the
// caller may keep calling Next after a RowError. Any other error is fatal.
type Source interface {
	Header() *Header
	Next() (RawRow, error)
	Close() error
}

// Batch is a fully materialized source.
type Batch struct {
	Header  *Header
	Rows    []RawRow
	Rejects []*market.RowError
}

// Load drains src into memory. Use it when chunked processing is not needed.
func Load(src Source) (*Batch, error) {
	defer src.Close()
	b := &Batch{Header: src.Header()}
	for {
		row, err := src.Next()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			var rowErr *market.RowError
			if errors.As(err, &rowErr) {
				b.Rejects = append(b.Rejects, rowErr)
				continue
			}
			return nil, err
		}
		b.Rows = append(b.Rows, row)
	}
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", market.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
