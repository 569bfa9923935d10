package source

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"tick-wrangler/market"
)

// OpenParquet loads a Parquet file as an Arrow table and iterates it. The
// timestamp column (opts.IndexColumn) becomes the ordering index.
func OpenParquet(ctx context.Context, path string, opts Options) (*ArrowSource, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("%w: read parquet %s: %v", market.ErrSchema, path, err)
	}
	src, err := OpenTable(tbl, opts)
	if err != nil {
		tbl.Release()
		return nil, err
	}
	src.release = tbl.Release
	return src, nil
}
