package codec

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"tick-wrangler/instrument"
	"tick-wrangler/market"
)

// WriteParquet writes s as a single Parquet file (snappy compressed).
func WriteParquet(w io.Writer, s *market.TickSeries) error {
	if s == nil || s.Instrument == nil {
		return fmt.Errorf("%w: nil series", market.ErrSchema)
	}
	schema, err := Schema(s.Kind, s.Instrument)
	if err != nil {
		return err
	}
	mem := memory.DefaultAllocator
	recs := make([]arrow.Record, 0, s.Len()/DefaultBatchRows+1)
	for lo := 0; lo < s.Len(); lo += DefaultBatchRows {
		recs = append(recs, toRecord(mem, schema, s, lo, min(lo+DefaultBatchRows, s.Len())))
	}
	tbl := array.NewTableFromRecords(schema, recs)
	for _, r := range recs {
		r.Release()
	}
	defer tbl.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	// hide Close so the parquet writer leaves w open for the caller
	return pqarrow.WriteTable(tbl, struct{ io.Writer }{w}, DefaultBatchRows, props, pqarrow.DefaultWriterProps())
}

// ReadParquet reads a file written by WriteParquet. The caller supplies the
// instrument, since precision is a property of the instrument rather than
// of the file; kind is taken from the columns present.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker, inst *instrument.Context) (*market.TickSeries, error) {
	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("%w: read parquet: %v", market.ErrSchema, err)
	}
	defer tbl.Release()

	kind := market.KindQuote
	if len(tbl.Schema().FieldIndices("price")) > 0 {
		kind = market.KindTrade
	}
	a := newAppender(inst, kind)
	tr := array.NewTableReader(tbl, DefaultBatchRows)
	defer tr.Release()
	for tr.Next() {
		if err := a.append(tr.Record()); err != nil {
			return nil, err
		}
	}
	if err := tr.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return a.series, nil
}
