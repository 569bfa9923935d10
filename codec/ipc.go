package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"tick-wrangler/market"
)

// DefaultBatchRows is the number of records per IPC record batch.
const DefaultBatchRows = 64 * 1024

// Encode writes s as an Arrow IPC stream.
func Encode(s *market.TickSeries) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, s, DefaultBatchRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo streams s to w in batches of batchRows records.
func EncodeTo(w io.Writer, s *market.TickSeries, batchRows int) error {
	if s == nil || s.Instrument == nil {
		return fmt.Errorf("%w: nil series", market.ErrSchema)
	}
	if batchRows <= 0 {
		batchRows = DefaultBatchRows
	}
	schema, err := Schema(s.Kind, s.Instrument)
	if err != nil {
		return err
	}
	mem := memory.DefaultAllocator
	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	for lo := 0; lo < s.Len(); lo += batchRows {
		hi := min(lo+batchRows, s.Len())
		rec := toRecord(mem, schema, s, lo, hi)
		err := iw.Write(rec)
		rec.Release()
		if err != nil {
			iw.Close()
			return fmt.Errorf("write record batch: %w", err)
		}
	}
	return iw.Close()
}

// Decode reads a stream written by Encode. Records must be chronological.
func Decode(data []byte) (*market.TickSeries, error) {
	return DecodeFrom(bytes.NewReader(data))
}

func DecodeFrom(r io.Reader) (*market.TickSeries, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("%w: not an arrow ipc stream: %v", market.ErrSchema, err)
	}
	defer rdr.Release()

	inst, kind, err := instrumentFromMetadata(rdr.Schema().Metadata())
	if err != nil {
		return nil, err
	}
	a := newAppender(inst, kind)
	for rdr.Next() {
		if err := a.append(rdr.Record()); err != nil {
			return nil, err
		}
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read record batch: %w", err)
	}
	return a.series, nil
}
