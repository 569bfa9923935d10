package source

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/shopspring/decimal"

	"tick-wrangler/market"
)

// ArrowSource iterates the rows of an Arrow record stream (IPC bytes or a
// table). Cells are converted to text as they are read, so only the current
// record batch is held.
type ArrowSource struct {
	reader  array.RecordReader
	header  *Header
	parser  *TimestampParser
	rec     arrow.Record
	pos     int
	row     int
	release func()
}

// OpenIPC reads an Arrow IPC stream (schema followed by record batches).
func OpenIPC(data []byte, opts Options) (*ArrowSource, error) {
	opts = opts.withDefaults()
	if len(data) == 0 {
		return &ArrowSource{header: emptyHeader(opts), parser: NewTimestampParser(opts.Format, opts.Reader.EpochUnit)}, nil
	}
	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("%w: not an arrow ipc stream: %v", market.ErrSchema, err)
	}
	src, err := newArrowSource(rdr, opts)
	if err != nil {
		rdr.Release()
		return nil, err
	}
	return src, nil
}

// OpenTable iterates tbl in chunks of opts.Reader.ChunkSize rows.
func OpenTable(tbl arrow.Table, opts Options) (*ArrowSource, error) {
	opts = opts.withDefaults()
	rdr := array.NewTableReader(tbl, opts.Reader.ChunkSize)
	src, err := newArrowSource(rdr, opts)
	if err != nil {
		rdr.Release()
		return nil, err
	}
	return src, nil
}

func newArrowSource(rdr array.RecordReader, opts Options) (*ArrowSource, error) {
	schema := rdr.Schema()
	cols := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}
	h, err := newHeader(cols, opts)
	if err != nil {
		return nil, err
	}
	return &ArrowSource{
		reader: rdr,
		header: h,
		parser: NewTimestampParser(opts.Format, opts.Reader.EpochUnit),
	}, nil
}

func (s *ArrowSource) Header() *Header { return s.header }

func (s *ArrowSource) Next() (RawRow, error) {
	if s.reader == nil {
		return RawRow{}, io.EOF
	}
	for s.rec == nil || s.pos >= int(s.rec.NumRows()) {
		if !s.reader.Next() {
			if err := s.reader.Err(); err != nil && err != io.EOF {
				return RawRow{}, fmt.Errorf("read record batch: %w", err)
			}
			return RawRow{}, io.EOF
		}
		s.rec = s.reader.Record()
		s.pos = 0
	}
	i := s.pos
	s.pos++
	idx := s.row
	s.row++

	values := make([]string, s.rec.NumCols())
	for c := range values {
		values[c] = cellString(s.rec.Column(c), i)
	}
	tsCol := s.header.tsIndex
	ts, err := s.cellTimestamp(s.rec.Column(tsCol), i)
	if err != nil {
		return RawRow{}, market.NewRowError(market.ErrParse, idx, s.header.TimestampColumn(), values[tsCol], err.Error())
	}
	return RawRow{Index: idx, TsEvent: ts, values: values, header: s.header}, nil
}

func (s *ArrowSource) Close() error {
	if s.reader != nil {
		s.reader.Release()
		s.reader = nil
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
	s.rec = nil
	return nil
}

func (s *ArrowSource) cellTimestamp(arr arrow.Array, i int) (int64, error) {
	if arr.IsNull(i) {
		return 0, fmt.Errorf("%w: null timestamp", market.ErrParse)
	}
	switch a := arr.(type) {
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return ScaleNanos(int64(a.Value(i)), int64(unit.Multiplier()))
	case *array.Int64:
		return s.parser.FromInt(a.Value(i))
	case *array.Int32:
		return s.parser.FromInt(int64(a.Value(i)))
	case *array.Uint64:
		return s.parser.FromUint(a.Value(i))
	case *array.Float64:
		return s.parser.FromDecimal(decimal.NewFromFloat(a.Value(i)))
	case *array.Date64:
		return ScaleNanos(int64(a.Value(i)), int64(time.Millisecond))
	case *array.String:
		return s.parser.Parse(a.Value(i))
	case *array.LargeString:
		return s.parser.Parse(a.Value(i))
	default:
		return s.parser.Parse(arr.ValueStr(i))
	}
}

// cellString renders a cell as text. Floats use the shortest exact
// representation so 0.67067 stays "0.67067".
func cellString(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return ""
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Float64:
		return strconv.FormatFloat(a.Value(i), 'f', -1, 64)
	case *array.Float32:
		return strconv.FormatFloat(float64(a.Value(i)), 'f', -1, 32)
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Uint64:
		return strconv.FormatUint(a.Value(i), 10)
	case *array.Boolean:
		return strconv.FormatBool(a.Value(i))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		ns, err := ScaleNanos(int64(a.Value(i)), int64(unit.Multiplier()))
		if err != nil {
			return strconv.FormatInt(int64(a.Value(i)), 10)
		}
		return strconv.FormatInt(ns, 10)
	default:
		return arr.ValueStr(i)
	}
}
