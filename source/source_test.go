package source

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-wrangler/market"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestOpenCSVPreservesOrderAndExtras(t *testing.T) {
	path := writeTemp(t, "quotes.csv", `timestamp,bid,ask,venue_note
20200130 15:28:09.820,0.67067,0.67070,a
2020-01-30T15:28:09.900Z,0.67068,0.67071,b
1580398089,0.67069,0.67072,c
`)
	b, err := CSVTickDataLoader{Options: DefaultOptions()}.Load(path)
	require.NoError(t, err)
	require.Len(t, b.Rows, 3)
	assert.Empty(t, b.Rejects)

	assert.Equal(t, int64(1580398089820000000), b.Rows[0].TsEvent)
	assert.Equal(t, int64(1580398089900000000), b.Rows[1].TsEvent)
	assert.Equal(t, int64(1580398089000000000), b.Rows[2].TsEvent)

	for i, r := range b.Rows {
		assert.Equal(t, i, r.Index)
	}
	note, ok := b.Rows[1].Value("venue_note")
	assert.True(t, ok)
	assert.Equal(t, "b", note)
}

func TestOpenCSVErrors(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions())
	assert.ErrorIs(t, err, market.ErrFileNotFound)

	path := writeTemp(t, "bad.csv", "time,bid,ask\n1,2,3\n")
	_, err = OpenCSV(path, DefaultOptions())
	assert.ErrorIs(t, err, market.ErrSchema)
}

func TestCSVIndexColumnAndFixedFormat(t *testing.T) {
	path := writeTemp(t, "q.csv", "time,bid\n30/01/2020 15:28:09,1\nnot-a-date,2\n31/01/2020 00:00:00,3\n")
	opts := DefaultOptions()
	opts.IndexColumn = "time"
	opts.Format = Fixed("02/01/2006 15:04:05")
	b, err := CSVTickDataLoader{Options: opts}.Load(path)
	require.NoError(t, err)
	require.Len(t, b.Rows, 2)
	require.Len(t, b.Rejects, 1)
	assert.Equal(t, 1, b.Rejects[0].Row)
	assert.ErrorIs(t, b.Rejects[0], market.ErrParse)
	assert.Equal(t, "time", b.Rejects[0].Column)
}

func TestCSVColumnAliasesAndDelimiter(t *testing.T) {
	path := writeTemp(t, "t.csv", "ts;px\n1597399200223;423.76\n")
	opts := DefaultOptions()
	opts.Reader.Delimiter = ';'
	opts.Reader.ColumnAliases = map[string]string{"ts": "timestamp", "px": "price"}
	b, err := CSVTickDataLoader{Options: opts}.Load(path)
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)
	px, _ := b.Rows[0].Value("price")
	assert.Equal(t, "423.76", px)
	assert.Equal(t, int64(1597399200223000000), b.Rows[0].TsEvent)
}

func TestEmptyCSV(t *testing.T) {
	path := writeTemp(t, "empty.csv", "")
	b, err := CSVTickDataLoader{}.Load(path)
	require.NoError(t, err)
	assert.Empty(t, b.Rows)
	assert.True(t, b.Header.Empty())
}

func TestCSVBarLoader(t *testing.T) {
	path := writeTemp(t, "bars.csv", "timestamp,open,high,low,close,volume\n2020-01-01,1,2,0.5,1.5,10\n")
	b, err := CSVBarDataLoader{}.Load(path)
	require.NoError(t, err)
	assert.Len(t, b.Rows, 1)

	path = writeTemp(t, "bars2.csv", "timestamp,open,close\n2020-01-01,1,2\n")
	_, err = CSVBarDataLoader{}.Load(path)
	assert.ErrorIs(t, err, market.ErrSchema)
}

func TestTimestampParserUnits(t *testing.T) {
	p := NewTimestampParser(Mixed(), UnitAuto)
	cases := map[string]int64{
		"1597399200":          1597399200000000000,
		"1597399200223":       1597399200223000000,
		"1597399200223001":    1597399200223001000,
		"1597399200223001002": 1597399200223001002,
		"1597399200.5":        1597399200500000000,
		"2020-08-14 10:00:00": 1597399200000000000,
		"2020/08/14 10:00:00": 1597399200000000000,
		"2020-08-14":          1597363200000000000,
		// dateparse fallback
		"2014-05-11 08:20:13,787": 1399796413787000000,
		"May 8, 2009 5:57:51 PM":  1241805471000000000,
	}
	for in, want := range cases {
		got, err := p.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	ms := NewTimestampParser(Mixed(), UnitMillis)
	got, err := ms.Parse("1000")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), got)

	_, err = p.Parse("yesterday")
	assert.ErrorIs(t, err, market.ErrParse)
}

func TestTimestampParserOverflow(t *testing.T) {
	p := NewTimestampParser(Mixed(), UnitAuto)
	for _, in := range []string{"9999999999", "9999999999999", "9999999999.5", "-9999999999", "9999-01-01"} {
		_, err := p.Parse(in)
		assert.ErrorIs(t, err, market.ErrParse, in)
	}

	_, err := p.FromInt(9999999999)
	assert.ErrorIs(t, err, market.ErrParse)
	_, err = p.FromUint(math.MaxUint64)
	assert.ErrorIs(t, err, market.ErrParse)
	_, err = ScaleNanos(math.MaxInt64/1000+1, 1000)
	assert.ErrorIs(t, err, market.ErrParse)

	got, err := p.FromInt(1597399200)
	require.NoError(t, err)
	assert.Equal(t, int64(1597399200000000000), got)
}

func TestOpenIPCTimestampOverflow(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "bid", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ask", Type: arrow.PrimitiveTypes.Float64},
		{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_s},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Float64Builder).AppendValues([]float64{1.1, 1.2}, nil)
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{1.2, 1.3}, nil)
	b.Field(2).(*array.TimestampBuilder).AppendValues([]arrow.Timestamp{1597399200, 99999999999}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	src, err := OpenIPC(buf.Bytes(), DefaultOptions())
	require.NoError(t, err)
	defer src.Close()

	row, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1597399200000000000), row.TsEvent)

	_, err = src.Next()
	var rowErr *market.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.ErrorIs(t, err, market.ErrParse)
	assert.Equal(t, 1, rowErr.Row)
}

var quoteSchema = arrow.NewSchema([]arrow.Field{
	{Name: "bid", Type: arrow.PrimitiveTypes.Float64},
	{Name: "ask", Type: arrow.PrimitiveTypes.Float64},
	{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_ns},
}, nil)

func buildQuoteRecord(t *testing.T) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, quoteSchema)
	defer b.Release()
	b.Field(0).(*array.Float64Builder).AppendValues([]float64{0.67067, 0.66934}, nil)
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{0.6707, 0.66938}, nil)
	b.Field(2).(*array.TimestampBuilder).AppendValues([]arrow.Timestamp{1580398089820000000, 1580504394501000000}, nil)
	return b.NewRecord()
}

func TestOpenIPC(t *testing.T) {
	rec := buildQuoteRecord(t)
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(quoteSchema))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	src, err := OpenIPC(buf.Bytes(), DefaultOptions())
	require.NoError(t, err)
	b, err := Load(src)
	require.NoError(t, err)
	require.Len(t, b.Rows, 4)
	bid, _ := b.Rows[0].Value("bid")
	ask, _ := b.Rows[0].Value("ask")
	assert.Equal(t, "0.67067", bid)
	assert.Equal(t, "0.6707", ask)
	assert.Equal(t, int64(1580504394501000000), b.Rows[3].TsEvent)
	assert.Equal(t, 3, b.Rows[3].Index)
}

func TestOpenIPCRejectsGarbage(t *testing.T) {
	_, err := OpenIPC([]byte("definitely not arrow"), DefaultOptions())
	assert.ErrorIs(t, err, market.ErrSchema)

	src, err := OpenIPC(nil, DefaultOptions())
	require.NoError(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenParquet(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "price", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1597399200223, 1597399200224}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"423.76", "423.77"}, nil)
	rec := b.NewRecord()
	b.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	rec.Release()
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, pqarrow.WriteTable(tbl, &buf, 1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()))
	path := filepath.Join(t.TempDir(), "trades.parquet")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	batch, err := ParquetTickDataLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, int64(1597399200224000000), batch.Rows[1].TsEvent)
	px, _ := batch.Rows[1].Value("price")
	assert.Equal(t, "423.77", px)

	_, err = ParquetTickDataLoader{TimestampColumn: "ts"}.Load(context.Background(), path)
	assert.ErrorIs(t, err, market.ErrSchema)
}

func TestOpenFrame(t *testing.T) {
	src, err := OpenFrame(&Frame{
		Columns: []string{"timestamp", "price"},
		Rows:    [][]string{{"1597399200223", "1"}, {"", "2"}},
	}, DefaultOptions())
	require.NoError(t, err)
	b, err := Load(src)
	require.NoError(t, err)
	assert.Len(t, b.Rows, 1)
	require.Len(t, b.Rejects, 1)
	assert.Equal(t, 1, b.Rejects[0].Row)
}
