package codec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/source"
	"tick-wrangler/wrangler"
)

func tradeSeries(t *testing.T) *market.TickSeries {
	t.Helper()
	w, err := wrangler.NewTradeWrangler("ETHUSDT.BINANCE", 2, 5)
	require.NoError(t, err)
	res, err := w.ProcessFrame(&source.Frame{
		Columns: []string{"trade_id", "price", "quantity", "buyer_maker", "timestamp"},
		Rows: [][]string{
			{"148568980", "423.76", "2.679", "False", "1597399200223"},
			{"148568981", "423.75", "0.5", "True", "1597399200223"},
			{"148568982", "423.80", "10", "False", "1597399200300"},
		},
	})
	require.NoError(t, err)
	return res.Series
}

func quoteSeries(t *testing.T, n int) *market.TickSeries {
	t.Helper()
	inst, err := instrument.NewContext("AUD/USD.SIM", 5, 0)
	require.NoError(t, err)
	s := market.NewQuoteSeries(inst, n)
	for i := 0; i < n; i++ {
		s.Quotes = append(s.Quotes, market.QuoteTick{
			Instrument: inst,
			Bid:        market.PriceQty{Raw: 67067 + int64(i%7), Precision: 5},
			Ask:        market.PriceQty{Raw: 67070 + int64(i%7), Precision: 5},
			BidSize:    market.PriceQty{Raw: 1_000_000, Precision: 0},
			AskSize:    market.PriceQty{Raw: 1_000_000, Precision: 0},
			TsEvent:    1580398089820000000 + int64(i),
		})
	}
	return s
}

func TestIPCRoundTripTrades(t *testing.T) {
	s := tradeSeries(t)
	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, market.KindTrade, got.Kind)
	assert.Equal(t, s.Strings(), got.Strings())
	assert.Equal(t, "ETHUSDT.BINANCE,423.76,2.67900,BUYER,148568980,1597399200223000000", got.First().String())
}

func TestIPCRoundTripQuotesAcrossBatches(t *testing.T) {
	s := quoteSeries(t, 1000)
	var buf bytes.Buffer
	require.NoError(t, EncodeTo(&buf, s, 128))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 1000, got.Len())
	assert.Equal(t, s.Strings(), got.Strings())
	assert.Equal(t, uint8(5), got.Instrument.PricePrecision())
}

func TestEncodeIsDeterministic(t *testing.T) {
	s := quoteSeries(t, 50)
	a, err := Encode(s)
	require.NoError(t, err)
	b, err := Encode(s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptySeriesRoundTrip(t *testing.T) {
	s := quoteSeries(t, 0)
	data, err := Encode(s)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, "AUD/USD.SIM", got.Instrument.ID())
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte("nope"))
	assert.ErrorIs(t, err, market.ErrSchema)

	// plain dataframe export: no instrument metadata
	schema := arrow.NewSchema([]arrow.Field{{Name: "bid", Type: arrow.PrimitiveTypes.Float64}}, nil)
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, w.Close())
	_, err = Decode(buf.Bytes())
	assert.ErrorIs(t, err, market.ErrSchema)
}

func TestDecodeRejectsOutOfOrder(t *testing.T) {
	s := quoteSeries(t, 2)
	schema, err := Schema(market.KindQuote, s.Instrument)
	require.NoError(t, err)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i, ts := range []int64{20, 10} {
		q := s.Quotes[i]
		b.Field(0).(*array.Int64Builder).Append(q.Bid.Raw)
		b.Field(1).(*array.Int64Builder).Append(q.Ask.Raw)
		b.Field(2).(*array.Int64Builder).Append(q.BidSize.Raw)
		b.Field(3).(*array.Int64Builder).Append(q.AskSize.Raw)
		b.Field(4).(*array.Int64Builder).Append(ts)
	}
	rec := b.NewRecord()
	defer rec.Release()
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	_, err = Decode(buf.Bytes())
	assert.ErrorIs(t, err, market.ErrOutOfOrder)
}

func TestParquetRoundTrip(t *testing.T) {
	s := tradeSeries(t)
	path := filepath.Join(t.TempDir(), "trades.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteParquet(f, s))
	require.NoError(t, f.Close())

	rf, err := os.Open(path)
	require.NoError(t, err)
	defer rf.Close()
	got, err := ReadParquet(context.Background(), rf, s.Instrument)
	require.NoError(t, err)
	assert.Equal(t, s.Strings(), got.Strings())
}
