package wrangler

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

const (
	audusdRows    = 100_000
	audusdFirstMs = int64(1580398089820)
	audusdLastMs  = int64(1580504394501)

	ethusdtRows    = 69_806
	ethusdtFirstMs = int64(1597399200223)
	ethusdtLastMs  = int64(1597417198693)
	ethusdtFirstID = int64(148568980)
	ethusdtLastID  = int64(148638715)
)

// lerp spreads n points monotonically from a to b inclusive.
func lerp(a, b int64, i, n int) int64 {
	return a + (b-a)*int64(i)/int64(n-1)
}

type audusdRow struct {
	ms       int64
	bid, ask string
}

// audusdQuotes generates a TrueFX-shaped quote file whose first and last
// rows match the published sample.
func audusdQuotes() []audusdRow {
	rows := make([]audusdRow, audusdRows)
	for i := range rows {
		r := audusdRow{
			ms:  lerp(audusdFirstMs, audusdLastMs, i, audusdRows),
			bid: fmt.Sprintf("0.%05d", 67000+i%50),
			ask: fmt.Sprintf("0.%05d", 67003+i%50),
		}
		rows[i] = r
	}
	rows[0].bid, rows[0].ask = "0.67067", "0.67070"
	rows[audusdRows-1].bid, rows[audusdRows-1].ask = "0.66934", "0.66938"
	return rows
}

func writeAudusdCSV(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "truefx-audusd-ticks.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "timestamp,bid,ask")
	for _, r := range audusdQuotes() {
		ts := time.UnixMilli(r.ms).UTC().Format("20060102 15:04:05.000")
		fmt.Fprintf(w, "%s,%s,%s\n", ts, r.bid, r.ask)
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
	return path
}

// audusdIPC encodes the quotes the way a dataframe export would: float
// prices and a nanosecond timestamp column, split into several batches.
func audusdIPC(t testing.TB) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "bid", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ask", Type: arrow.PrimitiveTypes.Float64},
		{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_ns},
	}, nil)
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	rows := audusdQuotes()
	const batch = 16_384
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		for _, r := range rows[start:end] {
			var bid, ask float64
			fmt.Sscanf(r.bid, "%g", &bid)
			fmt.Sscanf(r.ask, "%g", &ask)
			b.Field(0).(*array.Float64Builder).Append(bid)
			b.Field(1).(*array.Float64Builder).Append(ask)
			b.Field(2).(*array.TimestampBuilder).Append(arrow.Timestamp(r.ms * int64(time.Millisecond)))
		}
		rec := b.NewRecord()
		require.NoError(t, w.Write(rec))
		rec.Release()
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// writeEthusdtCSV generates a Binance-shaped trade file.
func writeEthusdtCSV(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "binance-ethusdt-trades.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "trade_id,price,quantity,buyer_maker,timestamp")
	for i := 0; i < ethusdtRows; i++ {
		id := lerp(ethusdtFirstID, ethusdtLastID, i, ethusdtRows)
		ms := lerp(ethusdtFirstMs, ethusdtLastMs, i, ethusdtRows)
		price := fmt.Sprintf("%d.%02d", 423+i%4, i%100)
		qty := fmt.Sprintf("0.%03d", i%999+1)
		maker := "True"
		switch i {
		case 0:
			price, qty, maker = "423.76", "2.679", "False"
		case ethusdtRows - 1:
			price, qty, maker = "426.89", "0.161", "False"
		}
		fmt.Fprintf(w, "%d,%s,%s,%s,%d\n", id, price, qty, maker, ms)
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
	return path
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
