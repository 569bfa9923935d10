// Package codec moves tick series across process boundaries as Arrow
// columnar data: IPC streams for in-memory interchange, Parquet for files.
//
// Prices and sizes travel as raw fixed-point int64 values; the precisions
// ride in the schema metadata so decoding never re-parses text.
package codec

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/ordering"
)

const (
	MetaKind           = "kind"
	MetaInstrumentID   = "instrument_id"
	MetaPricePrecision = "price_precision"
	MetaSizePrecision  = "size_precision"

	ColTsEvent = "ts_event"
)

var (
	quoteFields = []arrow.Field{
		{Name: "bid", Type: arrow.PrimitiveTypes.Int64},
		{Name: "ask", Type: arrow.PrimitiveTypes.Int64},
		{Name: "bid_size", Type: arrow.PrimitiveTypes.Int64},
		{Name: "ask_size", Type: arrow.PrimitiveTypes.Int64},
		{Name: ColTsEvent, Type: arrow.PrimitiveTypes.Int64},
	}
	tradeFields = []arrow.Field{
		{Name: "price", Type: arrow.PrimitiveTypes.Int64},
		{Name: "size", Type: arrow.PrimitiveTypes.Int64},
		{Name: "aggressor_side", Type: arrow.PrimitiveTypes.Uint8},
		{Name: "trade_id", Type: arrow.BinaryTypes.String},
		{Name: ColTsEvent, Type: arrow.PrimitiveTypes.Int64},
	}
)

// Schema returns the Arrow schema for a series of kind, tagged with inst.
func Schema(kind market.Kind, inst *instrument.Context) (*arrow.Schema, error) {
	md := arrow.NewMetadata(
		[]string{MetaKind, MetaInstrumentID, MetaPricePrecision, MetaSizePrecision},
		[]string{
			kind.String(),
			inst.ID(),
			strconv.Itoa(int(inst.PricePrecision())),
			strconv.Itoa(int(inst.SizePrecision())),
		},
	)
	switch kind {
	case market.KindQuote:
		return arrow.NewSchema(quoteFields, &md), nil
	case market.KindTrade:
		return arrow.NewSchema(tradeFields, &md), nil
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", market.ErrSchema, kind)
}

// toRecord builds one record batch holding series[lo:hi].
func toRecord(mem memory.Allocator, schema *arrow.Schema, s *market.TickSeries, lo, hi int) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	if s.Kind == market.KindTrade {
		price := b.Field(0).(*array.Int64Builder)
		size := b.Field(1).(*array.Int64Builder)
		side := b.Field(2).(*array.Uint8Builder)
		id := b.Field(3).(*array.StringBuilder)
		ts := b.Field(4).(*array.Int64Builder)
		for _, t := range s.Trades[lo:hi] {
			price.Append(t.Price.Raw)
			size.Append(t.Size.Raw)
			side.Append(uint8(t.Aggressor))
			id.Append(t.TradeID)
			ts.Append(t.TsEvent)
		}
		return b.NewRecord()
	}
	bid := b.Field(0).(*array.Int64Builder)
	ask := b.Field(1).(*array.Int64Builder)
	bidSize := b.Field(2).(*array.Int64Builder)
	askSize := b.Field(3).(*array.Int64Builder)
	ts := b.Field(4).(*array.Int64Builder)
	for _, q := range s.Quotes[lo:hi] {
		bid.Append(q.Bid.Raw)
		ask.Append(q.Ask.Raw)
		bidSize.Append(q.BidSize.Raw)
		askSize.Append(q.AskSize.Raw)
		ts.Append(q.TsEvent)
	}
	return b.NewRecord()
}

// instrumentFromMetadata rebuilds the context stored by Schema.
func instrumentFromMetadata(md arrow.Metadata) (*instrument.Context, market.Kind, error) {
	get := func(key string) (string, error) {
		i := md.FindKey(key)
		if i < 0 {
			return "", fmt.Errorf("%w: metadata key %q missing", market.ErrSchema, key)
		}
		return md.Values()[i], nil
	}
	kindText, err := get(MetaKind)
	if err != nil {
		return nil, 0, err
	}
	kind, ok := market.ParseKind(kindText)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown kind %q", market.ErrSchema, kindText)
	}
	id, err := get(MetaInstrumentID)
	if err != nil {
		return nil, 0, err
	}
	var prec [2]int
	for i, key := range []string{MetaPricePrecision, MetaSizePrecision} {
		v, err := get(key)
		if err != nil {
			return nil, 0, err
		}
		if prec[i], err = strconv.Atoi(v); err != nil {
			return nil, 0, fmt.Errorf("%w: %s=%q", market.ErrSchema, key, v)
		}
	}
	inst, err := instrument.NewContext(id, prec[0], prec[1])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", market.ErrSchema, err)
	}
	return inst, kind, nil
}

// appender accumulates decoded records, checking column types once per
// batch and ordering across batches.
type appender struct {
	series  *market.TickSeries
	orderer *ordering.Orderer
	row     int
}

func newAppender(inst *instrument.Context, kind market.Kind) *appender {
	a := &appender{orderer: ordering.New(ordering.AllowDuplicates)}
	if kind == market.KindTrade {
		a.series = market.NewTradeSeries(inst, 0)
	} else {
		a.series = market.NewQuoteSeries(inst, 0)
	}
	return a
}

func (a *appender) append(rec arrow.Record) error {
	cols, err := columns(rec, a.series.Kind)
	if err != nil {
		return err
	}
	inst := a.series.Instrument
	pp, sp := inst.PricePrecision(), inst.SizePrecision()
	ts := cols[4].(*array.Int64)
	for i := 0; i < int(rec.NumRows()); i++ {
		if _, err := a.orderer.Accept(a.row, ts.Value(i)); err != nil {
			return err
		}
		a.row++
		if a.series.Kind == market.KindTrade {
			a.series.Trades = append(a.series.Trades, market.TradeTick{
				Instrument: inst,
				Price:      market.PriceQty{Raw: cols[0].(*array.Int64).Value(i), Precision: pp},
				Size:       market.PriceQty{Raw: cols[1].(*array.Int64).Value(i), Precision: sp},
				Aggressor:  market.AggressorSide(cols[2].(*array.Uint8).Value(i)),
				TradeID:    cols[3].(*array.String).Value(i),
				TsEvent:    ts.Value(i),
			})
			continue
		}
		a.series.Quotes = append(a.series.Quotes, market.QuoteTick{
			Instrument: inst,
			Bid:        market.PriceQty{Raw: cols[0].(*array.Int64).Value(i), Precision: pp},
			Ask:        market.PriceQty{Raw: cols[1].(*array.Int64).Value(i), Precision: pp},
			BidSize:    market.PriceQty{Raw: cols[2].(*array.Int64).Value(i), Precision: sp},
			AskSize:    market.PriceQty{Raw: cols[3].(*array.Int64).Value(i), Precision: sp},
			TsEvent:    ts.Value(i),
		})
	}
	return nil
}

// columns looks the expected fields up by name and checks their types.
func columns(rec arrow.Record, kind market.Kind) ([]arrow.Array, error) {
	fields := quoteFields
	if kind == market.KindTrade {
		fields = tradeFields
	}
	out := make([]arrow.Array, len(fields))
	for i, f := range fields {
		idx := rec.Schema().FieldIndices(f.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: column %q missing", market.ErrSchema, f.Name)
		}
		col := rec.Column(idx[0])
		if !arrow.TypeEqual(col.DataType(), f.Type) {
			return nil, fmt.Errorf("%w: column %q is %s, want %s", market.ErrSchema, f.Name, col.DataType(), f.Type)
		}
		if col.NullN() > 0 {
			return nil, fmt.Errorf("%w: column %q has nulls", market.ErrSchema, f.Name)
		}
		out[i] = col
	}
	return out, nil
}
