package wrangler

import (
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/normalize"
)

// materializer appends immutable tick values to a series. Every record
// points at the same instrument context.
type materializer struct {
	inst   *instrument.Context
	series *market.TickSeries
}

func newMaterializer(inst *instrument.Context, kind market.Kind) *materializer {
	m := &materializer{inst: inst}
	if kind == market.KindTrade {
		m.series = market.NewTradeSeries(inst, 0)
	} else {
		m.series = market.NewQuoteSeries(inst, 0)
	}
	return m
}

func (m *materializer) quote(q normalize.Quote) {
	m.series.Quotes = append(m.series.Quotes, market.QuoteTick{
		Instrument: m.inst,
		Bid:        q.Bid,
		Ask:        q.Ask,
		BidSize:    q.BidSize,
		AskSize:    q.AskSize,
		TsEvent:    q.Row.TsEvent,
	})
}

func (m *materializer) trade(t normalize.Trade) {
	m.series.Trades = append(m.series.Trades, market.TradeTick{
		Instrument: m.inst,
		Price:      t.Price,
		Size:       t.Size,
		Aggressor:  t.Aggressor,
		TradeID:    t.TradeID,
		TsEvent:    t.Row.TsEvent,
	})
}
