package market

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tick-wrangler/instrument"
)

// Bar is an OHLCV summary of one fixed interval.
type Bar struct {
	Instrument *instrument.Context
	Open       PriceQty
	High       PriceQty
	Low        PriceQty
	Close      PriceQty
	Volume     PriceQty
	Count      int
	TsOpen     int64 // 区间起点（按 interval 对齐）
	TsEvent    int64 // 区间内最后一笔的时间
}

// String: "{instrument_id},{open},{high},{low},{close},{volume},{ts_open}".
func (b Bar) String() string {
	var sb strings.Builder
	sb.Grow(80)
	sb.WriteString(b.Instrument.ID())
	for _, v := range [...]PriceQty{b.Open, b.High, b.Low, b.Close, b.Volume} {
		sb.WriteByte(',')
		sb.WriteString(v.String())
	}
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(b.TsOpen, 10))
	return sb.String()
}

// BarAggregator 从时间有序的成交/报价流生成固定周期的 Bar。
type BarAggregator struct {
	interval int64
	mu       sync.Mutex
	current  *Bar
}

func NewBarAggregator(interval time.Duration) (*BarAggregator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: bar interval must be positive", ErrInvalidValue)
	}
	return &BarAggregator{interval: int64(interval)}, nil
}

// OnTrade 更新当前 Bar；跨入新区间时返回已闭合的 Bar，否则返回 nil。
func (a *BarAggregator) OnTrade(t TradeTick) *Bar {
	return a.on(t.Instrument, t.Price, t.Size, t.TsEvent)
}

// OnQuote aggregates the quote mid price; volume stays zero.
func (a *BarAggregator) OnQuote(q QuoteTick) (*Bar, error) {
	mid, err := q.Mid()
	if err != nil {
		return nil, err
	}
	return a.on(q.Instrument, mid, PriceQty{Precision: q.BidSize.Precision}, q.TsEvent), nil
}

func (a *BarAggregator) on(inst *instrument.Context, price, size PriceQty, ts int64) *Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	open := ts - ts%a.interval
	if ts < 0 && ts%a.interval != 0 {
		open -= a.interval
	}
	var closed *Bar
	if a.current != nil && a.current.TsOpen != open {
		closed = a.current
		a.current = nil
	}
	if a.current == nil {
		a.current = &Bar{
			Instrument: inst,
			Open:       price,
			High:       price,
			Low:        price,
			Close:      price,
			Volume:     size,
			Count:      1,
			TsOpen:     open,
			TsEvent:    ts,
		}
		return closed
	}
	c := a.current
	if price.Raw > c.High.Raw {
		c.High = price
	}
	if price.Raw < c.Low.Raw {
		c.Low = price
	}
	c.Close = price
	c.Volume.Raw += size.Raw
	c.Count++
	c.TsEvent = ts
	return closed
}

// Flush 返回并清除尚未闭合的 Bar。
func (a *BarAggregator) Flush() *Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.current
	a.current = nil
	return b
}

// AggregateBars summarizes a whole series. Quote series use the mid price.
func AggregateBars(s *TickSeries, interval time.Duration) ([]Bar, error) {
	agg, err := NewBarAggregator(interval)
	if err != nil {
		return nil, err
	}
	var bars []Bar
	push := func(b *Bar) {
		if b != nil {
			bars = append(bars, *b)
		}
	}
	switch s.Kind {
	case KindTrade:
		for _, t := range s.Trades {
			push(agg.OnTrade(t))
		}
	case KindQuote:
		for i, q := range s.Quotes {
			b, err := agg.OnQuote(q)
			if err != nil {
				return nil, fmt.Errorf("quote %d: %w", i, err)
			}
			push(b)
		}
	default:
		return nil, fmt.Errorf("%w: unknown series kind", ErrSchema)
	}
	push(agg.Flush())
	return bars, nil
}
