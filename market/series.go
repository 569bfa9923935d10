package market

import "tick-wrangler/instrument"

// Kind 区分报价与成交序列。
type Kind uint8

const (
	KindQuote Kind = iota + 1
	KindTrade
)

func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// ParseKind accepts "quote"/"trade" (plural forms too).
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "quote", "quotes":
		return KindQuote, true
	case "trade", "trades":
		return KindTrade, true
	}
	return 0, false
}

// Tick is implemented by QuoteTick and TradeTick.
type Tick interface {
	InstrumentID() string
	Timestamp() int64
	String() string
}

// TickSeries is an ordered, chronological run of ticks for one instrument.
// Exactly one of Quotes/Trades is populated, according to Kind.
type TickSeries struct {
	Kind       Kind
	Instrument *instrument.Context
	Quotes     []QuoteTick
	Trades     []TradeTick
}

func NewQuoteSeries(inst *instrument.Context, capacity int) *TickSeries {
	return &TickSeries{Kind: KindQuote, Instrument: inst, Quotes: make([]QuoteTick, 0, capacity)}
}

func NewTradeSeries(inst *instrument.Context, capacity int) *TickSeries {
	return &TickSeries{Kind: KindTrade, Instrument: inst, Trades: make([]TradeTick, 0, capacity)}
}

func (s *TickSeries) Len() int {
	if s == nil {
		return 0
	}
	if s.Kind == KindTrade {
		return len(s.Trades)
	}
	return len(s.Quotes)
}

// At returns the i-th record.
func (s *TickSeries) At(i int) Tick {
	if s.Kind == KindTrade {
		return s.Trades[i]
	}
	return s.Quotes[i]
}

// First returns nil for an empty series.
func (s *TickSeries) First() Tick {
	if s.Len() == 0 {
		return nil
	}
	return s.At(0)
}

func (s *TickSeries) Last() Tick {
	if s.Len() == 0 {
		return nil
	}
	return s.At(s.Len() - 1)
}

// Strings renders every record, in order.
func (s *TickSeries) Strings() []string {
	out := make([]string, s.Len())
	for i := range out {
		out[i] = s.At(i).String()
	}
	return out
}

// Each 按顺序遍历，fn 返回 false 时停止。
func (s *TickSeries) Each(fn func(i int, t Tick) bool) {
	for i := 0; i < s.Len(); i++ {
		if !fn(i, s.At(i)) {
			return
		}
	}
}
