// Package normalize 把原始行的价格/数量转换为合约精度下的定点值。
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/source"
)

// DefaultQuoteSize is used for bid/ask sizes when a quote source carries no
// size columns (e.g. TrueFX dumps).
const DefaultQuoteSize = "1000000"

// Column candidates, first match wins.
var (
	BidColumns     = []string{"bid", "bid_price"}
	AskColumns     = []string{"ask", "ask_price"}
	BidSizeColumns = []string{"bid_size", "bid_qty", "bid_volume"}
	AskSizeColumns = []string{"ask_size", "ask_qty", "ask_volume"}
	PriceColumns   = []string{"price", "px"}
	SizeColumns    = []string{"size", "quantity", "qty", "amount"}
	SideColumns    = []string{"aggressor_side", "side"}
	MakerColumns   = []string{"buyer_maker", "is_buyer_maker"}
	TradeIDColumns = []string{"trade_id", "id", "match_id"}
)

// Quote is a normalized quote row.
type Quote struct {
	Row     source.RawRow
	Bid     market.PriceQty
	Ask     market.PriceQty
	BidSize market.PriceQty
	AskSize market.PriceQty
}

// Trade is a normalized trade row.
type Trade struct {
	Row       source.RawRow
	Price     market.PriceQty
	Size      market.PriceQty
	Aggressor market.AggressorSide
	TradeID   string
}

// QuoteNormalizer resolves quote columns once per header and converts rows.
type QuoteNormalizer struct {
	inst        *instrument.Context
	defaultSize string
	bid, ask    string
	bidSize     string
	askSize     string
}

// NewQuoteNormalizer checks the header for bid/ask columns. Size columns are
// optional; when absent every row gets defaultSize ("" means DefaultQuoteSize).
func NewQuoteNormalizer(inst *instrument.Context, h *source.Header, defaultSize string) (*QuoteNormalizer, error) {
	if defaultSize == "" {
		defaultSize = DefaultQuoteSize
	}
	n := &QuoteNormalizer{inst: inst, defaultSize: defaultSize}
	var ok bool
	if n.bid, ok = h.First(BidColumns...); !ok {
		return nil, missing(BidColumns, h)
	}
	if n.ask, ok = h.First(AskColumns...); !ok {
		return nil, missing(AskColumns, h)
	}
	n.bidSize, _ = h.First(BidSizeColumns...)
	n.askSize, _ = h.First(AskSizeColumns...)
	return n, nil
}

// Normalize converts one row. The returned error is a *market.RowError.
func (n *QuoteNormalizer) Normalize(row source.RawRow) (Quote, error) {
	q := Quote{Row: row}
	var err error
	pp, sp := n.inst.PricePrecision(), n.inst.SizePrecision()
	if q.Bid, err = price(row, n.bid, pp); err != nil {
		return q, err
	}
	if q.Ask, err = price(row, n.ask, pp); err != nil {
		return q, err
	}
	if q.BidSize, err = quoteSize(row, n.bidSize, n.defaultSize, sp); err != nil {
		return q, err
	}
	if q.AskSize, err = quoteSize(row, n.askSize, n.defaultSize, sp); err != nil {
		return q, err
	}
	return q, nil
}

// TradeNormalizer resolves trade columns once per header and converts rows.
type TradeNormalizer struct {
	inst    *instrument.Context
	price   string
	size    string
	side    string
	maker   string
	tradeID string
}

// NewTradeNormalizer requires price, size and trade id columns. The
// aggressor comes from a side column or, failing that, buyer_maker; with
// neither every trade is NO_AGGRESSOR.
func NewTradeNormalizer(inst *instrument.Context, h *source.Header) (*TradeNormalizer, error) {
	n := &TradeNormalizer{inst: inst}
	var ok bool
	if n.price, ok = h.First(PriceColumns...); !ok {
		return nil, missing(PriceColumns, h)
	}
	if n.size, ok = h.First(SizeColumns...); !ok {
		return nil, missing(SizeColumns, h)
	}
	if n.tradeID, ok = h.First(TradeIDColumns...); !ok {
		return nil, missing(TradeIDColumns, h)
	}
	n.side, _ = h.First(SideColumns...)
	if n.side == "" {
		n.maker, _ = h.First(MakerColumns...)
	}
	return n, nil
}

func (n *TradeNormalizer) Normalize(row source.RawRow) (Trade, error) {
	tr := Trade{Row: row}
	var err error
	if tr.Price, err = price(row, n.price, n.inst.PricePrecision()); err != nil {
		return tr, err
	}
	if tr.Size, err = value(row, n.size, n.inst.SizePrecision()); err != nil {
		return tr, err
	}
	if !tr.Size.IsPositive() {
		return tr, rowErr(market.ErrInvalidValue, row, n.size, cell(row, n.size), "trade size must be positive")
	}
	switch {
	case n.side != "":
		raw := cell(row, n.side)
		if tr.Aggressor, err = market.ParseAggressorSide(raw); err != nil {
			return tr, rowErr(market.ErrParse, row, n.side, raw, err.Error())
		}
	case n.maker != "":
		raw := cell(row, n.maker)
		if tr.Aggressor, err = market.AggressorFromBuyerMaker(raw); err != nil {
			return tr, rowErr(market.ErrParse, row, n.maker, raw, err.Error())
		}
	}
	tr.TradeID = strings.TrimSpace(cell(row, n.tradeID))
	if tr.TradeID == "" {
		return tr, rowErr(market.ErrParse, row, n.tradeID, "", "empty trade id")
	}
	return tr, nil
}

func price(row source.RawRow, col string, precision uint8) (market.PriceQty, error) {
	p, err := value(row, col, precision)
	if err != nil {
		return p, err
	}
	if !p.IsPositive() {
		return p, rowErr(market.ErrInvalidValue, row, col, cell(row, col), "price must be positive")
	}
	return p, nil
}

func quoteSize(row source.RawRow, col, fallback string, precision uint8) (market.PriceQty, error) {
	if col == "" {
		p, err := market.ParsePriceQty(fallback, precision)
		if err != nil {
			return p, rowErr(kindOf(err), row, "", fallback, err.Error())
		}
		return p, nil
	}
	p, err := value(row, col, precision)
	if err != nil {
		return p, err
	}
	if p.IsNegative() {
		return p, rowErr(market.ErrInvalidValue, row, col, cell(row, col), "quote size must not be negative")
	}
	return p, nil
}

func value(row source.RawRow, col string, precision uint8) (market.PriceQty, error) {
	raw := cell(row, col)
	p, err := market.ParsePriceQty(raw, precision)
	if err != nil {
		kind := kindOf(err)
		return p, rowErr(kind, row, col, raw, strings.TrimPrefix(err.Error(), kind.Error()+": "))
	}
	return p, nil
}

func cell(row source.RawRow, col string) string {
	v, _ := row.Value(col)
	return v
}

func rowErr(kind error, row source.RawRow, col, raw, cause string) *market.RowError {
	return market.NewRowError(kind, row.Index, col, raw, cause).WithTimestamp(row.TsEvent)
}

func kindOf(err error) error {
	for _, k := range []error{market.ErrPrecisionLoss, market.ErrInvalidValue, market.ErrParse} {
		if errors.Is(err, k) {
			return k
		}
	}
	return market.ErrParse
}

func missing(candidates []string, h *source.Header) error {
	return fmt.Errorf("%w: none of %v in columns %v", market.ErrSchema, candidates, h.Columns())
}
