package market

import (
	"fmt"
	"strconv"
	"strings"

	"tick-wrangler/instrument"
)

// AggressorSide 表示主动成交方。
type AggressorSide uint8

const (
	NoAggressor AggressorSide = iota
	Buyer
	Seller
)

func (s AggressorSide) String() string {
	switch s {
	case Buyer:
		return "BUYER"
	case Seller:
		return "SELLER"
	default:
		return "NO_AGGRESSOR"
	}
}

// ParseAggressorSide accepts the spellings found in exchange dumps.
func ParseAggressorSide(text string) (AggressorSide, error) {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "BUYER", "BUY", "B", "BID":
		return Buyer, nil
	case "SELLER", "SELL", "S", "ASK":
		return Seller, nil
	case "NO_AGGRESSOR", "NONE", "":
		return NoAggressor, nil
	}
	return NoAggressor, fmt.Errorf("%w: unknown aggressor side %q", ErrParse, text)
}

// AggressorFromBuyerMaker: when the buyer rested on the book the seller
// crossed the spread, and vice versa.
func AggressorFromBuyerMaker(text string) (AggressorSide, error) {
	maker, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return NoAggressor, fmt.Errorf("%w: buyer_maker %q is not a boolean", ErrParse, text)
	}
	if maker {
		return Seller, nil
	}
	return Buyer, nil
}

// TradeTick represents a normalized trade tick.
type TradeTick struct {
	Instrument *instrument.Context
	Price      PriceQty
	Size       PriceQty
	Aggressor  AggressorSide
	TradeID    string
	TsEvent    int64
}

func (t TradeTick) InstrumentID() string { return t.Instrument.ID() }

func (t TradeTick) Timestamp() int64 { return t.TsEvent }

// String: "{instrument_id},{price},{size},{aggressor},{trade_id},{timestamp_ns}".
func (t TradeTick) String() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(t.Instrument.ID())
	b.WriteByte(',')
	b.WriteString(t.Price.String())
	b.WriteByte(',')
	b.WriteString(t.Size.String())
	b.WriteByte(',')
	b.WriteString(t.Aggressor.String())
	b.WriteByte(',')
	b.WriteString(t.TradeID)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(t.TsEvent, 10))
	return b.String()
}
