package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"tick-wrangler/instrument"
)

// QuoteTick is a top-of-book update.
type QuoteTick struct {
	Instrument *instrument.Context
	Bid        PriceQty
	Ask        PriceQty
	BidSize    PriceQty
	AskSize    PriceQty
	TsEvent    int64
}

func (q QuoteTick) InstrumentID() string { return q.Instrument.ID() }

func (q QuoteTick) Timestamp() int64 { return q.TsEvent }

// String: "{instrument_id},{bid},{ask},{bid_size},{ask_size},{timestamp_ns}".
func (q QuoteTick) String() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(q.Instrument.ID())
	for _, v := range [...]PriceQty{q.Bid, q.Ask, q.BidSize, q.AskSize} {
		b.WriteByte(',')
		b.WriteString(v.String())
	}
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(q.TsEvent, 10))
	return b.String()
}

// Mid 中间价，精度提高一位以保持精确；bid 精度已是 MaxPrecision 或
// raw 溢出 int64 时返回 ErrPrecisionLoss / ErrInvalidValue。
func (q QuoteTick) Mid() (PriceQty, error) {
	if q.Bid.Precision >= instrument.MaxPrecision {
		return PriceQty{}, fmt.Errorf("%w: mid of precision %d quote exceeds max precision %d", ErrPrecisionLoss, q.Bid.Precision, instrument.MaxPrecision)
	}
	const lim = math.MaxInt64 / 10
	if q.Bid.Raw > lim || q.Bid.Raw < -lim || q.Ask.Raw > lim || q.Ask.Raw < -lim {
		return PriceQty{}, fmt.Errorf("%w: mid of %s/%s overflows int64", ErrInvalidValue, q.Bid, q.Ask)
	}
	return PriceQty{Raw: q.Bid.Raw*5 + q.Ask.Raw*5, Precision: q.Bid.Precision + 1}, nil
}
