package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tick-wrangler/instrument"
)

// PriceQty is a fixed-point decimal: value = Raw / 10^Precision.
// A PriceQty always holds its value exactly; construction fails rather than
// rounding.
type PriceQty struct {
	Raw       int64
	Precision uint8
}

// ParsePriceQty converts text into a PriceQty at precision.
// Trailing zeros beyond precision are accepted ("2.679000" at 5 is exact).
func ParsePriceQty(text string, precision uint8) (PriceQty, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return PriceQty{}, fmt.Errorf("%w: empty value", ErrParse)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return PriceQty{}, fmt.Errorf("%w: %q is not a decimal", ErrParse, s)
	}
	return FromDecimal(d, precision)
}

// FromDecimal scales d to precision without rounding.
func FromDecimal(d decimal.Decimal, precision uint8) (PriceQty, error) {
	if precision > instrument.MaxPrecision {
		return PriceQty{}, fmt.Errorf("%w: precision %d exceeds %d", ErrInvalidValue, precision, instrument.MaxPrecision)
	}
	scaled := d.Shift(int32(precision))
	if !scaled.IsInteger() {
		return PriceQty{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrPrecisionLoss, d.String(), precision)
	}
	raw := scaled.BigInt()
	if !raw.IsInt64() {
		return PriceQty{}, fmt.Errorf("%w: %s overflows at precision %d", ErrInvalidValue, d.String(), precision)
	}
	return PriceQty{Raw: raw.Int64(), Precision: precision}, nil
}

// Decimal 返回精确的 decimal 表示。
func (p PriceQty) Decimal() decimal.Decimal {
	return decimal.New(p.Raw, -int32(p.Precision))
}

func (p PriceQty) IsPositive() bool { return p.Raw > 0 }

func (p PriceQty) IsNegative() bool { return p.Raw < 0 }

// String renders exactly Precision fractional digits.
func (p PriceQty) String() string {
	return p.Decimal().StringFixed(int32(p.Precision))
}
