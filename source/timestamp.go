package source

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"

	"tick-wrangler/market"
)

// mixedLayouts are the fast path of Mixed parsing; anything else falls back
// to dateparse. Fractional seconds are accepted after the seconds field by
// time.Parse, so layouts omit them.
var mixedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"20060102 15:04:05",
	"20060102-15:04:05",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// TimestampParser turns timestamp cells into nanoseconds since the epoch.
// The mixed parser remembers the last layout that matched so homogeneous
// files only pay for one attempt per row.
type TimestampParser struct {
	format ParseFormat
	unit   EpochUnit
	last   int
}

func NewTimestampParser(format ParseFormat, unit EpochUnit) *TimestampParser {
	return &TimestampParser{format: format, unit: unit}
}

// Parse converts text to epoch nanoseconds; zone-less text is UTC.
func (p *TimestampParser) Parse(text string) (int64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty timestamp", market.ErrParse)
	}
	if !p.format.IsMixed() {
		t, err := time.Parse(p.format.Layout(), s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q does not match layout %q", market.ErrParse, s, p.format.Layout())
		}
		return nanos(t, s)
	}
	if isEpochNumber(s) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("%w: epoch %q: %v", market.ErrParse, s, err)
		}
		return p.FromDecimal(d)
	}
	if t, err := time.Parse(mixedLayouts[p.last], s); err == nil {
		return nanos(t, s)
	}
	for i, layout := range mixedLayouts {
		if i == p.last {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			p.last = i
			return nanos(t, s)
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: unrecognised timestamp %q", market.ErrParse, s)
	}
	return nanos(t, s)
}

// FromInt scales an integer epoch value; results outside int64 nanoseconds
// are a parse error.
func (p *TimestampParser) FromInt(v int64) (int64, error) {
	return ScaleNanos(v, p.unitFor(digits(v)).nanos())
}

// FromUint is FromInt for unsigned columns.
func (p *TimestampParser) FromUint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: epoch %d overflows int64", market.ErrParse, v)
	}
	return p.FromInt(int64(v))
}

// FromDecimal scales a possibly fractional epoch value, truncating below 1ns.
func (p *TimestampParser) FromDecimal(d decimal.Decimal) (int64, error) {
	unit := p.unitFor(digits(d.IntPart()))
	n := d.Mul(decimal.NewFromInt(unit.nanos())).Truncate(0)
	if !n.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: epoch %s overflows int64 nanoseconds", market.ErrParse, d)
	}
	return n.IntPart(), nil
}

// ScaleNanos multiplies v by the nanoseconds per unit, failing on overflow.
func ScaleNanos(v, perUnit int64) (int64, error) {
	if perUnit > 1 && (v > math.MaxInt64/perUnit || v < math.MinInt64/perUnit) {
		return 0, fmt.Errorf("%w: epoch %d x %d overflows int64 nanoseconds", market.ErrParse, v, perUnit)
	}
	return v * perUnit, nil
}

// nanos 拒绝超出 int64 纳秒范围（约 1677-2262 年）的时间。
func nanos(t time.Time, text string) (int64, error) {
	if t.Before(minTime) || t.After(maxTime) {
		return 0, fmt.Errorf("%w: %q outside the nanosecond epoch range", market.ErrParse, text)
	}
	return t.UnixNano(), nil
}

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

// unitFor infers the unit from magnitude: <=10 digits s, <=13 ms,
// <=16 us, otherwise ns.
func (p *TimestampParser) unitFor(n int) EpochUnit {
	if p.unit != UnitAuto {
		return p.unit
	}
	switch {
	case n <= 10:
		return UnitSeconds
	case n <= 13:
		return UnitMillis
	case n <= 16:
		return UnitMicros
	default:
		return UnitNanos
	}
}

func digits(v int64) int {
	if v < 0 {
		v = -v
	}
	n := 1
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}

func isEpochNumber(s string) bool {
	dot := false
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && !dot:
			dot = true
		case c == '-' && i == 0:
		default:
			return false
		}
	}
	return s != "-" && s != "."
}
