// Package instrument 保存合约标识与价格/数量精度。
package instrument

import (
	"errors"
	"fmt"
	"strings"
)

// MaxPrecision is the largest decimal scale a fixed-point value can carry.
const MaxPrecision = 9

var (
	ErrEmptyID          = errors.New("instrument id is required")
	ErrInvalidPrecision = errors.New("precision out of range")
)

// Context describes one instrument. It is created once per wrangler and
// shared by pointer across every record the wrangler produces, so it must
// never be mutated after NewContext returns.
type Context struct {
	id             string
	pricePrecision uint8
	sizePrecision  uint8
}

// NewContext validates and builds an instrument context.
func NewContext(id string, pricePrecision, sizePrecision int) (*Context, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	if pricePrecision < 0 || pricePrecision > MaxPrecision {
		return nil, fmt.Errorf("%w: price precision %d (want 0..%d)", ErrInvalidPrecision, pricePrecision, MaxPrecision)
	}
	if sizePrecision < 0 || sizePrecision > MaxPrecision {
		return nil, fmt.Errorf("%w: size precision %d (want 0..%d)", ErrInvalidPrecision, sizePrecision, MaxPrecision)
	}
	return &Context{
		id:             id,
		pricePrecision: uint8(pricePrecision),
		sizePrecision:  uint8(sizePrecision),
	}, nil
}

func (c *Context) ID() string { return c.id }

func (c *Context) PricePrecision() uint8 { return c.pricePrecision }

func (c *Context) SizePrecision() uint8 { return c.sizePrecision }

// Symbol 返回 id 中 venue 之前的部分，例如 "AUD/USD.SIM" -> "AUD/USD"。
func (c *Context) Symbol() string {
	if i := strings.LastIndex(c.id, "."); i > 0 {
		return c.id[:i]
	}
	return c.id
}

// Venue 返回 id 的 venue 后缀，没有则为空。
func (c *Context) Venue() string {
	if i := strings.LastIndex(c.id, "."); i > 0 && i < len(c.id)-1 {
		return c.id[i+1:]
	}
	return ""
}

func (c *Context) String() string {
	return fmt.Sprintf("%s(price=%d,size=%d)", c.id, c.pricePrecision, c.sizePrecision)
}
