package instrument

import (
	"errors"
	"testing"
)

func TestNewContext(t *testing.T) {
	c, err := NewContext("AUD/USD.SIM", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "AUD/USD.SIM" || c.PricePrecision() != 5 || c.SizePrecision() != 0 {
		t.Fatalf("unexpected context %s", c)
	}
	if c.Symbol() != "AUD/USD" || c.Venue() != "SIM" {
		t.Fatalf("symbol/venue split wrong: %s %s", c.Symbol(), c.Venue())
	}
}

func TestNewContextRejects(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		price int
		size  int
		want  error
	}{
		{"empty id", "  ", 2, 2, ErrEmptyID},
		{"negative price", "X.Y", -1, 2, ErrInvalidPrecision},
		{"size too large", "X.Y", 2, MaxPrecision + 1, ErrInvalidPrecision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewContext(tc.id, tc.price, tc.size)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry([]Spec{
		{ID: "ETHUSDT.BINANCE", PricePrecision: 2, SizePrecision: 5},
		{ID: "AUD/USD.SIM", PricePrecision: 5, SizePrecision: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 instruments, got %d", r.Len())
	}
	c, ok := r.Lookup("ETHUSDT.BINANCE")
	if !ok || c.SizePrecision() != 5 {
		t.Fatalf("lookup failed: %v %v", c, ok)
	}
	if ids := r.IDs(); ids[0] != "AUD/USD.SIM" {
		t.Fatalf("ids not sorted: %v", ids)
	}
	if _, err := NewRegistry([]Spec{{ID: "A.B"}, {ID: "A.B"}}); err == nil {
		t.Fatal("expected duplicate error")
	}
}
