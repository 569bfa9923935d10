package source

import (
	"fmt"
	"strings"

	"tick-wrangler/market"
)

// Header maps canonical column names to positions. One Header is shared by
// every row of a source.
type Header struct {
	names   []string
	index   map[string]int
	tsIndex int
	empty   bool
}

func newHeader(columns []string, opts Options) (*Header, error) {
	h := &Header{
		names: make([]string, len(columns)),
		index: make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		name := strings.TrimSpace(c)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if alias, ok := opts.Reader.ColumnAliases[name]; ok {
			name = alias
		}
		h.names[i] = name
		if _, dup := h.index[name]; !dup {
			h.index[name] = i
		}
	}
	ts, ok := h.index[opts.IndexColumn]
	if !ok {
		return nil, fmt.Errorf("%w: timestamp column %q not found in %v", market.ErrSchema, opts.IndexColumn, h.names)
	}
	h.tsIndex = ts
	return h, nil
}

// Empty reports a source that had no header at all (a zero-byte file).
func (h *Header) Empty() bool { return h.empty }

// Columns returns the canonical column names in source order.
func (h *Header) Columns() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

func (h *Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Index returns the position of name, or -1.
func (h *Header) Index(name string) int {
	if i, ok := h.index[name]; ok {
		return i
	}
	return -1
}

// TimestampColumn is the canonical name of the index column.
func (h *Header) TimestampColumn() string { return h.names[h.tsIndex] }

// First returns the first of names present in the header.
func (h *Header) First(names ...string) (string, bool) {
	for _, n := range names {
		if h.Has(n) {
			return n, true
		}
	}
	return "", false
}
