package instrument

import (
	"fmt"
	"sort"
)

// Spec is the precision metadata of one instrument as supplied by config
// or an external metadata provider.
type Spec struct {
	ID             string
	PricePrecision int
	SizePrecision  int
}

// Registry 只读的合约查找表，构建后可被多个 pipeline 并发读取。
type Registry struct {
	byID map[string]*Context
}

// NewRegistry builds contexts for every spec; duplicate ids are rejected.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Context, len(specs))}
	for _, s := range specs {
		ctx, err := NewContext(s.ID, s.PricePrecision, s.SizePrecision)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", s.ID, err)
		}
		if _, dup := r.byID[ctx.ID()]; dup {
			return nil, fmt.Errorf("instrument %q defined twice", ctx.ID())
		}
		r.byID[ctx.ID()] = ctx
	}
	return r, nil
}

// Lookup returns the context for id.
func (r *Registry) Lookup(id string) (*Context, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.byID[id]
	return c, ok
}

// IDs 返回排序后的 id 列表。
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int { return len(r.byID) }
