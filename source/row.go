package source

// RawRow is one input record after the timestamp has been resolved.
// Values hold the remaining cells as text, untouched, so unknown columns
// pass through.
type RawRow struct {
	Index   int
	TsEvent int64
	values  []string
	header  *Header
}

// Value returns the cell of column name.
func (r RawRow) Value(name string) (string, bool) {
	if r.header == nil {
		return "", false
	}
	i := r.header.Index(name)
	if i < 0 || i >= len(r.values) {
		return "", false
	}
	return r.values[i], true
}

func (r RawRow) Values() []string { return r.values }

func (r RawRow) Header() *Header { return r.header }
