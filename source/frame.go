package source

import (
	"fmt"
	"io"

	"tick-wrangler/market"
)

// Frame is a small in-memory table of text cells, for callers that already
// hold parsed rows (tests, other adapters).
type Frame struct {
	Columns []string
	Rows    [][]string
}

// FrameSource iterates a Frame.
type FrameSource struct {
	frame  *Frame
	header *Header
	parser *TimestampParser
	pos    int
}

func OpenFrame(f *Frame, opts Options) (*FrameSource, error) {
	opts = opts.withDefaults()
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", market.ErrSchema)
	}
	h, err := newHeader(f.Columns, opts)
	if err != nil {
		return nil, err
	}
	return &FrameSource{frame: f, header: h, parser: NewTimestampParser(opts.Format, opts.Reader.EpochUnit)}, nil
}

func (s *FrameSource) Header() *Header { return s.header }

func (s *FrameSource) Next() (RawRow, error) {
	if s.pos >= len(s.frame.Rows) {
		return RawRow{}, io.EOF
	}
	idx := s.pos
	s.pos++
	rec := s.frame.Rows[idx]
	tsCol := s.header.tsIndex
	if tsCol >= len(rec) {
		return RawRow{}, market.NewRowError(market.ErrParse, idx, s.header.TimestampColumn(), "", "row is shorter than header")
	}
	ts, err := s.parser.Parse(rec[tsCol])
	if err != nil {
		return RawRow{}, market.NewRowError(market.ErrParse, idx, s.header.TimestampColumn(), rec[tsCol], err.Error())
	}
	return RawRow{Index: idx, TsEvent: ts, values: rec, header: s.header}, nil
}

func (s *FrameSource) Close() error { return nil }
