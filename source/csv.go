package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"tick-wrangler/market"
)

// CSVSource streams rows from a CSV file with a header line.
type CSVSource struct {
	file   *os.File
	reader *csv.Reader
	header *Header
	parser *TimestampParser
	row    int
}

// OpenCSV opens path and validates the header. A missing file or a missing
// timestamp column fails here, before any row is read.
func OpenCSV(path string, opts Options) (*CSVSource, error) {
	opts = opts.withDefaults()
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	src, err := newCSVSource(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.file = f
	return src, nil
}

// NewCSVReader reads CSV from r. Zero bytes of input is an empty source.
func NewCSVReader(r io.Reader, opts Options) (*CSVSource, error) {
	return newCSVSource(r, opts.withDefaults())
}

func newCSVSource(r io.Reader, opts Options) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Reader.Delimiter
	cr.Comment = opts.Reader.Comment
	cr.LazyQuotes = opts.Reader.LazyQuotes
	cr.TrimLeadingSpace = opts.Reader.TrimLeadingSpace
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	cols, err := cr.Read()
	if err == io.EOF {
		return &CSVSource{reader: cr, header: emptyHeader(opts), parser: NewTimestampParser(opts.Format, opts.Reader.EpochUnit)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", market.ErrSchema, err)
	}
	h, err := newHeader(cols, opts)
	if err != nil {
		return nil, err
	}
	return &CSVSource{
		reader: cr,
		header: h,
		parser: NewTimestampParser(opts.Format, opts.Reader.EpochUnit),
	}, nil
}

func (s *CSVSource) Header() *Header { return s.header }

func (s *CSVSource) Next() (RawRow, error) {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return RawRow{}, io.EOF
	}
	idx := s.row
	s.row++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return RawRow{}, market.NewRowError(market.ErrParse, idx, "", "", pe.Err.Error())
		}
		return RawRow{}, err
	}
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

func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// emptyHeader lets a zero-byte file load as an empty source.
func emptyHeader(opts Options) *Header {
	return &Header{
		names: []string{opts.IndexColumn},
		index: map[string]int{opts.IndexColumn: 0},
		empty: true,
	}
}
