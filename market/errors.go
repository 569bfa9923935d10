package market

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类：结构性错误（文件、schema）直接中止整次加载；
// 行级错误（解析、精度、取值）进入 reject 报告；乱序在默认策略下中止。
var (
	ErrFileNotFound       = errors.New("file not found")
	ErrSchema             = errors.New("schema error")
	ErrParse              = errors.New("parse error")
	ErrPrecisionLoss      = errors.New("precision loss")
	ErrInvalidValue       = errors.New("invalid value")
	ErrOutOfOrder         = errors.New("out of order")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
)

// NoTimestamp marks a RowError raised before the row timestamp was known.
const NoTimestamp int64 = -1

// RowError reports a failure tied to a single input row.
type RowError struct {
	Kind      error
	Row       int
	Timestamp int64
	Column    string
	Value     string
	Cause     string
}

// NewRowError builds a RowError; Timestamp starts as NoTimestamp.
func NewRowError(kind error, row int, column, value, cause string) *RowError {
	return &RowError{
		Kind:      kind,
		Row:       row,
		Timestamp: NoTimestamp,
		Column:    column,
		Value:     value,
		Cause:     cause,
	}
}

// WithTimestamp returns a copy carrying ts.
func (e *RowError) WithTimestamp(ts int64) *RowError {
	cp := *e
	cp.Timestamp = ts
	return &cp
}

func (e *RowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v at row %d", e.Kind, e.Row)
	if e.Timestamp != NoTimestamp {
		fmt.Fprintf(&b, " (ts=%d)", e.Timestamp)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Cause != "" {
		b.WriteString(": ")
		b.WriteString(e.Cause)
	}
	return b.String()
}

func (e *RowError) Unwrap() error { return e.Kind }

// KindName 返回错误分类名，用于日志字段和指标 label。
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrPrecisionLoss):
		return "precision_loss"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrDuplicateTimestamp):
		return "duplicate_timestamp"
	default:
		return "unknown"
	}
}
