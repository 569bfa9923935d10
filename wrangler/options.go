package wrangler

import (
	"time"

	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/ordering"
	"tick-wrangler/source"
)

// Observer receives pipeline counters; infrastructure/monitor.Monitor
// implements it.
type Observer interface {
	RecordRowsLoaded(kind string, n int)
	RecordRecordsEmitted(kind string, n int)
	RecordReject(reason string)
	RecordRun(kind, status string, d time.Duration)
}

// Options configure a Wrangler.
type Options struct {
	Source source.Options
	Policy ordering.Policy
	// Strict aborts on the first per-row error instead of reporting it.
	Strict bool
	// DefaultQuoteSize fills bid/ask sizes for quote sources without size
	// columns; empty means normalize.DefaultQuoteSize.
	DefaultQuoteSize string
	Logger           *logger.Logger
	Observer         Observer
}

type Option func(*Options)

func WithSourceOptions(o source.Options) Option {
	return func(opts *Options) { opts.Source = o }
}

func WithPolicy(p ordering.Policy) Option {
	return func(opts *Options) { opts.Policy = p }
}

func WithStrict(strict bool) Option {
	return func(opts *Options) { opts.Strict = strict }
}

func WithDefaultQuoteSize(size string) Option {
	return func(opts *Options) { opts.DefaultQuoteSize = size }
}

func WithLogger(l *logger.Logger) Option {
	return func(opts *Options) { opts.Logger = l }
}

func WithObserver(o Observer) Option {
	return func(opts *Options) { opts.Observer = o }
}

type nopObserver struct{}

func (nopObserver) RecordRowsLoaded(string, int)            {}
func (nopObserver) RecordRecordsEmitted(string, int)        {}
func (nopObserver) RecordReject(string)                     {}
func (nopObserver) RecordRun(string, string, time.Duration) {}
