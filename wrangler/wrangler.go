// Package wrangler turns tabular tick data into validated, time-ordered
// quote or trade series.
//
// A Wrangler runs the pipeline source -> normalize -> ordering ->
// materialize in one forward pass per call. It holds no state between
// calls, so one Wrangler may be used from several goroutines and separate
// files can be processed in parallel.
package wrangler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"

	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/instrument"
	"tick-wrangler/market"
	"tick-wrangler/normalize"
	"tick-wrangler/ordering"
	"tick-wrangler/source"
)

// Result is the output of one pipeline run.
type Result struct {
	RunID  string
	Series *market.TickSeries
	// Rows counts every data row read, rejected ones included.
	Rows    int
	Rejects []*market.RowError
}

// Wrangler processes data for one instrument and one tick kind.
type Wrangler struct {
	inst *instrument.Context
	kind market.Kind
	opts Options
}

// NewQuoteWrangler builds a quote wrangler for instrumentID.
func NewQuoteWrangler(instrumentID string, pricePrecision, sizePrecision int, opts ...Option) (*Wrangler, error) {
	inst, err := instrument.NewContext(instrumentID, pricePrecision, sizePrecision)
	if err != nil {
		return nil, err
	}
	return New(inst, market.KindQuote, opts...)
}

// NewTradeWrangler builds a trade wrangler for instrumentID.
func NewTradeWrangler(instrumentID string, pricePrecision, sizePrecision int, opts ...Option) (*Wrangler, error) {
	inst, err := instrument.NewContext(instrumentID, pricePrecision, sizePrecision)
	if err != nil {
		return nil, err
	}
	return New(inst, market.KindTrade, opts...)
}

// New builds a wrangler around an existing (shared) instrument context.
func New(inst *instrument.Context, kind market.Kind, opts ...Option) (*Wrangler, error) {
	if inst == nil {
		return nil, instrument.ErrEmptyID
	}
	if kind != market.KindQuote && kind != market.KindTrade {
		return nil, fmt.Errorf("unsupported tick kind %d", kind)
	}
	o := Options{Source: source.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return &Wrangler{inst: inst, kind: kind, opts: o}, nil
}

func (w *Wrangler) Instrument() *instrument.Context { return w.inst }

func (w *Wrangler) Kind() market.Kind { return w.kind }

// ProcessRecordBatchesBytes processes an Arrow IPC stream.
func (w *Wrangler) ProcessRecordBatchesBytes(data []byte) (*Result, error) {
	src, err := source.OpenIPC(data, w.opts.Source)
	if err != nil {
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.Process(src)
}

// ProcessTable processes an in-memory Arrow table.
func (w *Wrangler) ProcessTable(tbl arrow.Table) (*Result, error) {
	src, err := source.OpenTable(tbl, w.opts.Source)
	if err != nil {
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.Process(src)
}

// ProcessFrame processes an in-memory text frame.
func (w *Wrangler) ProcessFrame(f *source.Frame) (*Result, error) {
	src, err := source.OpenFrame(f, w.opts.Source)
	if err != nil {
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.Process(src)
}

// ProcessCSV streams a CSV file through the pipeline.
func (w *Wrangler) ProcessCSV(path string) (*Result, error) {
	src, err := source.OpenCSV(path, w.opts.Source)
	if err != nil {
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.Process(src)
}

// ProcessParquet processes a Parquet file.
func (w *Wrangler) ProcessParquet(ctx context.Context, path string) (*Result, error) {
	src, err := source.OpenParquet(ctx, path, w.opts.Source)
	if err != nil {
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.Process(src)
}

// ProcessFile picks the adapter from the file extension: .csv, .parquet,
// anything else is read as an Arrow IPC stream.
func (w *Wrangler) ProcessFile(ctx context.Context, path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return w.ProcessCSV(path)
	case ".parquet":
		return w.ProcessParquet(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", market.ErrFileNotFound, path)
		}
		return nil, w.fail(uuid.NewString(), err)
	}
	return w.ProcessRecordBatchesBytes(data)
}

// Process drains src through normalize, ordering and materialize, closing
// src when done.
//
// Structural errors and out-of-order timestamps abort with no result.
// Per-row errors are collected in Result.Rejects, or abort when the
// wrangler is strict.
func (w *Wrangler) Process(src source.Source) (*Result, error) {
	defer src.Close()
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	mat := newMaterializer(w.inst, w.kind)
	res.Series = mat.series

	header := src.Header()
	if header.Empty() {
		w.finish(res, start)
		return res, nil
	}

	step, err := w.stepper(header, mat)
	if err != nil {
		return nil, w.fail(res.RunID, err)
	}
	orderer := ordering.New(w.opts.Policy)

	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		var rowErr *market.RowError
		if err != nil {
			if !errors.As(err, &rowErr) {
				return nil, w.fail(res.RunID, err)
			}
			res.Rows++
			if err := w.reject(res, rowErr); err != nil {
				return nil, err
			}
			continue
		}
		res.Rows++

		emit, err := step(row)
		if err != nil {
			if errors.As(err, &rowErr) {
				if err := w.reject(res, rowErr); err != nil {
					return nil, err
				}
				continue
			}
			return nil, w.fail(res.RunID, err)
		}

		decision, err := orderer.Accept(row.Index, row.TsEvent)
		if decision == ordering.Drop {
			if errors.As(err, &rowErr) {
				w.report(res, rowErr)
			}
			continue
		}
		if err != nil {
			return nil, w.fail(res.RunID, err)
		}
		emit()
	}

	w.finish(res, start)
	return res, nil
}

// stepper resolves the kind-specific columns once and returns a function
// that normalizes a row and yields the deferred append for it.
func (w *Wrangler) stepper(h *source.Header, mat *materializer) (func(source.RawRow) (func(), error), error) {
	if w.kind == market.KindTrade {
		n, err := normalize.NewTradeNormalizer(w.inst, h)
		if err != nil {
			return nil, err
		}
		return func(row source.RawRow) (func(), error) {
			t, err := n.Normalize(row)
			if err != nil {
				return nil, err
			}
			return func() { mat.trade(t) }, nil
		}, nil
	}
	n, err := normalize.NewQuoteNormalizer(w.inst, h, w.opts.DefaultQuoteSize)
	if err != nil {
		return nil, err
	}
	return func(row source.RawRow) (func(), error) {
		q, err := n.Normalize(row)
		if err != nil {
			return nil, err
		}
		return func() { mat.quote(q) }, nil
	}, nil
}

// reject records a per-row data error, or aborts in strict mode.
func (w *Wrangler) reject(res *Result, rowErr *market.RowError) error {
	if w.opts.Strict {
		return w.fail(res.RunID, rowErr)
	}
	w.report(res, rowErr)
	return nil
}

func (w *Wrangler) report(res *Result, rowErr *market.RowError) {
	res.Rejects = append(res.Rejects, rowErr)
	w.opts.Observer.RecordReject(market.KindName(rowErr))
	w.opts.Logger.LogReject(rowErr, map[string]interface{}{
		"run_id":        res.RunID,
		"instrument_id": w.inst.ID(),
	})
}

func (w *Wrangler) finish(res *Result, start time.Time) {
	kind := w.kind.String()
	w.opts.Observer.RecordRowsLoaded(kind, res.Rows)
	w.opts.Observer.RecordRecordsEmitted(kind, res.Series.Len())
	w.opts.Observer.RecordRun(kind, "ok", time.Since(start))
	w.opts.Logger.LogIngest("ingest_summary", map[string]interface{}{
		"run_id":        res.RunID,
		"instrument_id": w.inst.ID(),
		"kind":          kind,
		"rows":          res.Rows,
		"emitted":       res.Series.Len(),
		"rejected":      len(res.Rejects),
		"policy":        w.opts.Policy.String(),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
}

func (w *Wrangler) fail(runID string, err error) error {
	kind := w.kind.String()
	w.opts.Observer.RecordRun(kind, market.KindName(err), 0)
	w.opts.Logger.LogError(err, map[string]interface{}{
		"run_id":        runID,
		"instrument_id": w.inst.ID(),
		"tick_kind":     kind,
	})
	return err
}
