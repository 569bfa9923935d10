package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tick-wrangler/codec"
	"tick-wrangler/wrangler"
)

// ProcessFile runs one file through a fresh wrangler and writes the output
// series when OutDir is set.
func (b *Inbox) ProcessFile(ctx context.Context, path string) Outcome {
	out := Outcome{Path: path}
	start := time.Now()
	defer func() { b.logOutcome(out, time.Since(start)) }()

	inst, kind, ok := b.resolve(path)
	if !ok {
		out.Err = fmt.Errorf("%w: %s", ErrNoRoute, filepath.Base(path))
		return out
	}
	out.Instrument, out.Kind = inst.ID(), kind

	w, err := wrangler.New(inst, kind, b.opts...)
	if err != nil {
		out.Err = err
		return out
	}

	res, err := w.ProcessFile(ctx, path)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = res

	if b.cfg.OutDir != "" {
		out.Output, out.Err = b.write(path, res)
	}
	return out
}

// write stores the series next to a temp name first so readers never see a partial file.
func (b *Inbox) write(path string, res *wrangler.Result) (string, error) {
	if err := os.MkdirAll(b.cfg.OutDir, 0o755); err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "." + b.cfg.Format
	dst := filepath.Join(b.cfg.OutDir, name)
	f, err := os.CreateTemp(b.cfg.OutDir, "."+name+".*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if b.cfg.Format == FormatParquet {
		err = codec.WriteParquet(f, res.Series)
	} else {
		err = codec.EncodeTo(f, res.Series, codec.DefaultBatchRows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dst, nil
}

func (b *Inbox) logOutcome(out Outcome, elapsed time.Duration) {
	fields := map[string]interface{}{
		"path":          out.Path,
		"instrument_id": out.Instrument,
		"kind":          out.Kind.String(),
		"elapsed_ms":    elapsed.Milliseconds(),
	}
	if out.Err != nil {
		fields["status"] = "failed"
		fields["error"] = out.Err.Error()
		b.log.LogIngest("inbox_file", fields)
		return
	}
	fields["status"] = "ok"
	fields["run_id"] = out.Result.RunID
	fields["emitted"] = out.Result.Series.Len()
	fields["rejected"] = len(out.Result.Rejects)
	if out.Output != "" {
		fields["output"] = out.Output
	}
	b.log.LogIngest("inbox_file", fields)
}
