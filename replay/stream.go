package replay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"tick-wrangler/market"
)

// Window selects and paces the records of a replay.
type Window struct {
	Speed float64 // 0 = no pacing
	From  int64   // inclusive, ns
	To    int64   // inclusive, ns; negative = unbounded
}

// sleep is swapped in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stream calls emit for each record of series inside win, waiting the
// scaled gap between consecutive event timestamps. It returns the number
// of records emitted.
func Stream(ctx context.Context, series *market.TickSeries, win Window, emit func(string) error) (int, error) {
	sent := 0
	prev := int64(0)
	var err error
	series.Each(func(_ int, t market.Tick) bool {
		ts := t.Timestamp()
		if ts < win.From {
			return true
		}
		if win.To >= 0 && ts > win.To {
			return false
		}
		if sent > 0 && win.Speed > 0 && ts > prev {
			gap := time.Duration(float64(ts-prev) / win.Speed)
			if err = sleep(ctx, gap); err != nil {
				return false
			}
		}
		if err = ctx.Err(); err != nil {
			return false
		}
		if err = emit(t.String()); err != nil {
			return false
		}
		prev = ts
		sent++
		return true
	})
	return sent, err
}

// Subscribe dials a replay endpoint and hands every message to fn until
// the server closes the stream. A normal close returns nil.
func Subscribe(ctx context.Context, url string, fn func(line string) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := fn(string(message)); err != nil {
			return err
		}
	}
}
