package alert

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tick-wrangler/infrastructure/logger"
)

// recordChannel 记录收到的告警，供测试断言
type recordChannel struct {
	name   string
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *recordChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *recordChannel) Name() string { return c.name }

func (c *recordChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestSendAlertSetsTimestamp(t *testing.T) {
	ch := &recordChannel{name: "rec"}
	mgr := NewManager([]Channel{ch}, time.Minute, Rules{})
	if err := mgr.SendAlert(Alert{Level: LevelInfo, Event: "test", Message: "hello"}); err != nil {
		t.Fatalf("SendAlert failed: %v", err)
	}
	if ch.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", ch.count())
	}
	if ch.alerts[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestThrottlingPerInstrument(t *testing.T) {
	ch := &recordChannel{name: "rec"}
	mgr := NewManager([]Channel{ch}, time.Hour, Rules{})
	boom := errors.New("schema")
	mgr.CheckRun("a.csv", "AUD/USD.SIM", 0, 0, boom)
	mgr.CheckRun("b.csv", "AUD/USD.SIM", 0, 0, boom)
	mgr.CheckRun("c.csv", "ETHUSDT.BINANCE", 0, 0, boom)
	if ch.count() != 2 {
		t.Fatalf("expected 2 alerts after throttling, got %d", ch.count())
	}
	mgr.ResetThrottle()
	mgr.CheckRun("d.csv", "AUD/USD.SIM", 0, 0, boom)
	if ch.count() != 3 {
		t.Fatalf("expected alert after reset, got %d", ch.count())
	}
}

func TestCheckRunRejectRatio(t *testing.T) {
	ch := &recordChannel{name: "rec"}
	mgr := NewManager([]Channel{ch}, 0, Rules{MaxRejectRatio: 0.1, MinRows: 10})

	mgr.CheckRun("small.csv", "X.Y", 5, 5, nil)
	mgr.CheckRun("ok.csv", "X.Y", 100, 10, nil)
	if ch.count() != 0 {
		t.Fatalf("unexpected alerts: %+v", ch.alerts)
	}
	mgr.CheckRun("bad.csv", "X.Y", 100, 11, nil)
	if ch.count() != 1 {
		t.Fatalf("expected reject ratio alert, got %d", ch.count())
	}
	a := ch.alerts[0]
	if a.Level != LevelWarning || a.Event != "reject_ratio" {
		t.Errorf("unexpected alert %+v", a)
	}
}

func TestChannelFailures(t *testing.T) {
	bad := &recordChannel{name: "bad", err: errors.New("down")}
	mgr := NewManager([]Channel{bad}, 0, Rules{})
	if err := mgr.SendAlert(Alert{Level: LevelError, Event: "x"}); err == nil {
		t.Fatal("expected error when every channel fails")
	}

	good := &recordChannel{name: "good"}
	mgr.AddChannel(good)
	if err := mgr.SendAlert(Alert{Level: LevelError, Event: "y"}); err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if got := mgr.Channels(); len(got) != 2 || got[1] != "good" {
		t.Errorf("channels = %v", got)
	}
}

func TestWriterChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewWriterChannel("stderr", &buf)
	err := ch.Send(Alert{
		Level:     LevelWarning,
		Event:     "reject_ratio",
		Message:   "12.00% of rows rejected",
		Timestamp: time.Date(2020, 1, 30, 15, 28, 9, 0, time.UTC),
		Fields:    map[string]interface{}{"rows": 100, "instrument_id": "AUD/USD.SIM"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "2020-01-30 15:28:09 [WARNING] reject_ratio: 12.00% of rows rejected | instrument_id=AUD/USD.SIM rows=100\n"
	if buf.String() != want {
		t.Errorf("got %q\nwant %q", buf.String(), want)
	}
}

func TestLoggerChannel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ch := NewLoggerChannel("log", logger.Wrap(zap.New(core)))
	if err := ch.Send(Alert{Level: LevelError, Event: "ingest_failed", Message: "boom"}); err != nil {
		t.Fatal(err)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel || !strings.Contains(entries[0].Message, "boom") {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestConcurrentAlerts(t *testing.T) {
	ch := &recordChannel{name: "rec"}
	mgr := NewManager([]Channel{ch}, 0, Rules{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.SendAlert(Alert{Level: LevelInfo, Event: "tick"})
		}()
	}
	wg.Wait()
	if ch.count() != 50 {
		t.Errorf("expected 50 alerts, got %d", ch.count())
	}
}
