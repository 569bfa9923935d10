package alert

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tick-wrangler/infrastructure/logger"
)

// LoggerChannel 把告警写入结构化日志
type LoggerChannel struct {
	log  *logger.Logger
	name string
}

func NewLoggerChannel(name string, log *logger.Logger) *LoggerChannel {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggerChannel{log: log, name: name}
}

func (c *LoggerChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+3)
	fields = append(fields,
		zap.String("level", string(alert.Level)),
		zap.String("alert_event", alert.Event),
		zap.Time("at", alert.Timestamp),
	)
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelError, LevelCritical:
		c.log.Error("alert: "+alert.Message, fields...)
	case LevelWarning:
		c.log.Warn("alert: "+alert.Message, fields...)
	default:
		c.log.Info("alert: "+alert.Message, fields...)
	}
	return nil
}

func (c *LoggerChannel) Name() string { return c.name }

// WriterChannel 以单行文本输出告警（stderr、文件等）
type WriterChannel struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

func NewWriterChannel(name string, w io.Writer) *WriterChannel {
	return &WriterChannel{name: name, w: w}
}

func (c *WriterChannel) Send(alert Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s",
		alert.Timestamp.UTC().Format("2006-01-02 15:04:05"), alert.Level, alert.Event, alert.Message)
	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, alert.Fields[k])
		}
	}
	b.WriteByte('\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *WriterChannel) Name() string { return c.name }
