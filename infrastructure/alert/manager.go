package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Event     string // ingest_failed, reject_ratio ...
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Rules 决定一次加载结果是否需要告警
type Rules struct {
	MaxRejectRatio float64 // 拒绝行占比上限，0 表示不检查
	MinRows        int     // 行数少于该值时不检查占比
}

// Manager 告警管理器
type Manager struct {
	channels []Channel
	throttle *Throttler
	rules    Rules
	mu       sync.RWMutex
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration, rules Rules) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
		rules:    rules,
	}
}

// SendAlert 发送到所有通道；同一 level/event/instrument 在限流窗口内只发一次。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s:%s:%v", alert.Level, alert.Event, alert.Fields["instrument_id"])
	if !m.throttle.Allow(key) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var lastErr error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		ok++
	}
	// 所有通道都失败才返回错误
	if ok == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// CheckRun 根据一次加载的结果决定是否告警。
func (m *Manager) CheckRun(path, instrumentID string, rows, rejected int, runErr error) error {
	fields := map[string]interface{}{
		"path":          path,
		"instrument_id": instrumentID,
		"rows":          rows,
		"rejected":      rejected,
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
		return m.SendAlert(Alert{Level: LevelError, Event: "ingest_failed", Message: "file could not be ingested", Fields: fields})
	}
	if m.rules.MaxRejectRatio <= 0 || rows == 0 || rows < m.rules.MinRows {
		return nil
	}
	ratio := float64(rejected) / float64(rows)
	if ratio <= m.rules.MaxRejectRatio {
		return nil
	}
	fields["ratio"] = ratio
	return m.SendAlert(Alert{
		Level:   LevelWarning,
		Event:   "reject_ratio",
		Message: fmt.Sprintf("%.2f%% of rows rejected", ratio*100),
		Fields:  fields,
	})
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 返回所有通道名
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
