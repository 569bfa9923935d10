// Package replay streams processed tick series over websocket, one
// rendering per text message, paced by the records' event timestamps.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tick-wrangler/infrastructure/logger"
	"tick-wrangler/market"
)

// Metrics is the subset of monitor.Monitor the server reports to.
type Metrics interface {
	ReplayClientConnected()
	ReplayClientDisconnected()
	RecordReplaySent(n int)
}

type nopMetrics struct{}

func (nopMetrics) ReplayClientConnected()    {}
func (nopMetrics) ReplayClientDisconnected() {}
func (nopMetrics) RecordReplaySent(int)      {}

// SeriesInfo is one entry of the /series listing.
type SeriesInfo struct {
	Key        string `json:"key"`
	Instrument string `json:"instrument_id"`
	Symbol     string `json:"symbol"`
	Venue      string `json:"venue"`
	Kind       string `json:"kind"`
	Records    int    `json:"records"`
	First      int64  `json:"first_ts,omitempty"`
	Last       int64  `json:"last_ts,omitempty"`
}

// Server holds published series and replays them to websocket clients.
type Server struct {
	speed    float64
	log      *logger.Logger
	metrics  Metrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	series map[string]*market.TickSeries
}

// NewServer builds a server. speed is the default pacing multiplier
// (1 = real time, 0 = as fast as the connection allows).
func NewServer(speed float64, log *logger.Logger, metrics Metrics) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Server{
		speed:   speed,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		series: make(map[string]*market.TickSeries),
	}
}

// Key identifies a series as "<instrument_id>/<kind>".
func Key(instrumentID string, kind market.Kind) string {
	return instrumentID + "/" + kind.String()
}

// Publish registers s, replacing any series with the same key.
func (s *Server) Publish(series *market.TickSeries) string {
	key := Key(series.Instrument.ID(), series.Kind)
	s.mu.Lock()
	s.series[key] = series
	s.mu.Unlock()
	return key
}

func (s *Server) lookup(key string) (*market.TickSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.series[key]
	return ts, ok
}

// List returns the published series sorted by key.
func (s *Server) List() []SeriesInfo {
	s.mu.RLock()
	out := make([]SeriesInfo, 0, len(s.series))
	for key, ts := range s.series {
		info := SeriesInfo{
			Key:        key,
			Instrument: ts.Instrument.ID(),
			Symbol:     ts.Instrument.Symbol(),
			Venue:      ts.Instrument.Venue(),
			Kind:       ts.Kind.String(),
			Records:    ts.Len(),
		}
		if ts.Len() > 0 {
			info.First, info.Last = ts.First().Timestamp(), ts.Last().Timestamp()
		}
		out = append(out, info)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Handler exposes /series (JSON listing) and /replay (websocket).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/series", s.handleList)
	mux.HandleFunc("/replay", s.handleReplay)
	return mux
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.List())
}

// handleReplay query: instrument, kind, optional speed, from, to (ns).
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, ok := market.ParseKind(q.Get("kind"))
	if !ok {
		http.Error(w, "kind must be quote or trade", http.StatusBadRequest)
		return
	}
	series, ok := s.lookup(Key(q.Get("instrument"), kind))
	if !ok {
		http.Error(w, "series not found", http.StatusNotFound)
		return
	}
	win, err := parseWindow(q.Get("speed"), q.Get("from"), q.Get("to"), s.speed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.ReplayClientConnected()
	defer s.metrics.ReplayClientDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// 读循环只用于处理控制帧和感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	sent, err := Stream(ctx, series, win, func(line string) error {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
		s.metrics.RecordReplaySent(1)
		return nil
	})
	fields := map[string]interface{}{
		"instrument_id": series.Instrument.ID(),
		"kind":          series.Kind.String(),
		"records":       sent,
		"remote":        r.RemoteAddr,
		"speed":         win.Speed,
		"elapsed_ms":    time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.log.LogIngest("replay_session", fields)
		return
	}
	s.log.LogIngest("replay_session", fields)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of series")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func parseWindow(speed, from, to string, def float64) (Window, error) {
	win := Window{Speed: def, To: -1}
	var err error
	if speed != "" {
		if win.Speed, err = strconv.ParseFloat(speed, 64); err != nil || win.Speed < 0 {
			return win, fmt.Errorf("invalid speed %q", speed)
		}
	}
	if from != "" {
		if win.From, err = strconv.ParseInt(from, 10, 64); err != nil {
			return win, fmt.Errorf("invalid from %q", from)
		}
	}
	if to != "" {
		if win.To, err = strconv.ParseInt(to, 10, 64); err != nil {
			return win, fmt.Errorf("invalid to %q", to)
		}
	}
	return win, nil
}
