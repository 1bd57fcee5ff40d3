package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SignalType names the server-side pacing events the engine can react to.
type SignalType string

const (
	SignalGameStarted  SignalType = "gameStarted"
	SignalNextQuestion SignalType = "nextQuestion"
)

// Signal is one server-side event. The engine treats all of these as
// hints; it paces itself locally whenever the channel is absent.
type Signal struct {
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Channel is an opportunistic source of pacing signals.
type Channel interface {
	Signals() <-chan Signal
	Close() error
}

// Conn is a websocket-backed Channel.
type Conn struct {
	ws      *websocket.Conn
	signals chan Signal
	log     *slog.Logger
}

// Dial connects the push channel. Callers are expected to fall back to
// polling or fully local pacing when this fails; a dead channel is a
// degraded mode, never an error surfaced to the player.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:      wsConn,
		signals: make(chan Signal, 8),
		log:     log,
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.signals)
	for {
		var signal Signal
		if err := c.ws.ReadJSON(&signal); err != nil {
			c.log.Debug("realtime channel closed", "err", err)
			return
		}
		select {
		case c.signals <- signal:
		default:
			// Drop rather than block: signals are hints, and the engine
			// keeps its own pacing.
			c.log.Debug("realtime signal dropped", "type", signal.Type)
		}
	}
}

func (c *Conn) Signals() <-chan Signal {
	return c.signals
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Poller is the HTTP fallback Channel: it polls a status endpoint and
// synthesizes GameStarted once the backend reports the game is live.
type Poller struct {
	client   *http.Client
	url      string
	interval time.Duration
	log      *slog.Logger
	signals  chan Signal
	stop     chan struct{}
}

func NewPoller(client *http.Client, url string, interval time.Duration, log *slog.Logger) *Poller {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Poller{
		client:   client,
		url:      url,
		interval: interval,
		log:      log,
		signals:  make(chan Signal, 4),
		stop:     make(chan struct{}),
	}
	go p.loop()
	return p
}

type pollStatus struct {
	Status        string `json:"status"`
	QuestionIndex int    `json:"questionIndex"`
}

func (p *Poller) loop() {
	defer close(p.signals)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	started := false
	lastIndex := -1
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			status, ok := p.fetch()
			if !ok {
				continue
			}
			if !started && status.Status == "started" {
				started = true
				p.emit(Signal{Type: SignalGameStarted})
			}
			if started && status.QuestionIndex > lastIndex {
				lastIndex = status.QuestionIndex
				p.emit(Signal{Type: SignalNextQuestion})
			}
		}
	}
}

func (p *Poller) fetch() (pollStatus, bool) {
	resp, err := p.client.Get(p.url)
	if err != nil {
		p.log.Debug("poll failed", "err", err)
		return pollStatus{}, false
	}
	defer resp.Body.Close()
	var status pollStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		p.log.Debug("poll decode failed", "err", err)
		return pollStatus{}, false
	}
	return status, true
}

func (p *Poller) emit(signal Signal) {
	select {
	case p.signals <- signal:
	default:
	}
}

func (p *Poller) Signals() <-chan Signal {
	return p.signals
}

func (p *Poller) Close() error {
	close(p.stop)
	return nil
}

// Noop is the fully degraded Channel: it never emits and never fails.
type Noop struct{}

func (Noop) Signals() <-chan Signal { return nil }
func (Noop) Close() error           { return nil }

// Connect picks the best available channel: push first, polling second,
// local pacing last. It never returns an error.
func Connect(ctx context.Context, wsURL, pollURL string, pollInterval time.Duration, log *slog.Logger) Channel {
	if log == nil {
		log = slog.Default()
	}
	if wsURL != "" {
		if conn, err := Dial(ctx, wsURL, log); err == nil {
			return conn
		} else {
			log.Warn("realtime channel unavailable, degrading", "err", err)
		}
	}
	if pollURL != "" {
		return NewPoller(nil, pollURL, pollInterval, log)
	}
	return Noop{}
}
