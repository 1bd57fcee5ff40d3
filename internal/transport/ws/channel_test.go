package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDialReceivesSignals(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Signal{Type: SignalGameStarted})
		_ = conn.WriteJSON(Signal{Type: SignalNextQuestion})
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectSignal(t, conn.Signals(), SignalGameStarted)
	expectSignal(t, conn.Signals(), SignalNextQuestion)
}

func TestDialFailureLeavesLocalPacing(t *testing.T) {
	channel := Connect(context.Background(), "ws://127.0.0.1:1/realtime", "", 0, nil)
	if _, ok := channel.(Noop); !ok {
		t.Fatalf("expected noop fallback, got %T", channel)
	}
	if channel.Signals() != nil {
		t.Fatalf("noop channel must never emit")
	}
}

func TestPollerSynthesizesSignals(t *testing.T) {
	statuses := make(chan string, 3)
	statuses <- "waiting"
	statuses <- "started"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "started"
		select {
		case s := <-statuses:
			status = s
		default:
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "questionIndex": 0})
	}))
	defer server.Close()

	poller := NewPoller(server.Client(), server.URL, 5*time.Millisecond, nil)
	defer poller.Close()

	expectSignal(t, poller.Signals(), SignalGameStarted)
	expectSignal(t, poller.Signals(), SignalNextQuestion)
}

func expectSignal(t *testing.T, signals <-chan Signal, want SignalType) {
	t.Helper()
	select {
	case signal, ok := <-signals:
		if !ok {
			t.Fatalf("channel closed waiting for %s", want)
		}
		if signal.Type != want {
			t.Fatalf("expected %s, got %s", want, signal.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}
