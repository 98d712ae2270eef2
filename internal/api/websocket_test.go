package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"futures-core/internal/events"
)

func TestWebsocketForwardsBusTopics(t *testing.T) {
	bus := events.NewBus()
	s := &Server{Bus: bus}
	r := gin.New()
	r.GET("/ws", s.websocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes after the handshake; keep publishing until
	// the frame comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				bus.Publish(events.EventBalanceChange, map[string]any{"asset": "USDT"})
			}
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Topic != string(events.EventBalanceChange) {
		t.Fatalf("topic = %q, want %q", frame.Topic, events.EventBalanceChange)
	}
	data, ok := frame.Data.(map[string]any)
	if !ok || data["asset"] != "USDT" {
		t.Fatalf("unexpected payload: %#v", frame.Data)
	}
}
