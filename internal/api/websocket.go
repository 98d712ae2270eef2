package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"futures-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame wraps a bus payload with its topic so the console can route
// order, balance and stream-health updates over a single socket.
type wsFrame struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// consoleTopics are the bus events the console consumes.
var consoleTopics = []events.Event{
	events.EventOrderUpdate,
	events.EventOrderFailed,
	events.EventBalanceChange,
	events.EventStreamHealth,
	events.EventRiskAlert,
}

// websocket fans the console-facing bus topics out to one client.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsFrame, 100)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range consoleTopics {
		ch, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()
		go func(topic events.Event, ch <-chan any) {
			for payload := range ch {
				select {
				case merged <- wsFrame{Topic: string(topic), Data: payload}:
				case <-done:
					return
				}
			}
		}(topic, ch)
	}

	for frame := range merged {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
