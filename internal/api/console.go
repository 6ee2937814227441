package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/supervisor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConsoleHandler streams log lines over a websocket and feeds inbound
// messages to the server as commands through the supervisor's single
// write path.
type ConsoleHandler struct {
	sup *supervisor.Supervisor
	bus *events.Bus
}

func NewConsoleHandler(sup *supervisor.Supervisor, bus *events.Bus) *ConsoleHandler {
	return &ConsoleHandler{sup: sup, bus: bus}
}

type consoleLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (h *ConsoleHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("console websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Bridge log events into a channel; the bus must never block on a
	// slow websocket client.
	lines := make(chan consoleLine, 256)
	listener := h.bus.Subscribe(events.KindLogLine, func(ev events.Event) error {
		ll := ev.(*events.LogLine)
		select {
		case lines <- consoleLine{Level: ll.Level, Message: ll.Message}:
		default:
			// Drop if the client is slow
		}
		return nil
	}, events.Low, true)
	defer h.bus.Unsubscribe(listener)

	// Read from WebSocket -> server stdin
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(msg) == 0 {
				continue
			}
			if !h.sup.SendCommand(string(msg)) {
				conn.WriteJSON(consoleLine{Level: "ERROR", Message: "server not running"})
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
