package event

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSMessage is the JSON message sent over WebSocket and the Redis bridge.
type WSMessage struct {
	Event string         `json:"event"`          // Event name (e.g., "dialogue.recorded")
	Data  map[string]any `json:"data,omitempty"` // Event-specific data
	TS    int64          `json:"ts"`             // Timestamp (Unix ms)
}

// NewWSMessage wraps an event for transport.
func NewWSMessage(ev Event) WSMessage {
	return WSMessage{
		Event: ev.EventName(),
		Data:  eventToData(ev),
		TS:    time.Now().UnixMilli(),
	}
}

// WSHandler handles WebSocket connections for event notifications.
type WSHandler struct {
	emitter  *Emitter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WebSocket handler bound to emitter.
func NewWSHandler(emitter *Emitter, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		emitter: emitter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle is the Gin handler for WebSocket connections.
// Query params:
//   - events: comma-separated event names to subscribe (empty = all)
//
// Example: /api/events/ws?events=dialogue.recorded,summary.written
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	eventFilter := parseEventFilter(c.Query("events"))

	sendCh := make(chan WSMessage, 64)
	done := make(chan struct{})

	unsubscribe := h.emitter.OnAny(func(ev Event) {
		if eventFilter != nil && !eventFilter[ev.EventName()] {
			return
		}
		select {
		case sendCh <- NewWSMessage(ev):
		default:
			h.logger.Warn("Dropped websocket event, client buffer full", "event", ev.EventName())
		}
	})
	defer unsubscribe()

	// Reader goroutine - keeps connection alive
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var writeMu sync.Mutex

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case msg := <-sendCh:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteJSON(msg)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func parseEventFilter(param string) map[string]bool {
	if param == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, e := range strings.Split(param, ",") {
		if e = strings.TrimSpace(e); e != "" {
			filter[e] = true
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// eventToData converts an Event to a map for JSON serialization.
func eventToData(ev Event) map[string]any {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
