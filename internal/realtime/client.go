package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size.
	maxMessageSize = 64 * 1024
)

// clientMessage is the inbound wire format: subscribe replaces the
// connection's filters.
type clientMessage struct {
	Type          string         `json:"type"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
}

// ServeWS upgrades an HTTP request to a websocket connection, registers it
// as a hub subscriber and runs the read/write pumps.
func ServeWS(hub *Hub, upgrader websocket.Upgrader, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sub := hub.Register(id, nil)

	go writePump(conn, sub)
	go readPump(conn, hub, sub, logger)
}

// readPump consumes subscribe messages and pong heartbeats until the peer
// disconnects.
func readPump(conn *websocket.Conn, hub *Hub, sub *Subscriber, logger *zap.Logger) {
	defer func() {
		hub.Unregister(sub.ID())
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		sub.Heartbeat()
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.String("subscriber", sub.ID()), zap.Error(err))
			}
			return
		}
		sub.Heartbeat()

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			sub.Subscribe(msg.Subscriptions)
		case "unsubscribe":
			sub.Subscribe(nil)
		}
	}
}

// writePump forwards hub events to the peer and keeps the connection alive
// with pings.
func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub evicted the subscriber.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
