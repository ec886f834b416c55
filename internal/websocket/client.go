package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"anonchat/internal/chat"
	"anonchat/internal/models"
	"anonchat/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Client is one websocket connection. It reads protocol frames, hands
// them to the coordinator, and writes back acks plus whatever the hub
// delivers.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	coordinator *chat.Coordinator

	send chan []byte
	kick chan string
	done chan struct{}
	once sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, coordinator *chat.Coordinator) *Client {
	return &Client{
		id:          uuid.NewString(),
		hub:         hub,
		conn:        conn,
		coordinator: coordinator,
		send:        make(chan []byte, sendBufferSize),
		kick:        make(chan string, 1),
		done:        make(chan struct{}),
	}
}

// ID is the opaque connection identity the coordinator keys bindings by.
func (c *Client) ID() string {
	return c.id
}

// closeSend wakes the writer so it can shut the connection down. The
// send channel itself is never closed; writes to it stay safe.
func (c *Client) closeSend() {
	c.once.Do(func() { close(c.done) })
}

// ReadPump consumes inbound frames until the connection drops, then
// releases the session binding and unregisters from the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.coordinator.Disconnect(c.id)
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.enqueue(&models.Ack{Type: models.EventAck, Error: "malformed event"})
			continue
		}

		c.handleEvent(&event)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case reason := <-c.kick:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			frame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
			c.conn.WriteMessage(websocket.CloseMessage, frame)
			return

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleEvent(event *models.ClientEvent) {
	ack := &models.Ack{Type: models.EventAck, RequestID: event.RequestID}

	switch event.Type {
	case models.EventRoomJoin:
		result, err := c.coordinator.Join(c.id, event.RoomID, event.OwnerSecret)
		if err != nil {
			ack.Error = err.Error()
			break
		}
		ack.Success = true
		ack.Room = result.Room
		ack.Session = result.Session
		ack.RecentMessages = result.RecentMessages
		ack.OwnerSessionID = result.OwnerSessionID

	case models.EventMessageSend:
		warnings, err := c.coordinator.SendMessage(c.id, event.Content)
		if err != nil {
			ack.Error = err.Error()
			break
		}
		ack.Success = true
		ack.Warnings = warnings

	case models.EventUpdateNickname:
		c.resolve(ack, c.coordinator.UpdateNickname(c.id, event.Nickname))

	case models.EventEject:
		c.resolve(ack, c.coordinator.Eject(c.id, event.TargetSessionID, event.OwnerSecret))

	case models.EventBan:
		c.resolve(ack, c.coordinator.Ban(c.id, event.TargetSessionID, event.OwnerSecret))

	case models.EventTransferOwner:
		c.resolve(ack, c.coordinator.TransferOwnership(c.id, event.TargetSessionID, event.OwnerSecret))

	default:
		ack.Error = "unknown event type"
	}

	c.enqueue(ack)
}

func (c *Client) resolve(ack *models.Ack, err error) {
	if err != nil {
		ack.Error = err.Error()
		return
	}
	ack.Success = true
}

// enqueue writes an ack to this connection's own send queue. Acks take
// the same ordered channel as broadcasts.
func (c *Client) enqueue(ack *models.Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		logger.Error("Error marshaling ack: %v", err)
		return
	}

	select {
	case c.send <- payload:
	case <-c.done:
	default:
		logger.Debug("Dropping slow connection %s", c.id)
		c.hub.Unregister(c.id)
	}
}
