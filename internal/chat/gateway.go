package chat

import "anonchat/internal/models"

// Gateway is the transport boundary the coordinator emits through. The
// implementation delivers events to the connections associated with a
// room and can forcibly terminate a specific connection. Delivery is
// fire-and-forget: a stalled or failed delivery must never undo a store
// mutation that already completed.
type Gateway interface {
	// AddToRoom associates a connection with a room for broadcasts.
	AddToRoom(roomID, connID string)

	// RemoveFromRoom drops the association. Unknown IDs are ignored.
	RemoveFromRoom(roomID, connID string)

	// Broadcast delivers the event to every connection in the room.
	Broadcast(roomID string, event *models.ServerEvent)

	// BroadcastExcept delivers to every connection in the room except one.
	BroadcastExcept(roomID, exceptConnID string, event *models.ServerEvent)

	// Send delivers the event to a single connection.
	Send(connID string, event *models.ServerEvent)

	// Kick forcibly closes a connection, citing the reason.
	Kick(connID, reason string)

	// CloseRoom drops the room's broadcast group. Connections stay open.
	CloseRoom(roomID string)
}
