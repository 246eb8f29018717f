package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one admitted connection: an authenticated user bound to a
// single room for the lifetime of the socket.
type Client struct {
	conn      *websocket.Conn
	cs        *ChatServer
	log       *log.Logger
	user      types.User
	room      database.Room
	send      chan []byte
	stop      chan struct{}
	closeOnce sync.Once
}

func newClient(user types.User, room database.Room, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn: conn,
		cs:   cs,
		log:  l,
		user: user,
		room: room,
		send: make(chan []byte, 256),
		stop: make(chan struct{}),
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		if !c.handleFrame(raw) {
			break
		}
	}
}

// handleFrame runs the ingest path for one inbound frame. It returns false
// when the connection's authorization premise no longer holds and the
// socket must be dropped.
func (c *Client) handleFrame(raw []byte) bool {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Printf("malformed frame from user %d: %v", c.user.Id, err)
		c.closeWithReason(websocket.CloseInvalidFramePayloadData, "malformed frame")
		return false
	}

	// Membership may have been revoked since admission.
	if !c.cs.db.MembershipExists(c.room.Id, c.user.Id) {
		c.log.Printf("user %d lost membership in room %q", c.user.Id, c.room.ExternalId)
		c.closeWithReason(websocket.ClosePolicyViolation, "not a member")
		return false
	}

	msg, err := c.cs.store.Persist(database.CreateMessageParams{
		RoomId:  c.room.Id,
		UserId:  c.user.Id,
		Content: frame.Message,
	})
	if err != nil {
		// Room deleted and membership revoked both surface here; either way
		// the connection's premise is gone.
		c.log.Printf("persist message for room %q: %v", c.room.ExternalId, err)
		c.closeWithReason(websocket.CloseInternalServerErr, "message not stored")
		return false
	}

	c.cs.dispatcher.Dispatch(msg, c.user)
	return true
}

func (c *Client) queueFrame(payload []byte) bool {
	select {
	case c.send <- payload:
	default:
		c.log.Println("failed to queue frame, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// closeWithReason sends a close control frame from the read goroutine.
// WriteControl is safe to call concurrently with the write pump.
func (c *Client) closeWithReason(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Printf("write close frame: %v", err)
	}
}

// shutdown signals both pumps to exit. Safe to call more than once.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.cs.registry.Unsubscribe(c.room.Id, c)
	c.cs.removeClient(c)
	c.shutdown()
}
