package signal

import (
	"encoding/json"
	"sync"
	"time"

	"pttrelay/internal/core/domain"

	"github.com/gorilla/websocket"
)

// frame is the JSON envelope of every outbound message.
type frame struct {
	Type    domain.EventType `json:"type"`
	Payload interface{}      `json:"payload"`
}

// client is one upgraded websocket connection. It implements ports.Outbox:
// Send only queues, writePump owns all writes to conn.
type client struct {
	id   domain.ConnectionID
	conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, queueSize int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *client) Send(event domain.Event) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(frame{Type: event.Type, Payload: event.Payload})
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
		return domain.ErrBackpressure
	}
}

// Close asks the write pump to send a close frame and drop the connection.
func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) writePump(pingInterval, writeTimeout time.Duration) error {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return err
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return err
			}

		case <-c.done:
			c.flush(writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return nil
		}
	}
}

// flush writes whatever is still queued without blocking for more.
func (c *client) flush(writeTimeout time.Duration) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
