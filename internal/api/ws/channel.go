package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// ErrClosed is returned by Send after the connection closed.
var ErrClosed = errors.New("channel closed")

var _ broker.Channel = (*Channel)(nil)

// Channel is one WebSocket connection. Send is safe for concurrent use.
type Channel struct {
	id      string
	conn    *websocket.Conn
	metrics *monitoring.Metrics

	mu     sync.Mutex
	closed bool // Protected by mu
}

func newChannel(id string, conn *websocket.Conn, metrics *monitoring.Metrics) *Channel {
	return &Channel{id: id, conn: conn, metrics: metrics}
}

// ID returns the channel id.
func (c *Channel) ID() string { return c.id }

// Send writes event as one text frame.
func (c *Channel) Send(event types.Event) error {
	data, err := sonic.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("out", string(event.Type))
	return nil
}

func (c *Channel) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// close marks the channel closed and closes the connection once.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = c.conn.Close()
}
