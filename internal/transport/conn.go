package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/protocol"
)

const (
	outboundQueueLen = 32
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
	pingTimeout      = 3 * time.Second
)

// wsConn wraps one accepted websocket. Outbound frames go through a
// bounded queue drained by a single writer goroutine, so Push never
// blocks a session worker and wsjson.Write is never called
// concurrently.
type wsConn struct {
	playerID string
	conn     *websocket.Conn

	sendCh chan protocol.Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(playerID string, conn *websocket.Conn) *wsConn {
	c := &wsConn{
		playerID: playerID,
		conn:     conn,
		sendCh:   make(chan protocol.Envelope, outboundQueueLen),
		closed:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Push enqueues an outbound envelope. A full queue drops the frame and
// reports false; a reconnecting client realigns through resync.
func (c *wsConn) Push(env protocol.Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.sendCh <- env:
		return true
	default:
		obslog.L().Warn("ws_outbound_dropped",
			zap.String("player_id", c.playerID),
			zap.String("type", string(env.Type)),
		)
		return false
	}
}

func (c *wsConn) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

func (c *wsConn) writeLoop() {
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	pingFailures := 0

	for {
		select {
		case <-c.closed:
			return
		case env := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.conn, env)
			cancel()
			if err != nil {
				c.Close("write failure")
				return
			}
		case <-pings.C:
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				pingFailures++
				if pingFailures >= 2 {
					c.Close("ping failure")
					return
				}
				continue
			}
			pingFailures = 0
		}
	}
}
