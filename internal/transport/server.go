package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/protocol"
	"github.com/kapu/chess-arena/internal/registry"
)

// Handler is the application side of the transport, satisfied by the
// session manager.
type Handler interface {
	OnConnect(player domain.PlayerIdentity, conn registry.Conn)
	OnMessage(playerID string, env protocol.Envelope)
	OnDisconnect(playerID string, conn registry.Conn)
}

// Server upgrades HTTP requests to websockets and pumps frames between
// the wire and the handler.
type Server struct {
	handler Handler
}

func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	player := identify(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(32 * 1024)

	wc := newWSConn(player.ID, conn)
	s.handler.OnConnect(player, wc)
	obslog.L().Info("ws_connected",
		zap.String("player_id", player.ID),
		zap.String("name", player.Name),
	)

	s.readLoop(r.Context(), player.ID, conn, wc)
}

func (s *Server) readLoop(ctx context.Context, playerID string, conn *websocket.Conn, wc *wsConn) {
	defer func() {
		wc.Close("read loop done")
		s.handler.OnDisconnect(playerID, wc)
		obslog.L().Info("ws_disconnected", zap.String("player_id", playerID))
	}()

	for {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		s.handler.OnMessage(playerID, env)
	}
}

// identify resolves the caller's identity from the handshake request.
// An absent id gets a fresh anonymous one; the client learns it from
// its first server frames only implicitly, so real clients should send
// a stable id to make reconnection work.
func identify(r *http.Request) domain.PlayerIdentity {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("player_id"))
	if id == "" {
		id = strings.TrimSpace(r.Header.Get("X-Player-Id"))
	}
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = strings.TrimSpace(r.Header.Get("X-Player-Name"))
	}
	if name == "" {
		name = id
	}
	return domain.PlayerIdentity{ID: id, Name: name}
}
