package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/protocol"
)

// State is connection liveness as tracked by the registry.
type State string

const (
	StateConnected State = "connected"
	StatePending   State = "disconnected-pending"
	StateClosed    State = "closed"
)

// Conn is a live transport handle. Push must never block: a full
// outbound queue reports false and the frame is dropped (the client
// realigns through resync on reconnect).
type Conn interface {
	Push(env protocol.Envelope) bool
	Close(reason string)
}

type binding struct {
	player   domain.PlayerIdentity
	conn     Conn
	state    State
	lastSeen time.Time
}

// Registry tracks each connected player's transport handle and
// identity. It is the only structure mutated concurrently by multiple
// sessions, guarded by one mutex.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

func New() *Registry {
	return &Registry{bindings: make(map[string]*binding)}
}

// Bind attaches a connection to an identity, replacing (and closing)
// any previous connection for the same player.
func (r *Registry) Bind(player domain.PlayerIdentity, conn Conn) {
	r.mu.Lock()
	prev := r.bindings[player.ID]
	r.bindings[player.ID] = &binding{
		player:   player,
		conn:     conn,
		state:    StateConnected,
		lastSeen: time.Now(),
	}
	r.mu.Unlock()

	if prev != nil && prev.conn != nil && prev.conn != conn {
		prev.conn.Close("superseded by new connection")
	}
	obslog.L().Info("registry_bind", zap.String("player_id", player.ID))
}

// MarkPending flags the player as disconnected but still inside a
// possible grace window, dropping the stale handle. reporting must be
// the connection the disconnect came from; when the player has already
// rebound to a newer connection the event is stale and ignored.
// Reports whether the binding actually transitioned.
func (r *Registry) MarkPending(playerID string, reporting Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[playerID]
	if !ok || b.conn != reporting {
		return false
	}
	b.state = StatePending
	b.conn = nil
	b.lastSeen = time.Now()
	return true
}

// Remove closes out the binding entirely. Like MarkPending it is a
// no-op when the binding has moved on to a newer connection. Reports
// whether the binding was removed.
func (r *Registry) Remove(playerID string, reporting Conn) bool {
	r.mu.Lock()
	b, ok := r.bindings[playerID]
	if ok && b.conn != reporting {
		r.mu.Unlock()
		return false
	}
	delete(r.bindings, playerID)
	r.mu.Unlock()

	if b != nil && b.conn != nil {
		b.conn.Close("removed")
	}
	return ok
}

// Push delivers an envelope to the player's current connection,
// best-effort. Returns false when the player has no live connection or
// the outbound queue is full.
func (r *Registry) Push(playerID string, env protocol.Envelope) bool {
	r.mu.RLock()
	b, ok := r.bindings[playerID]
	var conn Conn
	if ok && b.state == StateConnected {
		conn = b.conn
	}
	r.mu.RUnlock()

	if conn == nil {
		return false
	}
	return conn.Push(env)
}

// State reports liveness for the player, StateClosed when unknown.
func (r *Registry) State(playerID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bindings[playerID]; ok {
		return b.state
	}
	return StateClosed
}

// Identity returns the bound identity for a player id.
func (r *Registry) Identity(playerID string) (domain.PlayerIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bindings[playerID]; ok {
		return b.player, true
	}
	return domain.PlayerIdentity{}, false
}

// Touch refreshes the last-seen timestamp, called on inbound traffic.
func (r *Registry) Touch(playerID string) {
	r.mu.Lock()
	if b, ok := r.bindings[playerID]; ok {
		b.lastSeen = time.Now()
	}
	r.mu.Unlock()
}

// LastSeen reports the most recent activity for the player.
func (r *Registry) LastSeen(playerID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bindings[playerID]; ok {
		return b.lastSeen, true
	}
	return time.Time{}, false
}
