package session

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/matchqueue"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/protocol"
	"github.com/kapu/chess-arena/internal/recorder"
	"github.com/kapu/chess-arena/internal/registry"
	"github.com/kapu/chess-arena/internal/rules"
)

// ProfileSource supplies stored player profiles for the opponent-info
// push at session start.
type ProfileSource interface {
	GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
}

// Options wires the manager's collaborators. Store, Recorder, and
// Profiles may be nil; the corresponding side effects are skipped.
type Options struct {
	Engine   rules.Engine
	Registry *registry.Registry
	Store    *Store
	Recorder recorder.Recorder
	Profiles ProfileSource
	Grace    time.Duration
	MaxQueue int
}

// Manager routes connections and messages to sessions and owns the
// matchmaking queue. It holds only routing state; game state lives in
// each session's worker.
type Manager struct {
	opts  Options
	queue *matchqueue.Queue

	mu       sync.Mutex
	sessions map[string]*Session           // session id -> session
	byPlayer map[string]string             // player id -> session id
	tickets  map[string]*matchqueue.Ticket // player id -> waiting ticket
}

func NewManager(opts Options) *Manager {
	if opts.Grace <= 0 {
		opts.Grace = 60 * time.Second
	}
	m := &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
		tickets:  make(map[string]*matchqueue.Ticket),
	}
	m.queue = matchqueue.New(opts.MaxQueue, m.inLiveSession, m.startSession)
	return m
}

// OnConnect binds the connection and, when the player still has a live
// session, runs the reconnect path. A fresh player just sits connected
// until it sends a queue message.
func (m *Manager) OnConnect(player domain.PlayerIdentity, conn registry.Conn) {
	m.opts.Registry.Bind(player, conn)

	m.mu.Lock()
	sid, ok := m.byPlayer[player.ID]
	sess := m.sessions[sid]
	m.mu.Unlock()

	if !ok || sess == nil {
		return
	}
	if err := sess.Reconnect(player.ID); err != nil {
		m.opts.Registry.Push(player.ID, protocol.Error(ErrorCode(err), err.Error()))
	}
}

// OnMessage dispatches one inbound envelope for the player. Validation
// failures go back to the sender only.
func (m *Manager) OnMessage(playerID string, env protocol.Envelope) {
	m.opts.Registry.Touch(playerID)

	var err error
	switch env.Type {
	case protocol.TypeQueue:
		err = m.enqueue(playerID)
	case protocol.TypeCancel:
		m.cancelQueue(playerID)
	case protocol.TypeMove:
		err = m.move(playerID, env.Move)
	case protocol.TypeResign:
		err = m.resign(playerID)
	default:
		err = ErrUnsupportedMessage
	}
	if err != nil {
		m.opts.Registry.Push(playerID, protocol.Error(ErrorCode(err), err.Error()))
	}
}

// OnDisconnect handles a dropped connection: a queued player is removed
// outright, a seated player enters the grace window. conn is the
// connection the event came from; a superseded connection dying after
// the player already rebound must not touch the live binding.
func (m *Manager) OnDisconnect(playerID string, conn registry.Conn) {
	m.mu.Lock()
	sid, seated := m.byPlayer[playerID]
	sess := m.sessions[sid]
	m.mu.Unlock()

	if seated && sess != nil {
		if m.opts.Registry.MarkPending(playerID, conn) {
			sess.MarkDisconnected(playerID)
		}
		return
	}
	if m.opts.Registry.Remove(playerID, conn) {
		m.mu.Lock()
		delete(m.tickets, playerID)
		m.mu.Unlock()
		m.queue.CancelPlayer(playerID)
	}
}

// Waiting reports the queue depth.
func (m *Manager) Waiting() int { return m.queue.Waiting() }

// Live reports the number of open sessions.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every open session. Used at shutdown; nothing is
// recorded for sessions cut off this way.
func (m *Manager) Close() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.sessions = make(map[string]*Session)
	m.byPlayer = make(map[string]string)
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

func (m *Manager) enqueue(playerID string) error {
	player, ok := m.opts.Registry.Identity(playerID)
	if !ok {
		return ErrUnknownSession
	}
	ticket, err := m.queue.Enqueue(player)
	if err != nil {
		// A seated player asking to queue gets the rejection plus a
		// resync, so a confused client can realign.
		if sess := m.sessionFor(playerID); sess != nil {
			sess.PushResync(playerID)
		}
		return err
	}
	if ticket != nil {
		m.mu.Lock()
		// Pairing may already have consumed the entry; the stale ticket
		// is harmless, Cancel on it is a no-op.
		if _, seated := m.byPlayer[playerID]; !seated {
			m.tickets[playerID] = ticket
		}
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) cancelQueue(playerID string) {
	m.mu.Lock()
	ticket := m.tickets[playerID]
	delete(m.tickets, playerID)
	m.mu.Unlock()
	m.queue.Cancel(ticket)
}

func (m *Manager) move(playerID string, msg *protocol.MoveMsg) error {
	if msg == nil {
		return ErrIllegalMove
	}
	sess := m.sessionFor(playerID)
	if sess == nil {
		return ErrUnknownSession
	}
	res, err := sess.ApplyMove(playerID, rules.Move{
		From:      msg.From,
		To:        msg.To,
		Promotion: msg.Promotion,
	})
	if err != nil {
		return err
	}
	if m.opts.Store != nil && res.Outcome == rules.OutcomeNone {
		snap := sess.Snapshot()
		go m.saveSnapshot(snap)
	}
	return nil
}

func (m *Manager) resign(playerID string) error {
	sess := m.sessionFor(playerID)
	if sess == nil {
		return ErrUnknownSession
	}
	return sess.Resign(playerID)
}

func (m *Manager) sessionFor(playerID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sid, ok := m.byPlayer[playerID]; ok {
		return m.sessions[sid]
	}
	return nil
}

func (m *Manager) inLiveSession(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPlayer[playerID]
	return ok
}

// startSession is the queue's pair callback: assign colors by coin
// flip, create the session, and introduce the players to each other.
func (m *Manager) startSession(a, b matchqueue.Entry) {
	white, black := a.Player, b.Player
	if flip() {
		white, black = black, white
	}

	id := uuid.NewString()
	sess := New(id, white, black, m.opts.Engine, m.opts.Registry, m.opts.Grace, m.onTerminal)

	m.mu.Lock()
	m.sessions[id] = sess
	m.byPlayer[white.ID] = id
	m.byPlayer[black.ID] = id
	delete(m.tickets, white.ID)
	delete(m.tickets, black.ID)
	m.mu.Unlock()

	obslog.L().Info("session_started",
		zap.String("session_id", id),
		zap.String("white_id", white.ID),
		zap.String("black_id", black.ID),
	)

	m.opts.Registry.Push(white.ID, protocol.ColorAssigned(string(domain.White)))
	m.opts.Registry.Push(black.ID, protocol.ColorAssigned(string(domain.Black)))
	m.opts.Registry.Push(white.ID, protocol.Envelope{
		Type:     protocol.TypeOpponentInfo,
		Opponent: m.opponentInfo(black),
	})
	m.opts.Registry.Push(black.ID, protocol.Envelope{
		Type:     protocol.TypeOpponentInfo,
		Opponent: m.opponentInfo(white),
	})

	if m.opts.Store != nil {
		go m.saveSnapshot(sess.Snapshot())
	}
}

// onTerminal runs on the session worker; everything slow is handed off.
func (m *Manager) onTerminal(snap Snapshot, outcome *recorder.Outcome) {
	m.mu.Lock()
	sess := m.sessions[snap.ID]
	delete(m.sessions, snap.ID)
	if m.byPlayer[snap.WhiteID] == snap.ID {
		delete(m.byPlayer, snap.WhiteID)
	}
	if m.byPlayer[snap.BlackID] == snap.ID {
		delete(m.byPlayer, snap.BlackID)
	}
	m.mu.Unlock()

	if sess != nil {
		go sess.Close()
	}
	if m.opts.Store != nil {
		go m.saveSnapshot(snap)
	}
	if outcome != nil && m.opts.Recorder != nil {
		o := *outcome
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = m.opts.Recorder.Record(ctx, o)
		}()
	}
}

func (m *Manager) saveSnapshot(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.opts.Store.Save(ctx, snap); err != nil {
		obslog.L().Warn("session_snapshot_save_failed",
			zap.String("session_id", snap.ID),
			zap.Error(err),
		)
	}
}

func (m *Manager) opponentInfo(p domain.PlayerIdentity) *protocol.OpponentInfo {
	info := &protocol.OpponentInfo{ID: p.ID, Name: p.Name}
	if m.opts.Profiles == nil {
		return info
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	profile, err := m.opts.Profiles.GetProfile(ctx, p.ID)
	if err != nil || profile == nil {
		return info
	}
	info.Rating = profile.DisplayRating()
	info.Wins = profile.Wins
	info.Losses = profile.Losses
	info.Draws = profile.Draws
	return info
}

func flip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return false
	}
	return b[0]&1 == 1
}
