package matchqueue

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
)

var (
	// ErrDuplicateSession rejects an identity that is already waiting or
	// already bound to a live session.
	ErrDuplicateSession = errors.New("player already queued or in a session")
	ErrQueueFull        = errors.New("matchmaking queue is full")
)

// Entry is one waiting player.
type Entry struct {
	Player     domain.PlayerIdentity
	EnqueuedAt time.Time
}

// Ticket identifies a queue entry so a later Cancel cannot remove a
// newer entry for the same player.
type Ticket struct {
	id       uint64
	playerID string
}

func (t *Ticket) PlayerID() string {
	if t == nil {
		return ""
	}
	return t.playerID
}

// PairFunc receives the two oldest entries once both are available. It
// is called outside the queue lock.
type PairFunc func(a, b Entry)

// LiveFunc reports whether the player is currently in a live session.
type LiveFunc func(playerID string) bool

type queued struct {
	entry  Entry
	ticket uint64
}

// Queue pairs waiting players strictly in arrival order. A single mutex
// guards the whole structure; pairing pops happen inside the critical
// section so no entry can be handed out twice.
type Queue struct {
	mu         sync.Mutex
	entries    []*queued
	byPlayer   map[string]*queued
	nextTicket uint64

	maxLen    int
	pair      PairFunc
	inSession LiveFunc
}

func New(maxLen int, inSession LiveFunc, pair PairFunc) *Queue {
	if maxLen <= 0 {
		maxLen = 500
	}
	return &Queue{
		byPlayer:  make(map[string]*queued),
		maxLen:    maxLen,
		pair:      pair,
		inSession: inSession,
	}
}

// Enqueue adds a waiting player and triggers pairing when two or more
// entries are queued.
func (q *Queue) Enqueue(player domain.PlayerIdentity) (*Ticket, error) {
	if player.ID == "" {
		return nil, errors.New("player id required")
	}

	q.mu.Lock()
	if _, dup := q.byPlayer[player.ID]; dup {
		q.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	if q.inSession != nil && q.inSession(player.ID) {
		q.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	if len(q.entries) >= q.maxLen {
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	q.nextTicket++
	item := &queued{
		entry:  Entry{Player: player, EnqueuedAt: time.Now()},
		ticket: q.nextTicket,
	}
	q.entries = append(q.entries, item)
	q.byPlayer[player.ID] = item

	pairs := q.drainPairsLocked()
	waiting := len(q.entries)
	q.mu.Unlock()

	obslog.L().Info("queue_enqueue",
		zap.String("player_id", player.ID),
		zap.Int("waiting", waiting),
	)
	for _, p := range pairs {
		q.pair(p[0], p[1])
	}
	return &Ticket{id: item.ticket, playerID: player.ID}, nil
}

// Cancel removes the ticket's entry if it is still waiting. Canceling a
// ticket that was already paired or canceled is a no-op.
func (q *Queue) Cancel(t *Ticket) {
	if t == nil {
		return
	}
	q.mu.Lock()
	item, ok := q.byPlayer[t.playerID]
	if ok && item.ticket == t.id {
		q.removeLocked(item)
	}
	q.mu.Unlock()
	if ok {
		obslog.L().Info("queue_cancel", zap.String("player_id", t.playerID))
	}
}

// CancelPlayer removes the player's waiting entry, used when a queued
// player disconnects.
func (q *Queue) CancelPlayer(playerID string) {
	q.mu.Lock()
	if item, ok := q.byPlayer[playerID]; ok {
		q.removeLocked(item)
	}
	q.mu.Unlock()
}

// Waiting returns the number of queued entries.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// drainPairsLocked pops pairs of the two oldest entries while at least
// two remain. Must hold q.mu.
func (q *Queue) drainPairsLocked() [][2]Entry {
	var pairs [][2]Entry
	for len(q.entries) >= 2 {
		a, b := q.entries[0], q.entries[1]
		q.entries = q.entries[2:]
		delete(q.byPlayer, a.entry.Player.ID)
		delete(q.byPlayer, b.entry.Player.ID)
		pairs = append(pairs, [2]Entry{a.entry, b.entry})
	}
	return pairs
}

func (q *Queue) removeLocked(item *queued) {
	for i, e := range q.entries {
		if e == item {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.byPlayer, item.entry.Player.ID)
}
