package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/protocol"
	"github.com/kapu/chess-arena/internal/recorder"
	"github.com/kapu/chess-arena/internal/rules"
)

// Status is the session lifecycle state machine value.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusWhiteWins  Status = "WHITE_WINS"
	StatusBlackWins  Status = "BLACK_WINS"
	StatusDraw       Status = "DRAW"
	StatusAbandoned  Status = "ABANDONED"
)

func (s Status) Terminal() bool { return s != StatusInProgress }

// Broadcaster delivers an envelope to a player's current connection,
// best-effort and non-blocking.
type Broadcaster interface {
	Push(playerID string, env protocol.Envelope) bool
}

// TerminalFunc is invoked exactly once, on the session worker, when the
// session reaches a terminal state. outcome is nil when nothing is to
// be recorded (both seats gone).
type TerminalFunc func(snap Snapshot, outcome *recorder.Outcome)

type seat struct {
	player         domain.PlayerIdentity
	color          domain.Color
	connected      bool
	disconnectedAt time.Time
	graceTimer     *time.Timer
}

// Snapshot is the externally visible state of a session, also the JSON
// shape persisted by the store.
type Snapshot struct {
	ID        string       `json:"id"`
	WhiteID   string       `json:"white_id"`
	WhiteName string       `json:"white_name"`
	BlackID   string       `json:"black_id"`
	BlackName string       `json:"black_name"`
	FEN       string       `json:"fen"`
	MovesUCI  []string     `json:"moves_uci"`
	MovesSAN  []string     `json:"moves_san"`
	Turn      domain.Color `json:"turn"`
	Status    Status       `json:"status"`
	Winner    string       `json:"winner,omitempty"`
	Method    string       `json:"method,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Session owns one paired match's authoritative state. All mutations
// funnel through a single worker goroutine via the ops channel, so no
// lock guards the game state itself.
type Session struct {
	id     string
	eng    rules.Engine
	notify Broadcaster
	grace  time.Duration

	onTerminal TerminalFunc

	white *seat
	black *seat

	movesUCI []string
	movesSAN []string
	fen      string
	turn     domain.Color
	status   Status
	winner   string
	method   string

	createdAt time.Time
	updatedAt time.Time

	ops    chan func()
	closed chan struct{}

	closeMu  sync.RWMutex
	isClosed bool
}

// New creates an in-progress session with both seats filled and starts
// its worker. Color assignment is decided by the caller and fixed for
// the session's lifetime.
func New(id string, white, black domain.PlayerIdentity, eng rules.Engine, notify Broadcaster, grace time.Duration, onTerminal TerminalFunc) *Session {
	now := time.Now()
	s := &Session{
		id:         id,
		eng:        eng,
		notify:     notify,
		grace:      grace,
		onTerminal: onTerminal,
		white:      &seat{player: white, color: domain.White, connected: true},
		black:      &seat{player: black, color: domain.Black, connected: true},
		fen:        startFEN(eng),
		turn:       domain.White,
		status:     StatusInProgress,
		createdAt:  now,
		updatedAt:  now,
		ops:        make(chan func(), 16),
		closed:     make(chan struct{}),
	}
	go s.run()
	return s
}

func startFEN(eng rules.Engine) string {
	st, err := eng.Replay(nil)
	if err != nil {
		return ""
	}
	return st.FEN
}

func (s *Session) ID() string { return s.id }

// Players returns both seat identities, white first.
func (s *Session) Players() (domain.PlayerIdentity, domain.PlayerIdentity) {
	return s.white.player, s.black.player
}

// ColorOf reports the seat color for a player id, empty when the player
// is not seated.
func (s *Session) ColorOf(playerID string) domain.Color {
	switch playerID {
	case s.white.player.ID:
		return domain.White
	case s.black.player.ID:
		return domain.Black
	default:
		return ""
	}
}

// ApplyMove validates and applies one move for the player. On success
// the applied move has already been broadcast to both seats.
func (s *Session) ApplyMove(playerID string, mv rules.Move) (*rules.MoveResult, error) {
	type resp struct {
		res *rules.MoveResult
		err error
	}
	ch := make(chan resp, 1)
	if !s.do(func() {
		res, err := s.applyMove(playerID, mv)
		ch <- resp{res: res, err: err}
	}) {
		return nil, ErrSessionOver
	}
	r := <-ch
	return r.res, r.err
}

// Resign ends the session with the resigning player losing.
func (s *Session) Resign(playerID string) error {
	ch := make(chan error, 1)
	if !s.do(func() { ch <- s.resign(playerID) }) {
		return ErrSessionOver
	}
	return <-ch
}

// MarkDisconnected flags the player's seat as disconnected and starts
// the grace timer. The opponent is notified.
func (s *Session) MarkDisconnected(playerID string) {
	s.do(func() { s.markDisconnected(playerID) })
}

// Reconnect rebinds a returning player within the grace window and
// pushes exactly one resync with the current state.
func (s *Session) Reconnect(playerID string) error {
	ch := make(chan error, 1)
	if !s.do(func() { ch <- s.reconnect(playerID) }) {
		return ErrReconnectWindowExpired
	}
	return <-ch
}

// PushResync sends the current state to a seated player without
// touching seat connectivity, used when a client has visibly lost track
// of its own session.
func (s *Session) PushResync(playerID string) {
	s.do(func() {
		if st := s.seatOf(playerID); st != nil {
			s.pushResync(st)
		}
	})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	ch := make(chan Snapshot, 1)
	if !s.do(func() { ch <- s.snapshot() }) {
		return Snapshot{ID: s.id, Status: StatusAbandoned}
	}
	return <-ch
}

// Close stops the worker. Called by the manager once the session has
// been unrouted; a terminated session is immutable afterwards.
func (s *Session) Close() {
	s.closeMu.Lock()
	if !s.isClosed {
		s.isClosed = true
		close(s.closed)
	}
	s.closeMu.Unlock()
}

// do hands fn to the worker. Returns false once the session is closed.
// The read lock pairs with Close so an accepted fn is always executed.
func (s *Session) do(fn func()) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.isClosed {
		return false
	}
	s.ops <- fn
	return true
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.closed:
			for {
				select {
				case fn := <-s.ops:
					fn()
				default:
					return
				}
			}
		}
	}
}

// --- worker-side state transitions ---

func (s *Session) applyMove(playerID string, mv rules.Move) (*rules.MoveResult, error) {
	if s.status.Terminal() {
		return nil, ErrSessionOver
	}
	st := s.seatOf(playerID)
	if st == nil {
		return nil, ErrNotParticipant
	}
	if st.color != s.turn {
		return nil, ErrNotYourTurn
	}

	res, err := s.eng.Apply(s.movesUCI, mv)
	if err != nil {
		if errors.Is(err, rules.ErrGameFinished) {
			return nil, ErrSessionOver
		}
		return nil, ErrIllegalMove
	}

	s.movesUCI = append(s.movesUCI, res.UCI)
	s.movesSAN = append(s.movesSAN, res.SAN)
	s.fen = res.FEN
	s.turn = res.Turn
	s.updatedAt = time.Now()

	s.broadcast(protocol.Envelope{
		Type: protocol.TypeMove,
		Move: &protocol.MoveMsg{
			From:      res.UCI[0:2],
			To:        res.UCI[2:4],
			Promotion: res.UCI[4:],
			SAN:       res.SAN,
			Check:     res.Check,
		},
	})
	obslog.L().Info("session_move",
		zap.String("session_id", s.id),
		zap.String("player_id", playerID),
		zap.String("uci", res.UCI),
		zap.String("turn", string(s.turn)),
	)

	switch res.Outcome {
	case rules.OutcomeWhite:
		s.finish(StatusWhiteWins, result(recorder.WhiteWins), res.Method)
	case rules.OutcomeBlack:
		s.finish(StatusBlackWins, result(recorder.BlackWins), res.Method)
	case rules.OutcomeDraw:
		s.finish(StatusDraw, result(recorder.Draw), res.Method)
	}
	return res, nil
}

func (s *Session) resign(playerID string) error {
	if s.status.Terminal() {
		return ErrSessionOver
	}
	st := s.seatOf(playerID)
	if st == nil {
		return ErrNotParticipant
	}
	if st.color == domain.White {
		s.finish(StatusBlackWins, result(recorder.BlackWins), "resignation")
	} else {
		s.finish(StatusWhiteWins, result(recorder.WhiteWins), "resignation")
	}
	return nil
}

func (s *Session) markDisconnected(playerID string) {
	if s.status.Terminal() {
		return
	}
	st := s.seatOf(playerID)
	if st == nil || !st.connected {
		return
	}
	st.connected = false
	st.disconnectedAt = time.Now()

	color := st.color
	st.graceTimer = time.AfterFunc(s.grace, func() {
		s.do(func() { s.graceExpired(color) })
	})

	s.notify.Push(s.other(st).player.ID, protocol.Envelope{Type: protocol.TypeOpponentDisconnected})
	obslog.L().Info("session_seat_disconnected",
		zap.String("session_id", s.id),
		zap.String("player_id", playerID),
		zap.Duration("grace", s.grace),
	)
}

func (s *Session) reconnect(playerID string) error {
	if s.status.Terminal() {
		return ErrReconnectWindowExpired
	}
	st := s.seatOf(playerID)
	if st == nil {
		return ErrNotParticipant
	}
	st.connected = true
	st.disconnectedAt = time.Time{}
	if st.graceTimer != nil {
		st.graceTimer.Stop()
		st.graceTimer = nil
	}

	s.pushResync(st)
	s.notify.Push(s.other(st).player.ID, protocol.Envelope{Type: protocol.TypeOpponentReconnected})
	obslog.L().Info("session_seat_reconnected",
		zap.String("session_id", s.id),
		zap.String("player_id", playerID),
	)
	return nil
}

func (s *Session) graceExpired(color domain.Color) {
	if s.status.Terminal() {
		return
	}
	gone := s.seatByColor(color)
	if gone.connected {
		return
	}
	other := s.other(gone)

	if !other.connected {
		// Both seats gone: discard without a recorded result.
		s.finish(StatusAbandoned, nil, "abandoned")
		return
	}
	if gone.color == domain.White {
		s.finish(StatusAbandoned, result(recorder.BlackWins), "abandonment")
	} else {
		s.finish(StatusAbandoned, result(recorder.WhiteWins), "abandonment")
	}
}

// finish moves the state machine to a terminal value, broadcasts the
// result, and hands the outcome to the manager. res nil means
// no-contest.
func (s *Session) finish(status Status, res *recorder.Result, method string) {
	s.status = status
	s.method = method
	s.updatedAt = time.Now()

	for _, st := range []*seat{s.white, s.black} {
		if st.graceTimer != nil {
			st.graceTimer.Stop()
			st.graceTimer = nil
		}
	}

	var outcome *recorder.Outcome
	if res != nil {
		switch *res {
		case recorder.WhiteWins:
			s.winner = s.white.player.ID
		case recorder.BlackWins:
			s.winner = s.black.player.ID
		}
		outcome = &recorder.Outcome{
			SessionID: s.id,
			White:     s.white.player,
			Black:     s.black.player,
			Result:    *res,
			Method:    method,
			EndedAt:   s.updatedAt,
		}
	}

	wire := "abandoned"
	if res != nil {
		wire = string(*res)
	}
	s.broadcast(protocol.Envelope{
		Type: protocol.TypeGameOver,
		Result: &protocol.GameOverMsg{
			Outcome: wire,
			Method:  method,
			Winner:  s.winner,
		},
	})
	obslog.L().Info("session_finished",
		zap.String("session_id", s.id),
		zap.String("status", string(status)),
		zap.String("method", method),
		zap.String("winner", s.winner),
	)

	if s.onTerminal != nil {
		s.onTerminal(s.snapshot(), outcome)
	}
}

func (s *Session) pushResync(st *seat) {
	s.notify.Push(st.player.ID, protocol.Envelope{
		Type: protocol.TypeResync,
		Resync: &protocol.ResyncMsg{
			FEN:   s.fen,
			Moves: append([]string(nil), s.movesUCI...),
			Turn:  string(s.turn),
			Color: string(st.color),
		},
	})
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		WhiteID:   s.white.player.ID,
		WhiteName: s.white.player.Name,
		BlackID:   s.black.player.ID,
		BlackName: s.black.player.Name,
		FEN:       s.fen,
		MovesUCI:  append([]string(nil), s.movesUCI...),
		MovesSAN:  append([]string(nil), s.movesSAN...),
		Turn:      s.turn,
		Status:    s.status,
		Winner:    s.winner,
		Method:    s.method,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) broadcast(env protocol.Envelope) {
	s.notify.Push(s.white.player.ID, env)
	s.notify.Push(s.black.player.ID, env)
}

func (s *Session) seatOf(playerID string) *seat {
	switch playerID {
	case s.white.player.ID:
		return s.white
	case s.black.player.ID:
		return s.black
	default:
		return nil
	}
}

func (s *Session) seatByColor(c domain.Color) *seat {
	if c == domain.White {
		return s.white
	}
	return s.black
}

func (s *Session) other(st *seat) *seat {
	if st == s.white {
		return s.black
	}
	return s.white
}

func result(r recorder.Result) *recorder.Result { return &r }
