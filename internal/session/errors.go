package session

import (
	"errors"

	"github.com/kapu/chess-arena/internal/matchqueue"
)

// Validation errors go back to the offending connection only and never
// mutate session state.
var (
	ErrNotYourTurn            = errors.New("not your turn")
	ErrIllegalMove            = errors.New("illegal move")
	ErrSessionOver            = errors.New("session already decided")
	ErrUnknownSession         = errors.New("no session for player")
	ErrNotParticipant         = errors.New("player is not seated in this session")
	ErrReconnectWindowExpired = errors.New("reconnect window expired")
	ErrUnsupportedMessage     = errors.New("unsupported message type")
)

// ErrorCode maps a session error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotYourTurn):
		return "not-your-turn"
	case errors.Is(err, ErrIllegalMove):
		return "illegal-move"
	case errors.Is(err, ErrSessionOver):
		return "session-over"
	case errors.Is(err, ErrUnknownSession):
		return "unknown-session"
	case errors.Is(err, ErrReconnectWindowExpired):
		return "reconnect-window-expired"
	case errors.Is(err, matchqueue.ErrDuplicateSession):
		return "duplicate-session"
	case errors.Is(err, matchqueue.ErrQueueFull):
		return "queue-full"
	case errors.Is(err, ErrUnsupportedMessage):
		return "unsupported-type"
	default:
		return "internal"
	}
}
