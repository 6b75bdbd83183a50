package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/chess-arena/internal/domain"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrCorruptedLog  = errors.New("move log does not replay")
	ErrGameFinished  = errors.New("game already decided")
	ErrInvalidSquare = errors.New("invalid square")
)

// Outcome is the terminal verdict of a position, empty while play continues.
type Outcome string

const (
	OutcomeNone  Outcome = ""
	OutcomeWhite Outcome = "white"
	OutcomeBlack Outcome = "black"
	OutcomeDraw  Outcome = "draw"
)

// Move is one candidate move in coordinate form. Promotion is a single
// piece letter (q, r, b, n); empty defaults to queen when the move
// requires one.
type Move struct {
	From      string
	To        string
	Promotion string
}

// MoveResult is the engine's verdict on an applied move.
type MoveResult struct {
	UCI     string
	SAN     string
	FEN     string
	Turn    domain.Color
	Check   bool
	Outcome Outcome
	Method  string
}

// State is a replayed position without a move attached.
type State struct {
	FEN     string
	Turn    domain.Color
	Outcome Outcome
	Method  string
}

// Engine is the move-legality and terminal-state oracle the session
// consumes. Positions are always identified by the full UCI move log;
// the engine replays from the start position, which keeps the log and
// the position consistent by construction.
type Engine interface {
	Apply(history []string, mv Move) (*MoveResult, error)
	Replay(history []string) (*State, error)
	LegalMoves(history []string, square string) ([]string, error)
}

type engine struct{}

// NewEngine returns the Engine backed by corentings/chess/v2.
func NewEngine() Engine { return engine{} }

func (engine) Apply(history []string, mv Move) (*MoveResult, error) {
	game, err := replay(history)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return nil, ErrGameFinished
	}

	pos := game.Position()
	uci, move, err := decode(pos, mv)
	if err != nil {
		return nil, err
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, move)
	if err := game.Move(move, nil); err != nil {
		return nil, ErrIllegalMove
	}

	res := &MoveResult{
		UCI:   uci,
		SAN:   san,
		FEN:   game.FEN(),
		Turn:  colorFrom(game.Position().Turn()),
		Check: move.HasTag(nchess.Check),
	}
	res.Outcome, res.Method = verdict(game)
	return res, nil
}

func (engine) Replay(history []string) (*State, error) {
	game, err := replay(history)
	if err != nil {
		return nil, err
	}
	st := &State{
		FEN:  game.FEN(),
		Turn: colorFrom(game.Position().Turn()),
	}
	st.Outcome, st.Method = verdict(game)
	return st, nil
}

func (engine) LegalMoves(history []string, square string) ([]string, error) {
	square = strings.ToLower(strings.TrimSpace(square))
	if len(square) != 2 || square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return nil, ErrInvalidSquare
	}
	game, err := replay(history)
	if err != nil {
		return nil, err
	}
	pos := game.Position()
	notation := nchess.UCINotation{}

	// Probe every destination through the decoder instead of walking the
	// library's move list; the decoder only accepts legal moves.
	var out []string
	for f := byte('a'); f <= 'h'; f++ {
		for r := byte('1'); r <= '8'; r++ {
			to := string([]byte{f, r})
			if to == square {
				continue
			}
			if _, err := notation.Decode(pos, square+to); err == nil {
				out = append(out, square+to)
				continue
			}
			if _, err := notation.Decode(pos, square+to+"q"); err == nil {
				out = append(out, square+to+"q")
			}
		}
	}
	return out, nil
}

func replay(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, raw := range history {
		uci := strings.ToLower(strings.TrimSpace(raw))
		move, err := notation.Decode(game.Position(), uci)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptedLog, uci, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("%w: apply %s: %v", ErrCorruptedLog, uci, err)
		}
	}
	return game, nil
}

func decode(pos *nchess.Position, mv Move) (string, *nchess.Move, error) {
	from := strings.ToLower(strings.TrimSpace(mv.From))
	to := strings.ToLower(strings.TrimSpace(mv.To))
	promo := strings.ToLower(strings.TrimSpace(mv.Promotion))
	if from == "" || to == "" {
		return "", nil, ErrIllegalMove
	}

	notation := nchess.UCINotation{}
	if promo != "" {
		uci := from + to + promo
		move, err := notation.Decode(pos, uci)
		if err != nil {
			return "", nil, ErrIllegalMove
		}
		return uci, move, nil
	}

	uci := from + to
	if move, err := notation.Decode(pos, uci); err == nil {
		return uci, move, nil
	}
	// Pawn reaching the back rank without an explicit piece: queen.
	uci += "q"
	move, err := notation.Decode(pos, uci)
	if err != nil {
		return "", nil, ErrIllegalMove
	}
	return uci, move, nil
}

func verdict(game *nchess.Game) (Outcome, string) {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return OutcomeWhite, methodString(game)
	case nchess.BlackWon:
		return OutcomeBlack, methodString(game)
	case nchess.Draw:
		return OutcomeDraw, methodString(game)
	default:
		return OutcomeNone, ""
	}
}

func methodString(game *nchess.Game) string {
	return strings.ToLower(game.Method().String())
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}
