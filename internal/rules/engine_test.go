package rules

import (
	"errors"
	"testing"

	"github.com/kapu/chess-arena/internal/domain"
)

func TestApplyLegalMove(t *testing.T) {
	eng := NewEngine()
	res, err := eng.Apply(nil, Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.UCI != "e2e4" {
		t.Fatalf("unexpected UCI: %q", res.UCI)
	}
	if res.SAN != "e4" {
		t.Fatalf("unexpected SAN: %q", res.SAN)
	}
	if res.Turn != domain.Black {
		t.Fatalf("turn should pass to black, got %q", res.Turn)
	}
	if res.Outcome != OutcomeNone {
		t.Fatalf("game should continue, got outcome %q", res.Outcome)
	}
	if res.FEN == "" {
		t.Fatalf("expected FEN after move")
	}
}

func TestApplyIllegalMove(t *testing.T) {
	eng := NewEngine()
	cases := []Move{
		{From: "e2", To: "e5"}, // pawn three squares
		{From: "e7", To: "e5"}, // black piece on white's turn
		{From: "e3", To: "e4"}, // empty square
		{From: "zz", To: "e4"}, // not a square
		{From: "", To: ""},
	}
	for _, mv := range cases {
		if _, err := eng.Apply(nil, mv); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("Apply(%v) = %v, want ErrIllegalMove", mv, err)
		}
	}
}

func TestFoolsMateEndsGame(t *testing.T) {
	eng := NewEngine()
	history := []string{"f2f3", "e7e5", "g2g4"}
	res, err := eng.Apply(history, Move{From: "d8", To: "h4"})
	if err != nil {
		t.Fatalf("Apply mate: %v", err)
	}
	if res.Outcome != OutcomeBlack {
		t.Fatalf("outcome = %q, want black", res.Outcome)
	}
	if res.Method != "checkmate" {
		t.Fatalf("method = %q, want checkmate", res.Method)
	}

	// Nothing more can be applied to a decided game.
	if _, err := eng.Apply(append(history, res.UCI), Move{From: "e2", To: "e3"}); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	eng := NewEngine()
	history := []string{"a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "h7h6", "a6a7", "h6h5"}
	res, err := eng.Apply(history, Move{From: "a7", To: "b8"})
	if err != nil {
		t.Fatalf("Apply promotion: %v", err)
	}
	if res.UCI != "a7b8q" {
		t.Fatalf("UCI = %q, want a7b8q", res.UCI)
	}
}

func TestPromotionExplicitPiece(t *testing.T) {
	eng := NewEngine()
	history := []string{"a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "h7h6", "a6a7", "h6h5"}
	res, err := eng.Apply(history, Move{From: "a7", To: "b8", Promotion: "n"})
	if err != nil {
		t.Fatalf("Apply underpromotion: %v", err)
	}
	if res.UCI != "a7b8n" {
		t.Fatalf("UCI = %q, want a7b8n", res.UCI)
	}
}

func TestReplayCorruptedLog(t *testing.T) {
	eng := NewEngine()
	if _, err := eng.Replay([]string{"e2e4", "e2e4"}); !errors.Is(err, ErrCorruptedLog) {
		t.Fatalf("expected ErrCorruptedLog, got %v", err)
	}
}

func TestReplayEmptyHistory(t *testing.T) {
	eng := NewEngine()
	st, err := eng.Replay(nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if st.Turn != domain.White {
		t.Fatalf("start turn = %q, want white", st.Turn)
	}
	if st.Outcome != OutcomeNone {
		t.Fatalf("start outcome = %q, want none", st.Outcome)
	}
}

func TestLegalMoves(t *testing.T) {
	eng := NewEngine()
	moves, err := eng.LegalMoves(nil, "e2")
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("e2 should have 2 moves at start, got %v", moves)
	}

	// Empty square has none; bad input errors.
	moves, err = eng.LegalMoves(nil, "e4")
	if err != nil || len(moves) != 0 {
		t.Fatalf("e4 moves = %v err = %v, want none", moves, err)
	}
	if _, err := eng.LegalMoves(nil, "j9"); !errors.Is(err, ErrInvalidSquare) {
		t.Fatalf("expected ErrInvalidSquare, got %v", err)
	}
}
