package checkers

import (
	"encoding/json"
	"testing"

	"github.com/stakeboard/arena/internal/game"
)

func marshal(t *testing.T, st *state) []byte {
	t.Helper()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return raw
}

func TestInitialSetup(t *testing.T) {
	eng := New()
	seats, err := eng.Seats(2)
	if err != nil {
		t.Fatalf("Seats: %v", err)
	}
	if seats[0] != game.Red || seats[1] != game.Black {
		t.Fatalf("unexpected seat order: %v", seats)
	}
	raw, err := eng.Initial(seats, 0)
	if err != nil {
		t.Fatalf("Initial: %v", err)
	}
	st, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Turn != game.Red {
		t.Fatalf("red moves first, got %q", st.Turn)
	}
	red, black := 0, 0
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := st.Board[r][c]; p != nil {
				if p.Seat == game.Red {
					red++
				} else {
					black++
				}
			}
		}
	}
	if red != 12 || black != 12 {
		t.Fatalf("expected 12 pieces each, got red=%d black=%d", red, black)
	}

	moves, err := eng.LegalMoves(raw, game.Red)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 7 {
		t.Fatalf("expected 7 opening moves, got %d", len(moves))
	}
}

func TestCaptureIsMandatory(t *testing.T) {
	eng := New()
	st := &state{Turn: game.Red}
	st.Board[5][2] = &piece{Seat: game.Red}
	st.Board[5][6] = &piece{Seat: game.Red}
	st.Board[4][3] = &piece{Seat: game.Black}
	raw := marshal(t, st)

	moves, err := eng.LegalMoves(raw, game.Red)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("expected the capture to be the only legal move, got %v", moves)
	}
	if moves[0].From != "5,2" || moves[0].To != "3,4" {
		t.Fatalf("unexpected capture %v", moves[0])
	}

	// the quiet move is rejected while a capture exists
	if _, err := eng.Apply(raw, game.Move{From: "5,6", To: "4,7"}); err == nil {
		t.Fatalf("expected quiet move rejection while a capture exists")
	}

	next, err := eng.Apply(raw, moves[0])
	if err != nil {
		t.Fatalf("Apply capture: %v", err)
	}
	got, err := decode(next)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Board[4][3] != nil {
		t.Fatalf("captured piece not removed")
	}
	if got.Turn != game.Black {
		t.Fatalf("turn should rotate after a single capture, got %q", got.Turn)
	}
}

func TestMultiJumpChain(t *testing.T) {
	eng := New()
	st := &state{Turn: game.Black}
	st.Board[2][2] = &piece{Seat: game.Black}
	st.Board[3][3] = &piece{Seat: game.Red}
	st.Board[5][5] = &piece{Seat: game.Red}
	raw := marshal(t, st)

	next, err := eng.Apply(raw, game.Move{From: "2,2", To: "4,4"})
	if err != nil {
		t.Fatalf("first jump: %v", err)
	}
	mid, err := decode(next)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mid.Turn != game.Black {
		t.Fatalf("turn must not rotate mid chain, got %q", mid.Turn)
	}
	if mid.Chain == nil || mid.Chain.Row != 4 || mid.Chain.Col != 4 {
		t.Fatalf("chain pin missing, got %+v", mid.Chain)
	}

	// only the chained piece may move, and only by capturing
	moves, err := eng.LegalMoves(next, game.Black)
	if err != nil {
		t.Fatalf("LegalMoves mid chain: %v", err)
	}
	if len(moves) != 1 || moves[0].From != "4,4" || moves[0].To != "6,6" {
		t.Fatalf("expected forced continuation 4,4->6,6, got %v", moves)
	}

	final, err := eng.Apply(next, moves[0])
	if err != nil {
		t.Fatalf("second jump: %v", err)
	}
	end, err := decode(final)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if end.Chain != nil {
		t.Fatalf("chain should clear once exhausted")
	}
	if end.Board[3][3] != nil || end.Board[5][5] != nil {
		t.Fatalf("captured pieces not removed")
	}

	// red has nothing left, so the game is over
	out, err := eng.Terminal(final)
	if err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	if out == nil || out.Winner != game.Black || out.Reason != "no_moves" {
		t.Fatalf("expected black win by no_moves, got %+v", out)
	}
}

func TestCrowningEndsChain(t *testing.T) {
	eng := New()
	st := &state{Turn: game.Black}
	st.Board[5][1] = &piece{Seat: game.Black}
	st.Board[6][2] = &piece{Seat: game.Red}
	// a further capture would exist if the chain continued
	st.Board[6][4] = &piece{Seat: game.Red}
	st.Board[0][0] = &piece{Seat: game.Red} // keeps red alive
	raw := marshal(t, st)

	next, err := eng.Apply(raw, game.Move{From: "5,1", To: "7,3"})
	if err != nil {
		t.Fatalf("capture into crowning: %v", err)
	}
	got, err := decode(next)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := got.Board[7][3]
	if p == nil || !p.King {
		t.Fatalf("expected crowned king on 7,3")
	}
	if got.Chain != nil {
		t.Fatalf("crowning must end the chain")
	}
	if got.Turn != game.Red {
		t.Fatalf("turn should pass after crowning, got %q", got.Turn)
	}
}

func TestKingMovesBackward(t *testing.T) {
	eng := New()
	st := &state{Turn: game.Red}
	st.Board[3][3] = &piece{Seat: game.Red, King: true}
	st.Board[0][0] = &piece{Seat: game.Black}
	raw := marshal(t, st)

	moves, err := eng.LegalMoves(raw, game.Red)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if !game.Contains(moves, game.Move{From: "3,3", To: "4,4"}) {
		t.Fatalf("king should step backward, got %v", moves)
	}
}
