// Package checkers implements 8x8 draughts. Red sits on rows 5..7 and
// moves toward row 0; black mirrors it. Captures are mandatory, and a
// piece that captures into another capture must keep jumping before the
// turn rotates.
package checkers

import (
	"encoding/json"
	"fmt"

	"github.com/stakeboard/arena/internal/game"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (Engine) Kind() game.Kind { return game.Checkers }

func (Engine) Seats(n int) ([]game.Seat, error) {
	if n != 2 {
		return nil, fmt.Errorf("checkers seats two players, got %d", n)
	}
	return []game.Seat{game.Red, game.Black}, nil
}

type piece struct {
	Seat game.Seat `json:"seat"`
	King bool      `json:"king,omitempty"`
}

type square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s square) String() string { return fmt.Sprintf("%d,%d", s.Row, s.Col) }

func parseSquare(s string) (square, error) {
	var sq square
	if _, err := fmt.Sscanf(s, "%d,%d", &sq.Row, &sq.Col); err != nil {
		return sq, fmt.Errorf("bad square %q: %w", s, err)
	}
	if sq.Row < 0 || sq.Row > 7 || sq.Col < 0 || sq.Col > 7 {
		return sq, fmt.Errorf("square %q off board", s)
	}
	return sq, nil
}

// state is the persisted checkers document. Chain, when set, pins the
// piece that is mid multi-jump; only its further captures are legal and
// the turn has not rotated yet.
type state struct {
	Board [8][8]*piece `json:"board"`
	Turn  game.Seat    `json:"turn"`
	Chain *square      `json:"chain,omitempty"`
}

func (Engine) Initial(seats []game.Seat, _ int64) (json.RawMessage, error) {
	if len(seats) != 2 {
		return nil, fmt.Errorf("checkers needs two seats, got %d", len(seats))
	}
	var st state
	st.Turn = seats[0]
	for row := 0; row < 3; row++ {
		for col := 0; col < 8; col++ {
			if (row+col)%2 == 1 {
				st.Board[row][col] = &piece{Seat: seats[1]}
			}
		}
	}
	for row := 5; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if (row+col)%2 == 1 {
				st.Board[row][col] = &piece{Seat: seats[0]}
			}
		}
	}
	return json.Marshal(&st)
}

func decode(raw json.RawMessage) (*state, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("checkers state: %w", err)
	}
	return &st, nil
}

func (Engine) Turn(raw json.RawMessage) (game.Seat, error) {
	st, err := decode(raw)
	if err != nil {
		return "", err
	}
	return st.Turn, nil
}

// rowDirs are the forward directions a piece may step or jump in.
func rowDirs(p *piece) []int {
	if p.King {
		return []int{-1, 1}
	}
	if p.Seat == game.Red {
		return []int{-1}
	}
	return []int{1}
}

func onBoard(r, c int) bool { return r >= 0 && r < 8 && c >= 0 && c < 8 }

func captures(st *state, from square) []game.Move {
	p := st.Board[from.Row][from.Col]
	if p == nil {
		return nil
	}
	var out []game.Move
	for _, dr := range rowDirs(p) {
		for _, dc := range []int{-1, 1} {
			mr, mc := from.Row+dr, from.Col+dc
			jr, jc := from.Row+dr*2, from.Col+dc*2
			if !onBoard(jr, jc) || st.Board[jr][jc] != nil {
				continue
			}
			mid := st.Board[mr][mc]
			if mid == nil || mid.Seat == p.Seat {
				continue
			}
			out = append(out, game.Move{From: from.String(), To: square{jr, jc}.String()})
		}
	}
	return out
}

func steps(st *state, from square) []game.Move {
	p := st.Board[from.Row][from.Col]
	if p == nil {
		return nil
	}
	var out []game.Move
	for _, dr := range rowDirs(p) {
		for _, dc := range []int{-1, 1} {
			r, c := from.Row+dr, from.Col+dc
			if onBoard(r, c) && st.Board[r][c] == nil {
				out = append(out, game.Move{From: from.String(), To: square{r, c}.String()})
			}
		}
	}
	return out
}

// movesFor generates the legal set for the side to move: mid-chain the
// pinned piece's captures only, otherwise all captures if any exist,
// otherwise quiet steps.
func movesFor(st *state) []game.Move {
	if st.Chain != nil {
		return captures(st, *st.Chain)
	}
	var caps, quiet []game.Move
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := st.Board[r][c]
			if p == nil || p.Seat != st.Turn {
				continue
			}
			sq := square{r, c}
			caps = append(caps, captures(st, sq)...)
			if len(caps) == 0 {
				quiet = append(quiet, steps(st, sq)...)
			}
		}
	}
	if len(caps) > 0 {
		return caps
	}
	return quiet
}

func (Engine) LegalMoves(raw json.RawMessage, seat game.Seat) ([]game.Move, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if st.Turn != seat {
		return nil, nil
	}
	return movesFor(st), nil
}

func other(st *state, s game.Seat) game.Seat {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := st.Board[r][c]; p != nil && p.Seat != s {
				return p.Seat
			}
		}
	}
	// conventional pairing when the opponent has no pieces left
	if s == game.Red {
		return game.Black
	}
	return game.Red
}

func backRank(s game.Seat) int {
	if s == game.Red {
		return 0
	}
	return 7
}

func (Engine) Apply(raw json.RawMessage, mv game.Move) (json.RawMessage, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if !game.Contains(movesFor(st), game.Move{From: mv.From, To: mv.To}) {
		return nil, fmt.Errorf("illegal move %s->%s", mv.From, mv.To)
	}
	from, err := parseSquare(mv.From)
	if err != nil {
		return nil, err
	}
	to, err := parseSquare(mv.To)
	if err != nil {
		return nil, err
	}
	p := st.Board[from.Row][from.Col]
	st.Board[from.Row][from.Col] = nil

	moved := &piece{Seat: p.Seat, King: p.King}
	promoted := false
	if !moved.King && to.Row == backRank(moved.Seat) {
		moved.King = true
		promoted = true
	}
	st.Board[to.Row][to.Col] = moved

	jumped := from.Row-to.Row == 2 || to.Row-from.Row == 2
	if jumped {
		st.Board[(from.Row+to.Row)/2][(from.Col+to.Col)/2] = nil
	}

	// a capture that opens another capture keeps the turn; crowning ends
	// the chain
	if jumped && !promoted && len(captures(st, to)) > 0 {
		st.Chain = &to
	} else {
		st.Chain = nil
		st.Turn = other(st, st.Turn)
	}
	return json.Marshal(st)
}

func (Engine) Terminal(raw json.RawMessage) (*game.Outcome, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if len(movesFor(st)) > 0 {
		return nil, nil
	}
	// no pieces and no moves fall under the same rule: the side to move
	// loses
	return &game.Outcome{Winner: other(st, st.Turn), Reason: "no_moves"}, nil
}
