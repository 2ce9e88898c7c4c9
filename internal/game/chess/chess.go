// Package chess adapts github.com/corentings/chess/v2 to the arena engine
// contract. State is the recorded UCI move list; the board is always
// reconstructed by replaying it from the start position, so the stored
// document can never drift from the history.
package chess

import (
	"encoding/json"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/stakeboard/arena/internal/game"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (Engine) Kind() game.Kind { return game.Chess }

func (Engine) Seats(n int) ([]game.Seat, error) {
	if n != 2 {
		return nil, fmt.Errorf("chess seats two players, got %d", n)
	}
	return []game.Seat{game.White, game.Black}, nil
}

// state is the persisted chess document.
type state struct {
	Moves []string `json:"moves"`
}

func (Engine) Initial(seats []game.Seat, _ int64) (json.RawMessage, error) {
	if len(seats) != 2 {
		return nil, fmt.Errorf("chess needs two seats, got %d", len(seats))
	}
	return json.Marshal(state{Moves: []string{}})
}

func decode(raw json.RawMessage) (*state, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("chess state: %w", err)
	}
	return &st, nil
}

// reconstruct replays stored UCI moves from the start position.
func reconstruct(st *state) (*nchess.Game, error) {
	g := nchess.NewGame()
	for i, mv := range st.Moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i, mv, err)
		}
	}
	return g, nil
}

func seatOf(c nchess.Color) game.Seat {
	if c == nchess.White {
		return game.White
	}
	return game.Black
}

func (Engine) Turn(raw json.RawMessage) (game.Seat, error) {
	st, err := decode(raw)
	if err != nil {
		return "", err
	}
	g, err := reconstruct(st)
	if err != nil {
		return "", err
	}
	return seatOf(g.Position().Turn()), nil
}

func (Engine) LegalMoves(raw json.RawMessage, seat game.Seat) ([]game.Move, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	g, err := reconstruct(st)
	if err != nil {
		return nil, err
	}
	if g.Outcome() != nchess.NoOutcome || seatOf(g.Position().Turn()) != seat {
		return nil, nil
	}
	valid := g.ValidMoves()
	out := make([]game.Move, 0, len(valid))
	for i := range valid {
		mv := valid[i]
		m := game.Move{From: mv.S1().String(), To: mv.S2().String()}
		if p := mv.Promo(); p != nchess.NoPieceType {
			m.Meta.Promotion = strings.ToLower(p.String())
		}
		out = append(out, m)
	}
	return out, nil
}

// uci renders a move in UCI notation, defaulting pawn promotion to queen.
func uci(g *nchess.Game, mv game.Move) string {
	s := strings.ToLower(strings.TrimSpace(mv.From + mv.To))
	promo := strings.ToLower(strings.TrimSpace(mv.Meta.Promotion))
	if promo != "" {
		return s + promo
	}
	// a bare move the position only allows as a promotion takes the queen
	for _, legal := range g.ValidMoves() {
		if legal.Promo() != nchess.NoPieceType && legal.S1().String()+legal.S2().String() == s {
			return s + "q"
		}
	}
	return s
}

func (Engine) Apply(raw json.RawMessage, mv game.Move) (json.RawMessage, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	g, err := reconstruct(st)
	if err != nil {
		return nil, err
	}
	if g.Outcome() != nchess.NoOutcome {
		return nil, fmt.Errorf("game already decided")
	}
	move := uci(g, mv)
	if err := g.PushNotationMove(move, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("illegal move %s: %w", move, err)
	}
	st.Moves = append(st.Moves, move)
	return json.Marshal(st)
}

func (Engine) Terminal(raw json.RawMessage) (*game.Outcome, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	g, err := reconstruct(st)
	if err != nil {
		return nil, err
	}
	switch g.Outcome() {
	case nchess.WhiteWon:
		return &game.Outcome{Winner: game.White, Reason: reason(g.Method())}, nil
	case nchess.BlackWon:
		return &game.Outcome{Winner: game.Black, Reason: reason(g.Method())}, nil
	case nchess.Draw:
		return &game.Outcome{Draw: true, Reason: reason(g.Method())}, nil
	}
	return nil, nil
}

func reason(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	default:
		return strings.ToLower(m.String())
	}
}
