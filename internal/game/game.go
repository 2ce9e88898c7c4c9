package game

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the supported board games.
type Kind string

const (
	Chess    Kind = "chess"
	Checkers Kind = "checkers"
	Ludo     Kind = "ludo"
)

// Seat is a named side in a match (white/black, red/black, or one of the
// four ludo colors).
type Seat string

const (
	White  Seat = "white"
	Black  Seat = "black"
	Red    Seat = "red"
	Green  Seat = "green"
	Yellow Seat = "yellow"
	Blue   Seat = "blue"
)

// Move is one recorded move. From/To use the game's square notation
// (chess "e2", checkers "row,col"); ludo keeps everything in Meta.
// A Move is immutable once appended to a session's history.
type Move struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Meta Meta   `json:"meta,omitempty"`
}

// Meta carries the game-specific payload of a move.
type Meta struct {
	Promotion string `json:"promotion,omitempty"` // chess: piece letter, defaults to q
	Roll      bool   `json:"roll,omitempty"`      // ludo: consume the next die from the stream
	Die       int    `json:"die,omitempty"`       // ludo: die value a token move spends
	Token     int    `json:"token,omitempty"`     // ludo: token index 0..3
}

// Equal reports whether two moves are the same move.
func (m Move) Equal(o Move) bool { return m == o }

func (m Move) String() string {
	if m.Meta.Roll {
		return "roll"
	}
	if m.Meta.Die > 0 {
		return fmt.Sprintf("t%d+%d", m.Meta.Token, m.Meta.Die)
	}
	if m.Meta.Promotion != "" {
		return m.From + m.To + m.Meta.Promotion
	}
	return m.From + m.To
}

// Outcome is a terminal verdict. Winner is empty on a draw.
type Outcome struct {
	Winner Seat   `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
	Reason string `json:"reason"`
}

// Engine is the pure rule set for one game kind. State is an opaque JSON
// document owned by the engine; callers treat it as a value and never
// mutate it in place. All methods are free of I/O and hidden state, so a
// board is always reproducible as a fold of moves over Initial.
type Engine interface {
	Kind() Kind

	// Seats returns the seat order for a match of n players, first mover
	// first. Errors when the game cannot host n players.
	Seats(n int) ([]Seat, error)

	// Initial produces the starting state. seed feeds the dice stream for
	// games of chance and is ignored elsewhere.
	Initial(seats []Seat, seed int64) (json.RawMessage, error)

	// Turn reports which seat moves next.
	Turn(state json.RawMessage) (Seat, error)

	// LegalMoves returns every move seat may play. Empty when it is not
	// seat's turn or the game is over.
	LegalMoves(state json.RawMessage, seat Seat) ([]Move, error)

	// Apply returns the successor state. The move must come from
	// LegalMoves for the side to move.
	Apply(state json.RawMessage, mv Move) (json.RawMessage, error)

	// Terminal returns the outcome, or nil while the game is live.
	Terminal(state json.RawMessage) (*Outcome, error)
}

// Contains reports whether mv is a member of the legal move set.
func Contains(moves []Move, mv Move) bool {
	for _, m := range moves {
		if m.Equal(mv) {
			return true
		}
	}
	return false
}
