// Package ludo implements two-to-four player ludo on the classic 52-cell
// ring with a 6-cell home lane. Dice are part of the move stream: a roll
// move draws the next value from a PRNG seeded in the initial state, so
// replaying the history reproduces the board, chance included.
package ludo

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/stakeboard/arena/internal/game"
)

const (
	ringCells   = 52
	laneEntry   = 51 // steps travelled when the token turns into its lane
	finishSteps = 56 // steps travelled when the token is home
	tokensPer   = 4
)

var startCells = map[game.Seat]int{
	game.Red:    0,
	game.Green:  13,
	game.Yellow: 26,
	game.Blue:   39,
}

var seatOrder = []game.Seat{game.Red, game.Green, game.Yellow, game.Blue}

type Engine struct{}

func New() *Engine { return &Engine{} }

func (Engine) Kind() game.Kind { return game.Ludo }

func (Engine) Seats(n int) ([]game.Seat, error) {
	if n < 2 || n > 4 {
		return nil, fmt.Errorf("ludo seats two to four players, got %d", n)
	}
	return append([]game.Seat(nil), seatOrder[:n]...), nil
}

// token progress: -1 in the yard, 0..50 on the ring, 51..55 in the home
// lane, 56 finished.
type token struct {
	Steps int `json:"steps"`
}

type state struct {
	Seats  []game.Seat           `json:"seats"`
	Tokens map[game.Seat][]token `json:"tokens"`
	Turn   game.Seat             `json:"turn"`
	Die    int                   `json:"die,omitempty"` // 0: a roll is due
	Seed   int64                 `json:"seed"`
	Rolls  int                   `json:"rolls"`
}

func (Engine) Initial(seats []game.Seat, seed int64) (json.RawMessage, error) {
	if len(seats) < 2 || len(seats) > 4 {
		return nil, fmt.Errorf("ludo needs two to four seats, got %d", len(seats))
	}
	st := state{
		Seats:  append([]game.Seat(nil), seats...),
		Tokens: make(map[game.Seat][]token, len(seats)),
		Turn:   seats[0],
		Seed:   seed,
	}
	for _, s := range seats {
		if _, ok := startCells[s]; !ok {
			return nil, fmt.Errorf("unknown ludo seat %q", s)
		}
		tks := make([]token, tokensPer)
		for i := range tks {
			tks[i].Steps = -1
		}
		st.Tokens[s] = tks
	}
	return json.Marshal(&st)
}

func decode(raw json.RawMessage) (*state, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("ludo state: %w", err)
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

// dieAt draws the n-th value of the session's dice stream.
func dieAt(seed int64, n int) int {
	r := rand.New(rand.NewSource(seed))
	d := 0
	for i := 0; i <= n; i++ {
		d = 1 + r.Intn(6)
	}
	return d
}

func absCell(seat game.Seat, steps int) int {
	return (startCells[seat] + steps) % ringCells
}

// tokenMoves lists the token moves the current die allows.
func tokenMoves(st *state) []game.Move {
	if st.Die == 0 {
		return nil
	}
	var out []game.Move
	for i, tk := range st.Tokens[st.Turn] {
		var dest int
		switch {
		case tk.Steps == -1:
			if st.Die != 6 {
				continue
			}
			dest = 0
		case tk.Steps >= finishSteps:
			continue
		case tk.Steps+st.Die > finishSteps:
			// overshooting the lane end is not allowed
			continue
		default:
			dest = tk.Steps + st.Die
		}
		out = append(out, game.Move{
			From: fmt.Sprintf("t%d", i),
			To:   fmt.Sprintf("%d", dest),
			Meta: game.Meta{Token: i, Die: st.Die},
		})
	}
	return out
}

func (e Engine) LegalMoves(raw json.RawMessage, seat game.Seat) ([]game.Move, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if st.Turn != seat || winner(st) != "" {
		return nil, nil
	}
	if st.Die == 0 {
		return []game.Move{{Meta: game.Meta{Roll: true}}}, nil
	}
	return tokenMoves(st), nil
}

func nextSeat(st *state) game.Seat {
	for i, s := range st.Seats {
		if s == st.Turn {
			return st.Seats[(i+1)%len(st.Seats)]
		}
	}
	return st.Seats[0]
}

func isSafeCell(cell int) bool {
	for _, c := range startCells {
		if c == cell {
			return true
		}
	}
	return false
}

func (e Engine) Apply(raw json.RawMessage, mv game.Move) (json.RawMessage, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if winner(st) != "" {
		return nil, fmt.Errorf("game already decided")
	}

	if mv.Meta.Roll {
		if st.Die != 0 {
			return nil, fmt.Errorf("die %d not yet spent", st.Die)
		}
		die := dieAt(st.Seed, st.Rolls)
		st.Rolls++
		st.Die = die
		if len(tokenMoves(st)) == 0 {
			// nothing to play: a six still keeps the turn for a fresh roll
			st.Die = 0
			if die != 6 {
				st.Turn = nextSeat(st)
			}
		}
		return json.Marshal(st)
	}

	if st.Die == 0 {
		return nil, fmt.Errorf("roll before moving")
	}
	if mv.Meta.Die != st.Die {
		return nil, fmt.Errorf("move spends die %d, rolled %d", mv.Meta.Die, st.Die)
	}
	var chosen *game.Move
	for _, legal := range tokenMoves(st) {
		if legal.Meta.Token == mv.Meta.Token {
			chosen = &legal
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("token %d cannot spend die %d", mv.Meta.Token, st.Die)
	}

	tks := st.Tokens[st.Turn]
	if tks[mv.Meta.Token].Steps == -1 {
		tks[mv.Meta.Token].Steps = 0
	} else {
		tks[mv.Meta.Token].Steps += st.Die
	}
	dest := tks[mv.Meta.Token].Steps

	// captures happen on shared ring cells, never on start cells or in
	// the lane
	if dest <= laneEntry-1 {
		cell := absCell(st.Turn, dest)
		if !isSafeCell(cell) {
			for seat, other := range st.Tokens {
				if seat == st.Turn {
					continue
				}
				for i := range other {
					if other[i].Steps >= 0 && other[i].Steps < laneEntry && absCell(seat, other[i].Steps) == cell {
						other[i].Steps = -1
					}
				}
			}
		}
	}

	bonus := st.Die == 6
	st.Die = 0
	if !bonus {
		st.Turn = nextSeat(st)
	}
	return json.Marshal(st)
}

func winner(st *state) game.Seat {
	for seat, tks := range st.Tokens {
		done := true
		for _, tk := range tks {
			if tk.Steps < finishSteps {
				done = false
				break
			}
		}
		if done {
			return seat
		}
	}
	return ""
}

func (Engine) Terminal(raw json.RawMessage) (*game.Outcome, error) {
	st, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if w := winner(st); w != "" {
		return &game.Outcome{Winner: w, Reason: "all_tokens_home"}, nil
	}
	return nil, nil
}
