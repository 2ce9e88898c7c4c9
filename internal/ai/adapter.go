// Package ai picks moves for computer-controlled seats. It only ever
// proposes moves from the engine's legal set; the session re-validates
// its output exactly like a human submission.
package ai

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/stakeboard/arena/internal/game"
)

// Adapter produces moves for a seat at a given difficulty.
//
// Difficulty 0 is fully deterministic: the first legal move in
// lexicographic (from, to) order. Difficulty 1 greedily minimizes the
// opponent's mobility one ply ahead. Difficulty 2 and up does the same
// but breaks score ties with a PRNG seeded at construction, so runs are
// reproducible for a fixed seed.
type Adapter struct {
	reg *game.Registry

	mu  sync.Mutex // rand.Rand is not safe for concurrent sessions
	rng *rand.Rand
}

func New(reg *game.Registry, seed int64) *Adapter {
	return &Adapter{reg: reg, rng: rand.New(rand.NewSource(seed))}
}

func key(mv game.Move) string {
	return fmt.Sprintf("%s|%s|%s|%v|%02d|%02d",
		mv.From, mv.To, mv.Meta.Promotion, mv.Meta.Roll, mv.Meta.Token, mv.Meta.Die)
}

// NextMove returns a legal move for seat, or an error when none exists.
func (a *Adapter) NextMove(kind game.Kind, state json.RawMessage, seat game.Seat, difficulty int) (game.Move, error) {
	eng, ok := a.reg.Get(kind)
	if !ok {
		return game.Move{}, fmt.Errorf("no engine for %q", kind)
	}
	legal, err := eng.LegalMoves(state, seat)
	if err != nil {
		return game.Move{}, err
	}
	if len(legal) == 0 {
		return game.Move{}, fmt.Errorf("no legal move for %s", seat)
	}
	sort.Slice(legal, func(i, j int) bool { return key(legal[i]) < key(legal[j]) })
	if difficulty <= 0 || len(legal) == 1 {
		return legal[0], nil
	}

	best := []game.Move{legal[0]}
	bestScore := a.score(eng, state, seat, legal[0])
	for _, mv := range legal[1:] {
		s := a.score(eng, state, seat, mv)
		switch {
		case s > bestScore:
			bestScore = s
			best = []game.Move{mv}
		case s == bestScore:
			best = append(best, mv)
		}
	}
	if difficulty == 1 || len(best) == 1 {
		return best[0], nil
	}
	a.mu.Lock()
	pick := a.rng.Intn(len(best))
	a.mu.Unlock()
	return best[pick], nil
}

// score evaluates a move one ply deep: winning now dominates, then
// restricting the opponent's replies.
func (a *Adapter) score(eng game.Engine, state json.RawMessage, seat game.Seat, mv game.Move) int {
	next, err := eng.Apply(state, mv)
	if err != nil {
		return -1 << 30
	}
	if out, err := eng.Terminal(next); err == nil && out != nil {
		if out.Winner == seat {
			return 1 << 20
		}
		if out.Draw {
			return 0
		}
		return -(1 << 20)
	}
	turn, err := eng.Turn(next)
	if err != nil {
		return 0
	}
	replies, err := eng.LegalMoves(next, turn)
	if err != nil {
		return 0
	}
	if turn == seat {
		// kept the move (multi-jump chain, bonus roll): more options is
		// better
		return len(replies)
	}
	return -len(replies)
}
