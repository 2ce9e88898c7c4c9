package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stakeboard/arena/internal/game"
)

// Mode separates throwaway local games from stake-bearing live ones.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

type MatchType string

const (
	MatchRanked     MatchType = "ranked"
	MatchTournament MatchType = "tournament"
	MatchCasual     MatchType = "casual"
	MatchComputer   MatchType = "computer"
)

// Status is the session lifecycle state. Sessions are only created once
// every seat is filled, so they start ACTIVE.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// Player occupies one seat.
type Player struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Rating     int    `json:"rating"`
	Bot        bool   `json:"bot,omitempty"`
	Difficulty int    `json:"difficulty,omitempty"`
}

type OfferKind string

const (
	OfferDrawKind OfferKind = "draw"
	OfferUndoKind OfferKind = "undo"
)

// Offer is the single outstanding draw or undo proposal.
type Offer struct {
	Kind      OfferKind `json:"kind"`
	Proposer  game.Seat `json:"proposer"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the authoritative state of one match, stored as a single
// JSON document in Redis and mutated only through Manager.
type Session struct {
	ID        string    `json:"id"`
	GameType  game.Kind `json:"game_type"`
	Mode      Mode      `json:"mode"`
	MatchType MatchType `json:"match_type"`
	Stake     int64     `json:"stake"`

	Seats   []game.Seat           `json:"seats"`
	Players map[game.Seat]*Player `json:"players"`
	Seed    int64                 `json:"seed"`

	Board json.RawMessage `json:"board"`
	Turn  game.Seat       `json:"turn"`
	Moves []game.Move     `json:"moves"`

	// Clocks holds remaining milliseconds per seat (chess only). The
	// running side's clock is authoritative as of TurnStartedAt.
	Clocks        map[game.Seat]int64 `json:"clocks,omitempty"`
	TurnStartedAt time.Time           `json:"turn_started_at"`

	PendingOffer *Offer `json:"pending_offer,omitempty"`

	Status Status    `json:"status"`
	Winner game.Seat `json:"winner,omitempty"`
	Draw   bool      `json:"draw,omitempty"`
	Reason string    `json:"reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the session reached a terminal state.
func (s *Session) Completed() bool { return s.Status == StatusCompleted }

// SeatOf returns the seat a player occupies, or "".
func (s *Session) SeatOf(playerID string) game.Seat {
	for seat, p := range s.Players {
		if p != nil && p.ID == playerID {
			return seat
		}
	}
	return ""
}

// NextSeat returns the seat after the given one in play order.
func (s *Session) NextSeat(seat game.Seat) game.Seat {
	for i, sd := range s.Seats {
		if sd == seat {
			return s.Seats[(i+1)%len(s.Seats)]
		}
	}
	return s.Seats[0]
}

// Key is the Redis key of a session document.
func Key(id string) string { return "arena:session:" + strings.TrimSpace(id) }

// Params describes a session to create. Players are given in seat order;
// the first entry takes the game's first seat.
type Params struct {
	ID           string
	Kind         game.Kind
	Mode         Mode
	MatchType    MatchType
	Stake        int64
	Players      []Player
	Seed         int64
	ClockInitial time.Duration // >0 enables per-seat clocks (chess)
}

// New builds a fresh session document; it performs no I/O.
func New(reg *game.Registry, p Params) (*Session, error) {
	eng, ok := reg.Get(p.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown game type %q", p.Kind)
	}
	seats, err := eng.Seats(len(p.Players))
	if err != nil {
		return nil, err
	}
	board, err := eng.Initial(seats, p.Seed)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		ID:            p.ID,
		GameType:      p.Kind,
		Mode:          p.Mode,
		MatchType:     p.MatchType,
		Stake:         p.Stake,
		Seats:         seats,
		Players:       make(map[game.Seat]*Player, len(p.Players)),
		Seed:          p.Seed,
		Board:         board,
		Turn:          seats[0],
		Moves:         []game.Move{},
		TurnStartedAt: now,
		Status:        StatusActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range p.Players {
		pl := p.Players[i]
		s.Players[seats[i]] = &pl
	}
	if p.ClockInitial > 0 {
		s.Clocks = make(map[game.Seat]int64, len(seats))
		for _, seat := range seats {
			s.Clocks[seat] = p.ClockInitial.Milliseconds()
		}
	}
	return s, nil
}

// Record is the immutable terminal document handed to the archiver once
// a session completes.
type Record struct {
	SessionID  string                `json:"session_id"`
	GameType   game.Kind             `json:"game_type"`
	Mode       Mode                  `json:"mode"`
	MatchType  MatchType             `json:"match_type"`
	Stake      int64                 `json:"stake"`
	Players    map[game.Seat]*Player `json:"players"`
	Winner     game.Seat             `json:"winner,omitempty"`
	Draw       bool                  `json:"draw,omitempty"`
	Reason     string                `json:"reason"`
	Moves      []game.Move           `json:"moves"`
	FinalBoard json.RawMessage       `json:"final_board"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    time.Time             `json:"ended_at"`
}

// RatingUpdate is one player's rating adjustment after a match.
type RatingUpdate struct {
	PlayerID  string
	Result    string // win|loss|draw
	OldRating int
	NewRating int
}

// Archiver persists terminal records and rating updates. Delivery is
// fire-and-forget from the session's perspective.
type Archiver interface {
	SaveResult(ctx context.Context, rec *Record) error
	UpdateRating(ctx context.Context, up RatingUpdate) error
}
