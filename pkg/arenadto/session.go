package arenadto

import (
	"encoding/json"
	"time"
)

// PlayerView is one seated player as shown to clients.
type PlayerView struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Rating     int    `json:"rating"`
	Bot        bool   `json:"bot,omitempty"`
	Difficulty int    `json:"difficulty,omitempty"`
}

// OfferView is the single outstanding draw or undo proposal.
type OfferView struct {
	Kind      string    `json:"kind"`
	Proposer  string    `json:"proposer"`
	CreatedAt time.Time `json:"created_at"`
}

// MoveView is one recorded ply.
type MoveView struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Roll      bool   `json:"roll,omitempty"`
	Token     int    `json:"token,omitempty"`
	Die       int    `json:"die,omitempty"`
}

// SessionView is the full session state streamed to clients. Clients
// replace their local copy wholesale on every message.
type SessionView struct {
	ID        string `json:"id"`
	GameType  string `json:"game_type"`
	Mode      string `json:"mode"`
	MatchType string `json:"match_type"`
	Stake     int64  `json:"stake"`

	Seats   []string              `json:"seats"`
	Players map[string]PlayerView `json:"players"`

	Board json.RawMessage `json:"board"`
	Turn  string          `json:"turn"`
	Moves []MoveView      `json:"moves"`

	Clocks        map[string]int64 `json:"clocks,omitempty"`
	TurnStartedAt time.Time        `json:"turn_started_at"`

	PendingOffer *OfferView `json:"pending_offer,omitempty"`

	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
	Reason string `json:"reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
