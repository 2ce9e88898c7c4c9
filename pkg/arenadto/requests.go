package arenadto

// PlayerSpec names one human seat when creating a session directly.
type PlayerSpec struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// CreateSessionRequest starts a demo or computer session without going
// through the matchmaking queue.
type CreateSessionRequest struct {
	GameType   string       `json:"game_type"`
	Mode       string       `json:"mode"`
	MatchType  string       `json:"match_type"`
	Stake      int64        `json:"stake"`
	Players    []PlayerSpec `json:"players"`
	Difficulty int          `json:"difficulty,omitempty"`
	Seed       int64        `json:"seed,omitempty"`
}

// MoveRequest submits one move for the seated player.
type MoveRequest struct {
	PlayerID  string `json:"player_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Roll      bool   `json:"roll,omitempty"`
	Token     int    `json:"token,omitempty"`
	Die       int    `json:"die,omitempty"`
}

// OfferRequest drives the draw and undo protocol. Action is one of
// offer, accept or decline.
type OfferRequest struct {
	PlayerID string `json:"player_id"`
	Action   string `json:"action"`
}

// ResignRequest ends the game in the opponent's favor.
type ResignRequest struct {
	PlayerID string `json:"player_id"`
}

// MatchRequest queues a player for nearest-rating pairing.
type MatchRequest struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	GameType string `json:"game_type"`
	Stake    int64  `json:"stake"`
}

// MatchResponse reports the queue outcome; SessionID is set once the
// request status is MATCHED.
type MatchResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}
