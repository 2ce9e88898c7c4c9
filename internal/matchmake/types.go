package matchmake

import (
	"fmt"
	"time"

	"github.com/stakeboard/arena/internal/game"
)

// RequestStatus is the lifecycle of one queued matchmaking request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusMatched   RequestStatus = "MATCHED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Request is one player waiting in a (gameType, stake) bucket. It is
// stored as JSON under its own key; the bucket set holds only ids.
type Request struct {
	ID       string    `json:"id"`
	PlayerID string    `json:"player_id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
	GameType game.Kind `json:"game_type"`
	Stake    int64     `json:"stake"`

	Status    RequestStatus `json:"status"`
	SessionID string        `json:"session_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Pending reports whether the request is still waiting for a partner.
func (r *Request) Pending() bool { return r.Status == StatusPending }

// ReqKey is the Redis key of a request document.
func ReqKey(id string) string { return "arena:mm:req:" + id }

// BucketKey is the set of pending request ids for one queue bucket.
func BucketKey(kind game.Kind, stake int64) string {
	return fmt.Sprintf("arena:mm:bucket:%s:%d", kind, stake)
}

// Channel carries status changes for one request (matched, cancelled).
func Channel(id string) string { return "arena:mm:events:" + id }

var (
	ErrRequestNotFound = errf("matchmaking request not found")
	ErrAlreadyMatched  = errf("request already matched")
	ErrAlreadyQueued   = errf("player already queued in this bucket")
	ErrCancelled       = errf("request was cancelled")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
