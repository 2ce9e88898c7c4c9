package session

// Typed rejections. Every failed operation returns one of these and
// leaves the session document untouched.
var (
	ErrNotFound         = errf("session not found")
	ErrIllegalMove      = errf("illegal move")
	ErrNotYourTurn      = errf("not your turn")
	ErrNotParticipant   = errf("player is not seated in this session")
	ErrOfferPending     = errf("an offer is already pending")
	ErrNoOffer          = errf("no matching offer to respond to")
	ErrOfferUnsupported = errf("offer not supported for this game")
	ErrGameOver         = errf("game already over")
	ErrNothingToUndo    = errf("no move to undo")
	ErrAlreadyExists    = errf("session already exists")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
