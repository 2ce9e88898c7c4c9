package gateway

import (
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/matchmake"
	"github.com/stakeboard/arena/internal/session"
	"github.com/stakeboard/arena/pkg/arenadto"
)

// sessionView converts the authoritative document into its wire shape.
func sessionView(s *session.Session) *arenadto.SessionView {
	v := &arenadto.SessionView{
		ID:            s.ID,
		GameType:      string(s.GameType),
		Mode:          string(s.Mode),
		MatchType:     string(s.MatchType),
		Stake:         s.Stake,
		Seats:         make([]string, 0, len(s.Seats)),
		Players:       make(map[string]arenadto.PlayerView, len(s.Players)),
		Board:         s.Board,
		Turn:          string(s.Turn),
		Moves:         make([]arenadto.MoveView, 0, len(s.Moves)),
		TurnStartedAt: s.TurnStartedAt,
		Status:        string(s.Status),
		Winner:        string(s.Winner),
		Draw:          s.Draw,
		Reason:        s.Reason,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	for _, seat := range s.Seats {
		v.Seats = append(v.Seats, string(seat))
	}
	for seat, p := range s.Players {
		if p == nil {
			continue
		}
		v.Players[string(seat)] = arenadto.PlayerView{
			ID: p.ID, Username: p.Username, Rating: p.Rating,
			Bot: p.Bot, Difficulty: p.Difficulty,
		}
	}
	for _, mv := range s.Moves {
		v.Moves = append(v.Moves, moveView(mv))
	}
	if s.Clocks != nil {
		v.Clocks = make(map[string]int64, len(s.Clocks))
		for seat, ms := range s.Clocks {
			v.Clocks[string(seat)] = ms
		}
	}
	if s.PendingOffer != nil {
		v.PendingOffer = &arenadto.OfferView{
			Kind:      string(s.PendingOffer.Kind),
			Proposer:  string(s.PendingOffer.Proposer),
			CreatedAt: s.PendingOffer.CreatedAt,
		}
	}
	return v
}

func moveView(mv game.Move) arenadto.MoveView {
	return arenadto.MoveView{
		From: mv.From, To: mv.To, Promotion: mv.Meta.Promotion,
		Roll: mv.Meta.Roll, Token: mv.Meta.Token, Die: mv.Meta.Die,
	}
}

func moveFromRequest(r *arenadto.MoveRequest) game.Move {
	return game.Move{
		From: r.From,
		To:   r.To,
		Meta: game.Meta{Promotion: r.Promotion, Roll: r.Roll, Token: r.Token, Die: r.Die},
	}
}

func matchView(r *matchmake.Request) *arenadto.MatchResponse {
	return &arenadto.MatchResponse{
		RequestID: r.ID,
		Status:    string(r.Status),
		SessionID: r.SessionID,
	}
}

// errorStatus maps a domain error to an HTTP status and wire code.
func errorStatus(err error) (int, arenadto.ErrorResponse) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return fasthttp.StatusNotFound, arenadto.ErrorResponse{Code: "SESSION_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, matchmake.ErrRequestNotFound):
		return fasthttp.StatusNotFound, arenadto.ErrorResponse{Code: "REQUEST_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, session.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity, arenadto.ErrorResponse{Code: "ILLEGAL_MOVE", Message: err.Error()}
	case errors.Is(err, session.ErrNotYourTurn):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "NOT_YOUR_TURN", Message: err.Error()}
	case errors.Is(err, session.ErrNotParticipant):
		return fasthttp.StatusForbidden, arenadto.ErrorResponse{Code: "NOT_PARTICIPANT", Message: err.Error()}
	case errors.Is(err, session.ErrOfferPending):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "OFFER_PENDING", Message: err.Error()}
	case errors.Is(err, session.ErrNoOffer):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "NO_OFFER", Message: err.Error()}
	case errors.Is(err, session.ErrOfferUnsupported):
		return fasthttp.StatusUnprocessableEntity, arenadto.ErrorResponse{Code: "OFFER_UNSUPPORTED", Message: err.Error()}
	case errors.Is(err, session.ErrGameOver):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "GAME_ALREADY_OVER", Message: err.Error()}
	case errors.Is(err, session.ErrNothingToUndo):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "NOTHING_TO_UNDO", Message: err.Error()}
	case errors.Is(err, session.ErrAlreadyExists):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "SESSION_EXISTS", Message: err.Error()}
	case errors.Is(err, matchmake.ErrAlreadyMatched):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "ALREADY_MATCHED", Message: err.Error()}
	case errors.Is(err, matchmake.ErrAlreadyQueued):
		return fasthttp.StatusConflict, arenadto.ErrorResponse{Code: "ALREADY_QUEUED", Message: err.Error()}
	case errors.Is(err, matchmake.ErrCancelled):
		return fasthttp.StatusGone, arenadto.ErrorResponse{Code: "REQUEST_CANCELLED", Message: err.Error()}
	default:
		return fasthttp.StatusInternalServerError, arenadto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	}
}
