// Package gateway exposes the command surface over HTTP and streams
// session state over websockets. It is the only mutation entry point;
// everything else goes through the session and matchmaking managers.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/matchmake"
	"github.com/stakeboard/arena/internal/obslog"
	"github.com/stakeboard/arena/internal/rating"
	"github.com/stakeboard/arena/internal/session"
	"github.com/stakeboard/arena/pkg/arenadto"
)

type Server struct {
	sessions *session.Manager
	queue    *matchmake.Manager

	difficulty   int
	clockInitial time.Duration

	srv *fasthttp.Server
}

type Option func(*Server)

// WithDefaultDifficulty sets the AI level used when a computer match
// request does not name one.
func WithDefaultDifficulty(n int) Option { return func(s *Server) { s.difficulty = n } }

// WithClockInitial sets the per-seat clock given to chess sessions
// created through this surface.
func WithClockInitial(d time.Duration) Option { return func(s *Server) { s.clockInitial = d } }

func NewServer(sessions *session.Manager, queue *matchmake.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:     sessions,
		queue:        queue,
		difficulty:   1,
		clockInitial: 10 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	s.srv = &fasthttp.Server{
		Handler:            s.route,
		Name:               "arena",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	obslog.L().Info("gateway_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	parts := splitPath(string(ctx.Path()))

	switch {
	case method == fasthttp.MethodPost && len(parts) == 1 && parts[0] == "sessions":
		s.handleCreateSession(ctx)
	case method == fasthttp.MethodGet && len(parts) == 2 && parts[0] == "sessions":
		s.handleGetSession(ctx, parts[1])
	case method == fasthttp.MethodPost && len(parts) == 3 && parts[0] == "sessions":
		s.handleSessionCommand(ctx, parts[1], parts[2])
	case method == fasthttp.MethodPost && len(parts) == 1 && parts[0] == "match":
		s.handleEnqueue(ctx)
	case method == fasthttp.MethodGet && len(parts) == 2 && parts[0] == "match":
		s.handleMatchStatus(ctx, parts[1])
	case method == fasthttp.MethodGet && len(parts) == 3 && parts[0] == "match" && parts[2] == "await":
		s.handleMatchAwait(ctx, parts[1])
	case method == fasthttp.MethodDelete && len(parts) == 2 && parts[0] == "match":
		s.handleCancel(ctx, parts[1])
	default:
		writeError(ctx, fasthttp.StatusNotFound, arenadto.ErrorResponse{Code: "NOT_FOUND", Message: "no such route"})
	}
}

// opCtx derives a plain bounded context for manager calls. RequestCtx
// itself must not cross into client libraries that poll Done: outside a
// running fasthttp server its Done panics.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func splitPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func (s *Server) handleCreateSession(ctx *fasthttp.RequestCtx) {
	var req arenadto.CreateSessionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "invalid json"})
		return
	}

	players := make([]session.Player, 0, len(req.Players)+1)
	for _, p := range req.Players {
		players = append(players, session.Player{ID: p.ID, Username: p.Username, Rating: p.Rating})
	}
	matchType := session.MatchType(req.MatchType)
	if matchType == "" {
		matchType = session.MatchCasual
	}
	if matchType == session.MatchComputer {
		diff := req.Difficulty
		if diff <= 0 {
			diff = s.difficulty
		}
		players = append(players, session.Player{
			ID: "cpu:" + uuid.NewString(), Username: "Computer",
			Rating: rating.Default, Bot: true, Difficulty: diff,
		})
	}

	mode := session.Mode(req.Mode)
	if mode == "" {
		mode = session.ModeDemo
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	kind := game.Kind(req.GameType)
	p := session.Params{
		Kind:      kind,
		Mode:      mode,
		MatchType: matchType,
		Stake:     req.Stake,
		Players:   players,
		Seed:      seed,
	}
	if kind == game.Chess {
		p.ClockInitial = s.clockInitial
	}

	c, cancel := opCtx()
	defer cancel()
	sess, err := s.sessions.Create(c, p)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, sessionView(sess))
}

func (s *Server) handleGetSession(ctx *fasthttp.RequestCtx, id string) {
	c, cancel := opCtx()
	defer cancel()
	sess, err := s.sessions.Get(c, id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sessionView(sess))
}

func (s *Server) handleSessionCommand(ctx *fasthttp.RequestCtx, id, cmd string) {
	switch cmd {
	case "move":
		s.handleMove(ctx, id)
	case "draw":
		s.handleOffer(ctx, id, session.OfferDrawKind)
	case "undo":
		s.handleOffer(ctx, id, session.OfferUndoKind)
	case "resign":
		s.handleResign(ctx, id)
	default:
		writeError(ctx, fasthttp.StatusNotFound, arenadto.ErrorResponse{Code: "NOT_FOUND", Message: "no such command"})
	}
}

// seatFor resolves the acting player's seat from the current document.
func (s *Server) seatFor(ctx context.Context, id, playerID string) (game.Seat, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", err
	}
	seat := sess.SeatOf(playerID)
	if seat == "" {
		return "", session.ErrNotParticipant
	}
	return seat, nil
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx, id string) {
	var req arenadto.MoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "invalid json"})
		return
	}
	c, cancel := opCtx()
	defer cancel()
	seat, err := s.seatFor(c, id, req.PlayerID)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	sess, err := s.sessions.SubmitMove(c, id, seat, moveFromRequest(&req))
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sessionView(sess))
}

func (s *Server) handleOffer(ctx *fasthttp.RequestCtx, id string, kind session.OfferKind) {
	var req arenadto.OfferRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "invalid json"})
		return
	}
	c, cancel := opCtx()
	defer cancel()
	seat, err := s.seatFor(c, id, req.PlayerID)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}

	var sess *session.Session
	switch req.Action {
	case "offer":
		if kind == session.OfferDrawKind {
			sess, err = s.sessions.OfferDraw(c, id, seat)
		} else {
			sess, err = s.sessions.RequestUndo(c, id, seat)
		}
	case "accept", "decline":
		accept := req.Action == "accept"
		if kind == session.OfferDrawKind {
			sess, err = s.sessions.RespondDraw(c, id, seat, accept)
		} else {
			sess, err = s.sessions.RespondUndo(c, id, seat, accept)
		}
	default:
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "action must be offer, accept or decline"})
		return
	}
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sessionView(sess))
}

func (s *Server) handleResign(ctx *fasthttp.RequestCtx, id string) {
	var req arenadto.ResignRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "invalid json"})
		return
	}
	c, cancel := opCtx()
	defer cancel()
	seat, err := s.seatFor(c, id, req.PlayerID)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	sess, err := s.sessions.Resign(c, id, seat)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sessionView(sess))
}

func (s *Server) handleEnqueue(ctx *fasthttp.RequestCtx) {
	var req arenadto.MatchRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "invalid json"})
		return
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		writeError(ctx, fasthttp.StatusBadRequest, arenadto.ErrorResponse{Code: "BAD_REQUEST", Message: "player_id is required"})
		return
	}
	c, cancel := opCtx()
	defer cancel()
	r, err := s.queue.Enqueue(c, matchmake.Request{
		PlayerID: req.PlayerID,
		Username: req.Username,
		Rating:   req.Rating,
		GameType: game.Kind(req.GameType),
		Stake:    req.Stake,
	})
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	status := fasthttp.StatusAccepted
	if r.Status == matchmake.StatusMatched {
		status = fasthttp.StatusCreated
	}
	writeJSON(ctx, status, matchView(r))
}

func (s *Server) handleMatchStatus(ctx *fasthttp.RequestCtx, id string) {
	c, cancel := opCtx()
	defer cancel()
	r, err := s.queue.Get(c, id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchView(r))
}

// handleMatchAwait long-polls until the request is matched or
// cancelled, bounded by a fixed deadline.
func (s *Server) handleMatchAwait(ctx *fasthttp.RequestCtx, id string) {
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r, err := s.queue.Await(waitCtx, id)
	if err != nil {
		if waitCtx.Err() != nil {
			writeError(ctx, fasthttp.StatusRequestTimeout, arenadto.ErrorResponse{Code: "AWAIT_TIMEOUT", Message: "no match yet"})
			return
		}
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchView(r))
}

func (s *Server) handleCancel(ctx *fasthttp.RequestCtx, id string) {
	c, cancel := opCtx()
	defer cancel()
	r, err := s.queue.Cancel(c, id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchView(r))
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	payload, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(payload)
}

func writeError(ctx *fasthttp.RequestCtx, status int, e arenadto.ErrorResponse) {
	writeJSON(ctx, status, e)
}

func writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	status, e := errorStatus(err)
	if status >= fasthttp.StatusInternalServerError {
		obslog.L().Error("gateway_error", zap.Error(err))
	}
	writeError(ctx, status, e)
}
