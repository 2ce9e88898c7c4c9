package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stakeboard/arena/internal/ai"
	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/obslog"
	"github.com/stakeboard/arena/internal/rating"
)

// errNoop aborts a mutation without treating it as a failure.
var errNoop = errf("noop")

// Manager owns every session document. All mutations run under a Redis
// WATCH transaction on the session key, so each session has exactly one
// effective writer at a time; rejected operations never touch the stored
// bytes.
type Manager struct {
	rdb  *redis.Client
	reg  *game.Registry
	bot  *ai.Adapter
	arch Archiver
	pub  *Publisher
	ttl  time.Duration
}

type Option func(*Manager)

// WithArchiver wires terminal-record and rating persistence.
func WithArchiver(a Archiver) Option { return func(m *Manager) { m.arch = a } }

// WithAI wires the adapter that plays computer-controlled seats.
func WithAI(a *ai.Adapter) Option { return func(m *Manager) { m.bot = a } }

// WithTTL overrides how long finished and idle sessions stay in Redis.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

func NewManager(rdb *redis.Client, reg *game.Registry, opts ...Option) *Manager {
	m := &Manager{rdb: rdb, reg: reg, ttl: 24 * time.Hour}
	m.pub = NewPublisher(rdb)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Publisher exposes the sync channel for subscribers (gateway, tests).
func (m *Manager) Publisher() *Publisher { return m.pub }

// Create stores a new session document and announces it.
func (m *Manager) Create(ctx context.Context, p Params) (*Session, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s, err := New(m.reg, p)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	ok, err := m.rdb.SetNX(ctx, Key(s.ID), raw, m.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyExists
	}
	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("game_type", string(s.GameType)),
		zap.String("match_type", string(s.MatchType)),
		zap.Int64("stake", s.Stake),
	)
	m.afterMutation(ctx, s, false)
	return s, nil
}

// Get loads the current session document.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := m.rdb.Get(ctx, Key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// mutate runs fn against the current document under WATCH and commits
// the result. fn errors abort without writing; concurrent writers force
// a reload-and-retry, which serializes all mutations per session.
func (m *Manager) mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := Key(id)
	for {
		var out *Session
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var cur Session
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
			if err := fn(&cur); err != nil {
				return err
			}
			cur.Version++
			cur.UpdatedAt = time.Now()
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, m.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (m *Manager) engine(kind game.Kind) (game.Engine, error) {
	eng, ok := m.reg.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no engine for %q", kind)
	}
	return eng, nil
}

func complete(cur *Session, winner game.Seat, draw bool, reason string) {
	cur.Status = StatusCompleted
	cur.Winner = winner
	cur.Draw = draw
	cur.Reason = reason
	cur.PendingOffer = nil
}

// SubmitMove validates and applies one move for seat. AI moves come in
// through this same path and get no special treatment.
func (m *Manager) SubmitMove(ctx context.Context, id string, seat game.Seat, mv game.Move) (*Session, error) {
	// a dead clock completes the game before the move is considered
	if _, _, err := m.ForfeitOnTime(ctx, id); err != nil {
		return nil, err
	}

	completedNow := false
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		completedNow = false
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		if cur.Turn != seat {
			return ErrNotYourTurn
		}
		eng, err := m.engine(cur.GameType)
		if err != nil {
			return err
		}
		next, err := eng.Apply(cur.Board, mv)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
		cur.PendingOffer = nil
		now := time.Now()
		if cur.Clocks != nil {
			rem := cur.Clocks[seat] - now.Sub(cur.TurnStartedAt).Milliseconds()
			if rem < 0 {
				rem = 0
			}
			cur.Clocks[seat] = rem
		}
		cur.TurnStartedAt = now
		cur.Board = next
		cur.Moves = append(cur.Moves, mv)
		turn, err := eng.Turn(next)
		if err != nil {
			return err
		}
		cur.Turn = turn
		out, err := eng.Terminal(next)
		if err != nil {
			return err
		}
		if out != nil {
			complete(cur, out.Winner, out.Draw, out.Reason)
			completedNow = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_move",
		zap.String("session_id", s.ID),
		zap.String("seat", string(seat)),
		zap.String("move", mv.String()),
		zap.Int("ply", len(s.Moves)),
		zap.String("status", string(s.Status)),
	)
	m.afterMutation(ctx, s, completedNow)
	return s, nil
}

// OfferDraw records a draw proposal. At most one offer of any kind may
// be outstanding.
func (m *Manager) OfferDraw(ctx context.Context, id string, seat game.Seat) (*Session, error) {
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		if cur.GameType == game.Ludo {
			// ludo has no draw result
			return ErrOfferUnsupported
		}
		if cur.PendingOffer != nil {
			return ErrOfferPending
		}
		cur.PendingOffer = &Offer{Kind: OfferDrawKind, Proposer: seat, CreatedAt: time.Now()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_offer_draw", zap.String("session_id", s.ID), zap.String("seat", string(seat)))
	m.afterMutation(ctx, s, false)
	return s, nil
}

// RespondDraw resolves a pending draw offer. Accepting completes the
// session as a draw by agreement.
func (m *Manager) RespondDraw(ctx context.Context, id string, seat game.Seat, accept bool) (*Session, error) {
	completedNow := false
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		completedNow = false
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		if cur.PendingOffer == nil || cur.PendingOffer.Kind != OfferDrawKind || cur.PendingOffer.Proposer == seat {
			return ErrNoOffer
		}
		if accept {
			complete(cur, "", true, "draw_agreed")
			completedNow = true
		} else {
			cur.PendingOffer = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_respond_draw",
		zap.String("session_id", s.ID), zap.String("seat", string(seat)), zap.Bool("accept", accept))
	m.afterMutation(ctx, s, completedNow)
	return s, nil
}

// RequestUndo asks to take back the last move. Against a computer
// opponent the request is granted immediately and rolls back the bot's
// reply as well.
func (m *Manager) RequestUndo(ctx context.Context, id string, seat game.Seat) (*Session, error) {
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		if len(cur.Moves) == 0 {
			return ErrNothingToUndo
		}
		if cur.MatchType == MatchComputer {
			return m.rollback(cur, 2)
		}
		if cur.PendingOffer != nil {
			return ErrOfferPending
		}
		cur.PendingOffer = &Offer{Kind: OfferUndoKind, Proposer: seat, CreatedAt: time.Now()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_request_undo", zap.String("session_id", s.ID), zap.String("seat", string(seat)))
	m.afterMutation(ctx, s, false)
	return s, nil
}

// RespondUndo resolves a pending undo offer. Accepting replays the
// recorded history minus the last move from the initial position; the
// board is never edited in place.
func (m *Manager) RespondUndo(ctx context.Context, id string, seat game.Seat, accept bool) (*Session, error) {
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		if cur.PendingOffer == nil || cur.PendingOffer.Kind != OfferUndoKind || cur.PendingOffer.Proposer == seat {
			return ErrNoOffer
		}
		if !accept {
			cur.PendingOffer = nil
			return nil
		}
		return m.rollback(cur, 1)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_respond_undo",
		zap.String("session_id", s.ID), zap.String("seat", string(seat)), zap.Bool("accept", accept))
	m.afterMutation(ctx, s, false)
	return s, nil
}

// rollback rewinds k plies by replaying the shortened history.
func (m *Manager) rollback(cur *Session, k int) error {
	if k > len(cur.Moves) {
		k = len(cur.Moves)
	}
	if k == 0 {
		return ErrNothingToUndo
	}
	eng, err := m.engine(cur.GameType)
	if err != nil {
		return err
	}
	keep := cur.Moves[:len(cur.Moves)-k]
	board, err := eng.Initial(cur.Seats, cur.Seed)
	if err != nil {
		return err
	}
	for i, mv := range keep {
		if board, err = eng.Apply(board, mv); err != nil {
			return fmt.Errorf("replay ply %d: %w", i, err)
		}
	}
	turn, err := eng.Turn(board)
	if err != nil {
		return err
	}
	cur.Board = board
	cur.Moves = keep
	cur.Turn = turn
	cur.PendingOffer = nil
	cur.TurnStartedAt = time.Now()
	return nil
}

// Resign completes the session in the opponent's favor, regardless of
// whose turn it is.
func (m *Manager) Resign(ctx context.Context, id string, seat game.Seat) (*Session, error) {
	completedNow := false
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		completedNow = false
		if cur.Completed() {
			return ErrGameOver
		}
		if cur.Players[seat] == nil {
			return ErrNotParticipant
		}
		complete(cur, cur.NextSeat(seat), false, "resignation")
		completedNow = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_resign",
		zap.String("session_id", s.ID), zap.String("seat", string(seat)), zap.String("winner", string(s.Winner)))
	m.afterMutation(ctx, s, completedNow)
	return s, nil
}

// ForfeitOnTime completes the session against the side to move when its
// clock has run out. It is a no-op for games without clocks or while
// time remains; callers may run it on a ticker.
func (m *Manager) ForfeitOnTime(ctx context.Context, id string) (*Session, bool, error) {
	forfeited := false
	s, err := m.mutate(ctx, id, func(cur *Session) error {
		forfeited = false
		if cur.Completed() || cur.Clocks == nil {
			return errNoop
		}
		rem := cur.Clocks[cur.Turn] - time.Since(cur.TurnStartedAt).Milliseconds()
		if rem > 0 {
			return errNoop
		}
		cur.Clocks[cur.Turn] = 0
		complete(cur, cur.NextSeat(cur.Turn), false, "timeout")
		forfeited = true
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	obslog.L().Info("session_timeout",
		zap.String("session_id", s.ID), zap.String("winner", string(s.Winner)))
	m.afterMutation(ctx, s, forfeited)
	return s, forfeited, nil
}

// afterMutation publishes the accepted state and runs completion and AI
// follow-ups off the critical path.
func (m *Manager) afterMutation(ctx context.Context, s *Session, completedNow bool) {
	if err := m.pub.Publish(ctx, s); err != nil {
		obslog.L().Warn("session_publish_error", zap.String("session_id", s.ID), zap.Error(err))
	}
	if completedNow {
		go m.archive(s)
	}
	if !s.Completed() && m.bot != nil {
		if p := s.Players[s.Turn]; p != nil && p.Bot {
			go m.playBot(s.ID)
		}
	}
}

// playBot computes one reply for a computer-controlled seat and submits
// it through the normal move path. If the session completed or changed
// underneath it, the submission is rejected and dropped.
func (m *Manager) playBot(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := m.Get(ctx, id)
	if err != nil || s.Completed() {
		return
	}
	p := s.Players[s.Turn]
	if p == nil || !p.Bot {
		return
	}
	mv, err := m.bot.NextMove(s.GameType, s.Board, s.Turn, p.Difficulty)
	if err != nil {
		obslog.L().Warn("ai_move_error", zap.String("session_id", id), zap.Error(err))
		return
	}
	if _, err := m.SubmitMove(ctx, id, s.Turn, mv); err != nil {
		if errors.Is(err, ErrGameOver) || errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrIllegalMove) {
			obslog.L().Debug("ai_move_discarded", zap.String("session_id", id), zap.Error(err))
			return
		}
		obslog.L().Warn("ai_move_submit_error", zap.String("session_id", id), zap.Error(err))
	}
}

// archive emits the terminal record and rating updates exactly once,
// from the mutation that completed the session. Failures are logged;
// the collaborator owns retries.
func (m *Manager) archive(s *Session) {
	if m.arch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := &Record{
		SessionID:  s.ID,
		GameType:   s.GameType,
		Mode:       s.Mode,
		MatchType:  s.MatchType,
		Stake:      s.Stake,
		Players:    s.Players,
		Winner:     s.Winner,
		Draw:       s.Draw,
		Reason:     s.Reason,
		Moves:      s.Moves,
		FinalBoard: s.Board,
		StartedAt:  s.CreatedAt,
		EndedAt:    s.UpdatedAt,
	}
	if err := m.arch.SaveResult(ctx, rec); err != nil {
		obslog.L().Error("session_archive_error", zap.String("session_id", s.ID), zap.Error(err))
	}
	for _, up := range ratingUpdates(s) {
		if err := m.arch.UpdateRating(ctx, up); err != nil {
			obslog.L().Error("session_rating_error",
				zap.String("session_id", s.ID), zap.String("player_id", up.PlayerID), zap.Error(err))
		}
	}
}

// ratingUpdates computes Elo adjustments for the human players of a
// completed rated match.
func ratingUpdates(s *Session) []RatingUpdate {
	if s.Mode != ModeLive {
		return nil
	}
	if s.MatchType != MatchRanked && s.MatchType != MatchTournament {
		return nil
	}

	if s.Draw {
		if len(s.Seats) != 2 {
			return nil
		}
		a, b := s.Players[s.Seats[0]], s.Players[s.Seats[1]]
		if a == nil || b == nil {
			return nil
		}
		var ups []RatingUpdate
		if !a.Bot {
			d := rating.Delta(a.Rating, b.Rating, rating.Draw)
			ups = append(ups, RatingUpdate{PlayerID: a.ID, Result: "draw", OldRating: a.Rating, NewRating: rating.Apply(a.Rating, d)})
		}
		if !b.Bot {
			d := rating.Delta(b.Rating, a.Rating, rating.Draw)
			ups = append(ups, RatingUpdate{PlayerID: b.ID, Result: "draw", OldRating: b.Rating, NewRating: rating.Apply(b.Rating, d)})
		}
		return ups
	}

	w := s.Players[s.Winner]
	if w == nil {
		return nil
	}
	var ups []RatingUpdate
	sum, n := 0, 0
	for _, seat := range s.Seats {
		p := s.Players[seat]
		if seat == s.Winner || p == nil {
			continue
		}
		if !p.Bot {
			d := rating.Delta(p.Rating, w.Rating, rating.Loss)
			ups = append(ups, RatingUpdate{PlayerID: p.ID, Result: "loss", OldRating: p.Rating, NewRating: rating.Apply(p.Rating, d)})
		}
		sum += rating.Delta(w.Rating, p.Rating, rating.Win)
		n++
	}
	if !w.Bot && n > 0 {
		ups = append(ups, RatingUpdate{PlayerID: w.ID, Result: "win", OldRating: w.Rating, NewRating: rating.Apply(w.Rating, sum/n)})
	}
	return ups
}
