package matchmake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/obslog"
	"github.com/stakeboard/arena/internal/session"
)

// Manager pairs queued players by nearest rating inside each
// (gameType, stake) bucket. Pairing and cancellation both run under
// WATCH transactions that touch each other's keys, so exactly one of a
// concurrent pair/cancel wins and a request is consumed at most once.
type Manager struct {
	rdb *redis.Client
	reg *game.Registry

	reqTTL       time.Duration
	sessionTTL   time.Duration
	clockInitial time.Duration
}

type Option func(*Manager)

// WithRequestTTL bounds how long an unanswered request stays queued.
func WithRequestTTL(d time.Duration) Option { return func(m *Manager) { m.reqTTL = d } }

// WithSessionTTL controls the Redis lifetime of sessions created here.
func WithSessionTTL(d time.Duration) Option { return func(m *Manager) { m.sessionTTL = d } }

// WithClockInitial sets the per-seat clock for chess matches.
func WithClockInitial(d time.Duration) Option { return func(m *Manager) { m.clockInitial = d } }

func NewManager(rdb *redis.Client, reg *game.Registry, opts ...Option) *Manager {
	m := &Manager{
		rdb:          rdb,
		reg:          reg,
		reqTTL:       5 * time.Minute,
		sessionTTL:   24 * time.Hour,
		clockInitial: 10 * time.Minute,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Enqueue queues the player or, when a compatible opponent is already
// waiting, pairs them immediately. On a pair the session document is
// written in the same transaction that consumes both requests, so under
// contention each pair of requests yields exactly one session.
func (m *Manager) Enqueue(ctx context.Context, req Request) (*Request, error) {
	if _, ok := m.reg.Get(req.GameType); !ok {
		return nil, fmt.Errorf("unknown game type %q", req.GameType)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = StatusPending
	req.SessionID = ""
	req.CreatedAt = time.Now()

	bucket := BucketKey(req.GameType, req.Stake)
	for {
		var out Request
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			// a failed attempt may have half-mutated req
			req.Status = StatusPending
			req.SessionID = ""

			ids, err := tx.SMembers(ctx, bucket).Result()
			if err != nil && err != redis.Nil {
				return err
			}

			var best *Request
			var dead []string
			for _, id := range ids {
				raw, err := tx.Get(ctx, ReqKey(id)).Bytes()
				if err == redis.Nil {
					dead = append(dead, id)
					continue
				}
				if err != nil {
					return err
				}
				var cand Request
				if err := json.Unmarshal(raw, &cand); err != nil || !cand.Pending() {
					dead = append(dead, id)
					continue
				}
				if cand.PlayerID == req.PlayerID {
					return ErrAlreadyQueued
				}
				if better(&cand, best, req.Rating) {
					c := cand
					best = &c
				}
			}

			pipe := tx.TxPipeline()
			for _, id := range dead {
				pipe.SRem(ctx, bucket, id)
			}

			if best == nil {
				out = req
				raw, err := json.Marshal(&out)
				if err != nil {
					return err
				}
				pipe.Set(ctx, ReqKey(out.ID), raw, m.reqTTL)
				pipe.SAdd(ctx, bucket, out.ID)
				pipe.Expire(ctx, bucket, m.reqTTL)
				_, err = pipe.Exec(ctx)
				return err
			}

			// the earlier requester takes the first seat
			s, err := session.New(m.reg, session.Params{
				ID:        uuid.NewString(),
				Kind:      req.GameType,
				Mode:      session.ModeLive,
				MatchType: session.MatchRanked,
				Stake:     req.Stake,
				Players: []session.Player{
					{ID: best.PlayerID, Username: best.Username, Rating: best.Rating},
					{ID: req.PlayerID, Username: req.Username, Rating: req.Rating},
				},
				Seed:         time.Now().UnixNano(),
				ClockInitial: m.clock(req.GameType),
			})
			if err != nil {
				return err
			}
			sessionRaw, err := json.Marshal(s)
			if err != nil {
				return err
			}

			best.Status = StatusMatched
			best.SessionID = s.ID
			req.Status = StatusMatched
			req.SessionID = s.ID
			out = req

			bestRaw, err := json.Marshal(best)
			if err != nil {
				return err
			}
			reqRaw, err := json.Marshal(&req)
			if err != nil {
				return err
			}

			pipe.SRem(ctx, bucket, best.ID)
			pipe.Set(ctx, ReqKey(best.ID), bestRaw, m.reqTTL)
			pipe.Set(ctx, ReqKey(req.ID), reqRaw, m.reqTTL)
			pipe.Set(ctx, session.Key(s.ID), sessionRaw, m.sessionTTL)
			pipe.Publish(ctx, Channel(best.ID), bestRaw)
			pipe.Publish(ctx, Channel(req.ID), reqRaw)
			pipe.Publish(ctx, session.Channel(s.ID), sessionRaw)
			_, err = pipe.Exec(ctx)
			return err
		}, bucket)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if out.Status == StatusMatched {
			obslog.L().Info("mm_paired",
				zap.String("request_id", out.ID),
				zap.String("session_id", out.SessionID),
				zap.String("game_type", string(out.GameType)),
				zap.Int64("stake", out.Stake),
			)
		} else {
			obslog.L().Info("mm_queued",
				zap.String("request_id", out.ID),
				zap.String("game_type", string(out.GameType)),
				zap.Int64("stake", out.Stake),
				zap.Int("rating", out.Rating),
			)
		}
		return &out, nil
	}
}

// clock returns the per-seat clock for a paired session; only chess is
// played on a clock.
func (m *Manager) clock(kind game.Kind) time.Duration {
	if kind == game.Chess {
		return m.clockInitial
	}
	return 0
}

// better reports whether cand beats cur as a partner for rating.
// Closest rating wins; ties go to the longer-waiting request.
func better(cand, cur *Request, rating int) bool {
	if cur == nil {
		return true
	}
	dc, du := absDiff(cand.Rating, rating), absDiff(cur.Rating, rating)
	if dc != du {
		return dc < du
	}
	if !cand.CreatedAt.Equal(cur.CreatedAt) {
		return cand.CreatedAt.Before(cur.CreatedAt)
	}
	return cand.ID < cur.ID
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Cancel withdraws a pending request. It watches the request document,
// so a pairing that commits first wins and Cancel reports
// ErrAlreadyMatched instead of unseating the match.
func (m *Manager) Cancel(ctx context.Context, id string) (*Request, error) {
	key := ReqKey(id)
	for {
		var out Request
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrRequestNotFound
			}
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return fmt.Errorf("decode request %s: %w", id, err)
			}
			switch out.Status {
			case StatusMatched:
				return ErrAlreadyMatched
			case StatusCancelled:
				return nil
			}
			out.Status = StatusCancelled
			newRaw, err := json.Marshal(&out)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, m.reqTTL)
			pipe.SRem(ctx, BucketKey(out.GameType, out.Stake), out.ID)
			pipe.Publish(ctx, Channel(out.ID), newRaw)
			_, err = pipe.Exec(ctx)
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("mm_cancelled", zap.String("request_id", out.ID))
		return &out, nil
	}
}

// Get loads the current request document.
func (m *Manager) Get(ctx context.Context, id string) (*Request, error) {
	raw, err := m.rdb.Get(ctx, ReqKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return &r, nil
}

// Await blocks until the request is matched, returning it with the
// session id filled in. A cancellation resolves to ErrCancelled.
func (m *Manager) Await(ctx context.Context, id string) (*Request, error) {
	sub := m.rdb.Subscribe(ctx, Channel(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	// the decision may have landed before we subscribed
	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case StatusMatched:
		return r, nil
	case StatusCancelled:
		return nil, ErrCancelled
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil, ErrRequestNotFound
			}
			var upd Request
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				obslog.L().Warn("mm_event_malformed", zap.String("request_id", id), zap.Error(err))
				continue
			}
			switch upd.Status {
			case StatusMatched:
				return &upd, nil
			case StatusCancelled:
				return nil, ErrCancelled
			}
		}
	}
}
