package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stakeboard/arena/internal/obslog"
)

const publishAttempts = 3

// Channel is the pub/sub channel carrying a session's state stream.
func Channel(id string) string { return "arena:session:events:" + id }

// Publisher fans full session documents out over Redis pub/sub. Every
// accepted mutation publishes the whole document; subscribers replace
// their copy wholesale instead of patching.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish broadcasts the document, retrying transient failures a few
// times before giving up. A lost publish is recoverable: the document
// in Redis stays authoritative and the next mutation re-announces it.
func (p *Publisher) Publish(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var last error
	for i := 0; i < publishAttempts; i++ {
		if err := p.rdb.Publish(ctx, Channel(s.ID), raw).Err(); err == nil {
			return nil
		} else {
			last = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return last
}

// Subscribe streams session states until ctx is cancelled. The current
// document, if one exists, is delivered first so late joiners start from
// the full state. Payloads that fail to decode are logged and skipped,
// and versions older than one already delivered are dropped.
func (p *Publisher) Subscribe(ctx context.Context, id string) (<-chan *Session, error) {
	sub := p.rdb.Subscribe(ctx, Channel(id))
	// force the SUBSCRIBE round trip so missing connectivity surfaces here
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan *Session, 8)
	go func() {
		defer close(out)
		defer sub.Close()

		var lastVersion int64

		if raw, err := p.rdb.Get(ctx, Key(id)).Bytes(); err == nil {
			if s := decodeState(id, raw); s != nil {
				lastVersion = s.Version
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s := decodeState(id, []byte(msg.Payload))
				if s == nil || s.Version <= lastVersion {
					continue
				}
				lastVersion = s.Version
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// decodeState parses one published payload, rejecting documents that do
// not look like a session for this channel.
func decodeState(id string, raw []byte) *Session {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		obslog.L().Warn("session_stream_malformed", zap.String("session_id", id), zap.Error(err))
		return nil
	}
	if s.ID != id || s.Version == 0 || s.Status == "" {
		obslog.L().Warn("session_stream_mismatch",
			zap.String("session_id", id), zap.String("payload_id", s.ID))
		return nil
	}
	return &s
}
