// Package history persists terminal game records and player profile
// stats to Postgres. Writes are idempotent upserts keyed by session id,
// so a retried archive call cannot duplicate a record.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/stakeboard/arena/internal/session"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the immutable terminal record of one session.
func (r *Repository) SaveResult(ctx context.Context, rec *session.Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	playersRaw, _ := json.Marshal(rec.Players)
	movesRaw, _ := json.Marshal(rec.Moves)
	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	result := string(rec.Winner)
	if rec.Draw {
		result = "draw"
	}

	q := `INSERT INTO game_records (
	    session_id, game_type, mode, match_type, stake,
	    players, result, reason, moves, final_board,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	  ) ON CONFLICT (session_id) DO UPDATE SET
	    game_type=EXCLUDED.game_type,
	    mode=EXCLUDED.mode,
	    match_type=EXCLUDED.match_type,
	    stake=EXCLUDED.stake,
	    players=EXCLUDED.players,
	    result=EXCLUDED.result,
	    reason=EXCLUDED.reason,
	    moves=EXCLUDED.moves,
	    final_board=EXCLUDED.final_board,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.SessionID,
		string(rec.GameType), string(rec.Mode), string(rec.MatchType), rec.Stake,
		string(playersRaw), result, strings.TrimSpace(rec.Reason),
		string(movesRaw), string(rec.FinalBoard),
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}

// UpdateRating upserts a player's profile row: the new rating plus a
// bumped counter for the result kind.
func (r *Repository) UpdateRating(ctx context.Context, up session.RatingUpdate) error {
	if r == nil || r.db == nil {
		return nil
	}

	wins, losses, draws := 0, 0, 0
	switch up.Result {
	case "win":
		wins = 1
	case "loss":
		losses = 1
	case "draw":
		draws = 1
	}

	q := `INSERT INTO player_profiles (
	    player_id, rating, games, wins, losses, draws, updated_at
	  ) VALUES (
	    $1,$2,1,$3,$4,$5,NOW()
	  ) ON CONFLICT (player_id) DO UPDATE SET
	    rating=EXCLUDED.rating,
	    games=player_profiles.games+1,
	    wins=player_profiles.wins+EXCLUDED.wins,
	    losses=player_profiles.losses+EXCLUDED.losses,
	    draws=player_profiles.draws+EXCLUDED.draws,
	    updated_at=NOW()`

	_, err := r.db.ExecContext(ctx, q,
		up.PlayerID, up.NewRating, wins, losses, draws,
	)
	return err
}

// Rating returns a player's stored rating, or def when no profile row
// exists yet.
func (r *Repository) Rating(ctx context.Context, playerID string, def int) (int, error) {
	if r == nil || r.db == nil {
		return def, nil
	}
	var rating int
	err := r.db.QueryRowContext(ctx,
		`SELECT rating FROM player_profiles WHERE player_id = $1`, playerID,
	).Scan(&rating)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}
