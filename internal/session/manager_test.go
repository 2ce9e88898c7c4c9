package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stakeboard/arena/internal/ai"
	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/game/checkers"
	"github.com/stakeboard/arena/internal/game/chess"
	"github.com/stakeboard/arena/internal/game/ludo"
)

func newTestManager(t *testing.T) (*Manager, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	reg := game.NewRegistry()
	reg.Register(chess.New())
	reg.Register(checkers.New())
	reg.Register(ludo.New())
	return NewManager(rdb, reg, WithAI(ai.New(reg, 1))), rdb
}

func twoHumans() []Player {
	return []Player{
		{ID: "p1", Username: "alice", Rating: 1200},
		{ID: "p2", Username: "bob", Rating: 1200},
	}
}

func newCheckersSession(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Create(context.Background(), Params{
		Kind:      game.Checkers,
		Mode:      ModeLive,
		MatchType: MatchCasual,
		Players:   twoHumans(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func rawDoc(t *testing.T, rdb *redis.Client, id string) string {
	t.Helper()
	raw, err := rdb.Get(context.Background(), Key(id)).Result()
	if err != nil {
		t.Fatalf("get doc: %v", err)
	}
	return raw
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)
	s := newCheckersSession(t, m)

	if s.Version != 1 || s.Status != StatusActive {
		t.Fatalf("unexpected fresh session: version=%d status=%s", s.Version, s.Status)
	}
	if s.Turn != game.Red {
		t.Fatalf("red moves first in checkers, got %q", s.Turn)
	}
	if s.Players[game.Red].ID != "p1" || s.Players[game.Black].ID != "p2" {
		t.Fatalf("players seated out of order: %+v", s.Players)
	}

	got, err := m.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != s.ID || got.Version != s.Version {
		t.Fatalf("Get mismatch: %+v", got)
	}

	if _, err := m.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitMoveRotatesTurn(t *testing.T) {
	m, _ := newTestManager(t)
	s := newCheckersSession(t, m)
	ctx := context.Background()

	got, err := m.SubmitMove(ctx, s.ID, game.Red, game.Move{From: "5,0", To: "4,1"})
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if got.Turn != game.Black {
		t.Fatalf("turn should pass to black, got %q", got.Turn)
	}
	if len(got.Moves) != 1 || got.Version != 2 {
		t.Fatalf("unexpected history/version: moves=%d version=%d", len(got.Moves), got.Version)
	}

	if _, err := m.SubmitMove(ctx, s.ID, game.Red, game.Move{From: "5,2", To: "4,3"}); err != ErrNotYourTurn {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := m.SubmitMove(ctx, s.ID, game.White, game.Move{From: "2,1", To: "3,0"}); err != ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestRejectedMoveLeavesDocUntouched(t *testing.T) {
	m, rdb := newTestManager(t)
	s := newCheckersSession(t, m)
	ctx := context.Background()

	before := rawDoc(t, rdb, s.ID)
	if _, err := m.SubmitMove(ctx, s.ID, game.Red, game.Move{From: "5,0", To: "3,0"}); err == nil {
		t.Fatalf("expected illegal move rejection")
	}
	after := rawDoc(t, rdb, s.ID)
	if before != after {
		t.Fatalf("rejected move mutated the document")
	}
}

func TestDrawProtocol(t *testing.T) {
	m, rdb := newTestManager(t)
	s := newCheckersSession(t, m)
	ctx := context.Background()

	if _, err := m.RespondDraw(ctx, s.ID, game.Black, true); err != ErrNoOffer {
		t.Fatalf("expected ErrNoOffer before any offer, got %v", err)
	}

	got, err := m.OfferDraw(ctx, s.ID, game.Red)
	if err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if got.PendingOffer == nil || got.PendingOffer.Kind != OfferDrawKind {
		t.Fatalf("offer not recorded: %+v", got.PendingOffer)
	}

	if _, err := m.OfferDraw(ctx, s.ID, game.Black); err != ErrOfferPending {
		t.Fatalf("expected ErrOfferPending, got %v", err)
	}
	if _, err := m.RespondDraw(ctx, s.ID, game.Red, true); err != ErrNoOffer {
		t.Fatalf("proposer cannot answer their own offer, got %v", err)
	}

	got, err = m.RespondDraw(ctx, s.ID, game.Black, false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.PendingOffer != nil || got.Completed() {
		t.Fatalf("decline should only clear the offer: %+v", got)
	}

	if _, err = m.OfferDraw(ctx, s.ID, game.Red); err != nil {
		t.Fatalf("re-offer: %v", err)
	}
	got, err = m.RespondDraw(ctx, s.ID, game.Black, true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !got.Completed() || !got.Draw || got.Reason != "draw_agreed" {
		t.Fatalf("expected agreed draw, got %+v", got)
	}

	// the terminal document is frozen
	before := rawDoc(t, rdb, s.ID)
	if _, err := m.SubmitMove(ctx, s.ID, game.Red, game.Move{From: "5,0", To: "4,1"}); err != ErrGameOver {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if after := rawDoc(t, rdb, s.ID); after != before {
		t.Fatalf("rejected op mutated a completed document")
	}
}

func TestDrawUnsupportedForLudo(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Create(context.Background(), Params{
		Kind: game.Ludo, Mode: ModeDemo, MatchType: MatchCasual,
		Players: twoHumans(), Seed: 7,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.OfferDraw(context.Background(), s.ID, game.Red); err != ErrOfferUnsupported {
		t.Fatalf("expected ErrOfferUnsupported, got %v", err)
	}
}

func TestUndoReplaysHistory(t *testing.T) {
	m, _ := newTestManager(t)
	s := newCheckersSession(t, m)
	ctx := context.Background()

	if _, err := m.RequestUndo(ctx, s.ID, game.Red); err != ErrNothingToUndo {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}

	initial := s.Board
	if _, err := m.SubmitMove(ctx, s.ID, game.Red, game.Move{From: "5,0", To: "4,1"}); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}

	got, err := m.RequestUndo(ctx, s.ID, game.Black)
	if err != nil {
		t.Fatalf("RequestUndo: %v", err)
	}
	if got.PendingOffer == nil || got.PendingOffer.Kind != OfferUndoKind {
		t.Fatalf("undo offer not recorded: %+v", got.PendingOffer)
	}

	got, err = m.RespondUndo(ctx, s.ID, game.Red, true)
	if err != nil {
		t.Fatalf("RespondUndo: %v", err)
	}
	if len(got.Moves) != 0 || got.Turn != game.Red {
		t.Fatalf("undo should rewind to the start: moves=%d turn=%q", len(got.Moves), got.Turn)
	}
	if string(got.Board) != string(initial) {
		t.Fatalf("undone board differs from the initial state")
	}
}

func TestResign(t *testing.T) {
	m, _ := newTestManager(t)
	s := newCheckersSession(t, m)

	got, err := m.Resign(context.Background(), s.ID, game.Red)
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if !got.Completed() || got.Winner != game.Black || got.Reason != "resignation" {
		t.Fatalf("expected black to win by resignation, got %+v", got)
	}
	if _, err := m.Resign(context.Background(), s.ID, game.Black); err != ErrGameOver {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestForfeitOnTime(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, Params{
		Kind: game.Chess, Mode: ModeLive, MatchType: MatchRanked,
		Players: twoHumans(), ClockInitial: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// while time remains the call is a no-op
	if _, forfeited, err := m.ForfeitOnTime(ctx, s.ID); err != nil || forfeited {
		t.Fatalf("premature forfeit: forfeited=%v err=%v", forfeited, err)
	}

	time.Sleep(20 * time.Millisecond)
	got, forfeited, err := m.ForfeitOnTime(ctx, s.ID)
	if err != nil {
		t.Fatalf("ForfeitOnTime: %v", err)
	}
	if !forfeited || !got.Completed() {
		t.Fatalf("expected forfeit, got forfeited=%v %+v", forfeited, got)
	}
	if got.Winner != game.Black || got.Reason != "timeout" {
		t.Fatalf("white to move lost on time, got %+v", got)
	}
	if got.Clocks[game.White] != 0 {
		t.Fatalf("expired clock should read zero, got %d", got.Clocks[game.White])
	}
}

func TestExpiredClockRejectsMove(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, Params{
		Kind: game.Chess, Mode: ModeLive, MatchType: MatchRanked,
		Players: twoHumans(), ClockInitial: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := m.SubmitMove(ctx, s.ID, game.White, game.Move{From: "e2", To: "e4"}); err != ErrGameOver {
		t.Fatalf("expected ErrGameOver after clock expiry, got %v", err)
	}
	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Completed() || got.Reason != "timeout" {
		t.Fatalf("expected timeout completion, got %+v", got)
	}
}

func TestBotReplies(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, Params{
		Kind: game.Chess, Mode: ModeDemo, MatchType: MatchComputer,
		Players: []Player{
			{ID: "p1", Username: "alice", Rating: 1200},
			{ID: "cpu", Username: "Computer", Rating: 1200, Bot: true, Difficulty: 1},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.SubmitMove(ctx, s.ID, game.White, game.Move{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := m.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Moves) >= 2 {
			if got.Turn != game.White {
				t.Fatalf("after the bot reply white moves, got %q", got.Turn)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("bot did not reply, moves=%d", len(got.Moves))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUndoAgainstBotRollsBackBothPlies(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, Params{
		Kind: game.Chess, Mode: ModeDemo, MatchType: MatchComputer,
		Players: []Player{
			{ID: "p1", Username: "alice", Rating: 1200},
			{ID: "cpu", Username: "Computer", Rating: 1200, Bot: true, Difficulty: 0},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.SubmitMove(ctx, s.ID, game.White, game.Move{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}

	// wait for the bot's reply
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := m.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Moves) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bot did not reply")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, err := m.RequestUndo(ctx, s.ID, game.White)
	if err != nil {
		t.Fatalf("RequestUndo: %v", err)
	}
	if len(got.Moves) != 0 {
		t.Fatalf("computer match undo rolls back both plies, got %d moves", len(got.Moves))
	}
	if got.Turn != game.White || got.PendingOffer != nil {
		t.Fatalf("expected white to move with no pending offer: %+v", got)
	}
}

func TestArchiveOnCompletion(t *testing.T) {
	m, _ := newTestManager(t)
	arch := &captureArchiver{done: make(chan struct{})}
	m.arch = arch

	s, err := m.Create(context.Background(), Params{
		Kind: game.Checkers, Mode: ModeLive, MatchType: MatchRanked,
		Players: twoHumans(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Resign(context.Background(), s.ID, game.Red); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	select {
	case <-arch.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("archiver was not invoked")
	}
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if arch.rec == nil || arch.rec.SessionID != s.ID {
		t.Fatalf("missing terminal record: %+v", arch.rec)
	}
	if len(arch.ups) != 2 {
		t.Fatalf("expected two rating updates, got %d", len(arch.ups))
	}
	for _, up := range arch.ups {
		switch up.PlayerID {
		case "p2":
			if up.Result != "win" || up.NewRating != 1216 {
				t.Fatalf("winner update wrong: %+v", up)
			}
		case "p1":
			if up.Result != "loss" || up.NewRating != 1184 {
				t.Fatalf("loser update wrong: %+v", up)
			}
		default:
			t.Fatalf("unexpected player %q", up.PlayerID)
		}
	}
}
