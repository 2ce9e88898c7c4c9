package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stakeboard/arena/internal/ai"
	appcfg "github.com/stakeboard/arena/internal/config"
	"github.com/stakeboard/arena/internal/game"
	"github.com/stakeboard/arena/internal/game/checkers"
	"github.com/stakeboard/arena/internal/game/chess"
	"github.com/stakeboard/arena/internal/game/ludo"
	"github.com/stakeboard/arena/internal/gateway"
	"github.com/stakeboard/arena/internal/history"
	"github.com/stakeboard/arena/internal/matchmake"
	"github.com/stakeboard/arena/internal/obslog"
	"github.com/stakeboard/arena/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.L().Sync()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis url parse error", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		obslog.L().Fatal("redis ping error", zap.Error(err))
	}
	defer rdb.Close()

	reg := game.NewRegistry()
	reg.Register(chess.New())
	reg.Register(checkers.New())
	reg.Register(ludo.New())

	sessionTTL := time.Duration(cfg.Game.SessionTTLSec) * time.Second
	clockInitial := time.Duration(cfg.Game.ClockInitialSec) * time.Second

	sessionOpts := []session.Option{
		session.WithAI(ai.New(reg, cfg.Game.AISeed)),
		session.WithTTL(sessionTTL),
	}
	var repo *history.Repository
	if cfg.DatabaseURL != "" {
		repo, err = history.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("history repo init error", zap.Error(err))
		}
		defer repo.Close()
		sessionOpts = append(sessionOpts, session.WithArchiver(repo))
	} else {
		obslog.L().Warn("DATABASE_URL not set, results will not be persisted")
	}

	sessions := session.NewManager(rdb, reg, sessionOpts...)
	queue := matchmake.NewManager(rdb, reg,
		matchmake.WithRequestTTL(time.Duration(cfg.Game.MatchTTLSec)*time.Second),
		matchmake.WithSessionTTL(sessionTTL),
		matchmake.WithClockInitial(clockInitial),
	)

	srv := gateway.NewServer(sessions, queue,
		gateway.WithDefaultDifficulty(cfg.Game.AIDifficulty),
		gateway.WithClockInitial(clockInitial),
	)
	stream := gateway.NewStreamServer(sessions.Publisher())

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Listen(cfg.ListenAddr) }()
	go func() { errCh <- stream.Listen(cfg.StreamAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		obslog.L().Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(); err != nil {
		obslog.L().Warn("gateway shutdown error", zap.Error(err))
	}
	if err := stream.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("stream shutdown error", zap.Error(err))
	}
}
