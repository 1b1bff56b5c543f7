package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raimguhinov/ring-go/internal/alarm/db"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/Raimguhinov/ring-go/internal/config"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/internal/scheduler"
	"github.com/Raimguhinov/ring-go/pkg/httpserver"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/Raimguhinov/ring-go/pkg/postgres"
	"github.com/go-redis/redis/v8"
)

func Run(cfg *config.Config) {
	l := logger.New(cfg.Log.Level, cfg.App.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repository
	pg, err := postgres.New(ctx, l, cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Error("app - Run - postgres.New", logger.Err(err))
		os.Exit(1)
	}
	defer pg.Close()

	repo := db.NewRepository(pg, l)

	// Change feed
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		l.Error("app - Run - redisClient.Ping", logger.Err(err))
		os.Exit(1)
	}

	f := feed.New(redisClient, l)

	// Scheduler probe
	probe := scheduler.New(repo, f, l, cfg.Ring.ProbeInterval, cfg.Ring.IdempotencyWindow)
	go func() {
		if err := probe.Start(ctx); err != nil {
			l.Error("app - Run - probe.Start", logger.Err(err))
		}
	}()

	// HTTP Server
	authProvider, err := auth.NewBasicAuth(cfg.App.Name, cfg.HTTP.Users)
	if err != nil {
		l.Error("app - Run - auth.NewBasicAuth", logger.Err(err))
		os.Exit(1)
	}

	router := SetupRouter(l, cfg, repo, f, authProvider)
	httpServer := httpserver.New(router, httpserver.Addr(cfg.HTTP.IP, cfg.HTTP.Port))

	l.Info("app - Run - listening on " + cfg.HTTP.IP + ":" + cfg.HTTP.Port)

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case err = <-httpServer.Notify():
		l.Error("app - Run - httpServer.Notify", logger.Err(err))
	}

	// Shutdown
	cancel()

	if err = httpServer.Shutdown(); err != nil {
		l.Error("app - Run - httpServer.Shutdown", logger.Err(err))
	}
}
