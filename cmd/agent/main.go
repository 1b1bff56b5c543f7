package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raimguhinov/ring-go/internal/agent"
	"github.com/Raimguhinov/ring-go/internal/client"
	"github.com/Raimguhinov/ring-go/internal/config"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/Raimguhinov/ring-go/pkg/utils"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func main() {
	cfg := config.GetConfig()

	l := logger.New(cfg.Log.Level, cfg.App.Env)

	roomID, err := uuid.Parse(cfg.Agent.RoomID)
	if err != nil {
		l.Error("agent - main - bad room_id", logger.Err(err))
		os.Exit(1)
	}
	if cfg.Agent.User == "" {
		l.Error("agent - main - user is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Device identity resolves asynchronously; sessions wait on it.
	deviceID := utils.NewOnceValue[string]()
	go func() {
		id, err := agent.DeviceID()
		if err != nil {
			l.Error("agent - main - agent.DeviceID", logger.Err(err))
			// An identity-less device can still observe; it just never owns.
			id = ""
		}
		deviceID.Set(id)
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		l.Error("agent - main - redisClient.Ping", logger.Err(err))
		os.Exit(1)
	}

	// The identity is fetched lazily on the first request, so a slow
	// resolution never delays startup.
	api := client.New(cfg.Agent.ServerURL, cfg.Agent.User, cfg.Agent.Password, deviceID.Get)

	a := agent.New(
		cfg,
		api,
		feed.New(redisClient, l),
		agent.NewNotifier(),
		l,
		cfg.Agent.User,
		roomID,
		deviceID,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.Run(ctx)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("agent - main - signal: " + s.String())
	case err := <-errChan:
		if err != nil {
			l.Error("agent - main - a.Run", logger.Err(err))
		}
	}

	cancel()
}
