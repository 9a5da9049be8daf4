package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"voicematch/internal/config"
	"voicematch/internal/continuity"
	"voicematch/internal/handlers"
	"voicematch/internal/match"
	"voicematch/internal/models"
	"voicematch/internal/notify"
	"voicematch/internal/queue"
	"voicematch/internal/store"
	"voicematch/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("database connect:", err)
	}
	if err := db.AutoMigrate(&models.Call{}, &models.Category{}); err != nil {
		log.Fatal("database migrate:", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

	publisher, err := notify.NewPubnub(cfg.PubNub)
	if err != nil {
		log.Fatal("pubnub:", err)
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	taskClient := tasks.NewClient(asynqClient)
	dispatcher := notify.NewDispatcher(taskClient)

	callStore := store.NewCallStore(db)
	categoryStore := store.NewCategoryStore(db)

	coordinator := queue.NewCoordinator(redisClient, categoryStore, queue.Options{
		TTL:         cfg.QueueTTL,
		WaitPerUser: cfg.WaitPerUser,
		WaitCap:     cfg.WaitCap,
	})

	markers := continuity.NewMarkerStore(redisClient)
	continuitySvc := continuity.NewService(markers, callStore, dispatcher, cfg.GraceTTL)

	// Pairing success is handed off only after the call row is committed.
	onMatch := func(ctx context.Context, sig match.Signal) {
		call := &models.Call{
			ID:         sig.CallID,
			UserA:      sig.UserIDs[0],
			UserB:      sig.UserIDs[1],
			CategoryID: sig.CategoryID,
			Status:     models.CallStatusReady,
		}
		dispatcher.MatchSuccess(ctx, call)
		if cfg.AutoStartCalls {
			if err := continuitySvc.StartCall(ctx, sig.CallID); err != nil {
				slog.Error("auto-start after pairing failed", "callID", sig.CallID, "error", err)
			}
		}
	}
	pairer := match.NewPairer(coordinator, callStore, categoryStore, onMatch)

	taskHandlers := tasks.NewHandlers(pairer, continuitySvc, coordinator,
		callStore, categoryStore, dispatcher, publisher, cfg.QueueTTL)

	srv := tasks.NewServer(redisOpt, cfg)
	scheduler, err := tasks.NewScheduler(redisOpt, cfg)
	if err != nil {
		log.Fatal("scheduler:", err)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			log.Fatal("scheduler failed:", err)
		}
	}()
	go func() {
		if err := srv.Run(tasks.NewMux(taskHandlers)); err != nil {
			log.Fatal("worker server failed:", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := handlers.New(coordinator, continuitySvc, dispatcher, publisher)
	handlers.SetupRoutes(e, h)

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	scheduler.Shutdown()
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown:", err)
	}
}
