package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/syncparty/server/internal/controller"
	"github.com/syncparty/server/internal/hub"
	"github.com/syncparty/server/internal/repository/connection/inmemory"
	"github.com/syncparty/server/internal/repository/room/redis"
	"github.com/syncparty/server/internal/service/room"
	"github.com/syncparty/server/pkg/ctxlogger"
	"github.com/syncparty/server/pkg/redisclient"
)

type AppConfig struct {
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	LogLevel             string `json:"log_level"`
	PresenceThresholdSec int    `json:"presence_threshold_sec"`
	RoomTTLHours         int    `json:"room_ttl_hours"`
	RedisPort            int    `json:"redis_port"`
	RedisHost            string `json:"redis_host"`
	RedisPassword        string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.PresenceThresholdSec < 1 {
		return fmt.Errorf("presence threshold must be greater than 0")
	}
	if cfg.RoomTTLHours < 1 {
		return fmt.Errorf("room ttl must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	roomRepo := redis.NewRepo(rc, time.Duration(cfg.RoomTTLHours)*time.Hour)
	stateHub := hub.New()
	roomService := room.NewService(roomRepo, stateHub, logger, &room.Config{
		PresenceThreshold: time.Duration(cfg.PresenceThresholdSec) * time.Second,
		SweepInterval:     15 * time.Second,
	})
	connRepo := inmemory.NewRepo()
	controller := controller.NewController(roomService, connRepo, logger)

	go roomService.RunPresenceSweeper(serverCtx)
	go controller.RunPresenceNotifier(serverCtx)

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
