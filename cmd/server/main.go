package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	config, err := server.NewConfigFromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("Starting room chat server...", "port", config.Port, "origins", config.AllowedOrigins)

	svc := chat.NewService(
		chat.WithLogger(logger),
		chat.WithMaxRoomMessages(config.MaxRoomMessages),
	)

	hub := server.NewHub(config, svc, logger)
	hub.Start()

	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"server": func(ctx context.Context) error {
				return server.Shutdown(ctx, httpServer, hub, config.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
