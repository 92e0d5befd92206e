package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlukins/caresync/internal/logging"
	"github.com/dlukins/caresync/internal/server"
	"github.com/dlukins/caresync/internal/server/config"
)

func main() {
	log := logging.NewJSONLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}
