package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlukins/caresync/internal/client/app"
	"github.com/dlukins/caresync/internal/client/config"
	"github.com/dlukins/caresync/internal/client/events"
	"github.com/dlukins/caresync/internal/logging"
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

	hooks := events.Hooks{
		DataChanged: func() {
			log.Info(ctx, "journal data changed")
		},
		AccountUnavailable: func() {
			log.Warn(ctx, "sync account unavailable, continuing local-only")
		},
	}

	a, err := app.New(ctx, cfg, log, hooks)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error(ctx, "agent stopped", "error", err)
		os.Exit(1)
	}
}
