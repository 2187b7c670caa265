package main

import (
	"context"
	"fabtracker/internal/app/config"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/pkg/app"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalln("Unable to load configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]

	if app.IsConsoleMode(args) {
		runConsoleApp(ctx, cfg, args)
		return
	}

	runTrackerApp(ctx, cfg)
}

func runConsoleApp(ctx context.Context, cfg *config.Config, args []string) {
	if err := app.NewConsoleApp(cfg).Run(ctx, args); err != nil {
		log.Fatal(err)
	}
}

func runTrackerApp(ctx context.Context, cfg *config.Config) {
	fileLogger, err := logger.NewFileLogger(cfg.App.LogFile, cfg.App.LogSilent, cfg.App.Timezone)
	if err != nil {
		log.Fatalln(err)
	}

	defer fileLogger.Sync()

	tracker, err := app.NewTrackerApp(ctx, cfg, fileLogger)
	if err != nil {
		fileLogger.Error("Unable to start tracker:", err)
		log.Fatalln(err)
	}

	defer tracker.Close()

	if err := tracker.Run(ctx); err != nil {
		fileLogger.Error("Tracker failed:", err)
	}
}
