package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sagerenn/lexis/internal/app"
	"github.com/sagerenn/lexis/internal/config"
	"github.com/sagerenn/lexis/internal/observability"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (json, yaml or toml)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("config", err)
	}

	log := observability.New(cfg.Log.Level)
	a, err := app.New(cfg, log)
	if err != nil {
		fatal("startup", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx, nil); err != nil {
		log.Error("server error", "error", err)
		_ = a.Close()
		os.Exit(1)
	}
}

func fatal(stage string, err error) {
	_, _ = os.Stderr.WriteString(stage + ": " + err.Error() + "\n")
	os.Exit(1)
}
