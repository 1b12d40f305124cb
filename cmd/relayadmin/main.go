package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/tingly-box/relayadmin/internal/app"
	"github.com/tingly-box/relayadmin/internal/config"
	"github.com/tingly-box/relayadmin/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "override listen port")
	flag.Parse()

	cfg, errLoad := config.Load(config.ResolveConfigPath(*configPath))
	if errLoad != nil {
		return fmt.Errorf("load config: %w", errLoad)
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if errValidate := validatePort(cfg.Port); errValidate != nil {
		return errValidate
	}

	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, &cfg)
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}
