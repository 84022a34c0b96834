package main

import (
	"flag"
	"log"

	"github.com/AnatolyKozmin/Shend/pkg/config"
	"github.com/AnatolyKozmin/Shend/pkg/logger"
	"github.com/AnatolyKozmin/Shend/pkg/migrations"
)

func main() {
	var direction string
	var showVersion bool
	flag.StringVar(&direction, "direction", string(migrations.Up), "migration direction: up or down")
	flag.BoolVar(&showVersion, "version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "migrator")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	url := cfg.Database.URL()
	if showVersion {
		v, dirty, err := migrations.Version(url)
		if err != nil {
			logr.Sugar().Fatalw("failed to read schema version", "error", err)
		}
		logr.Sugar().Infow("schema version", "version", v, "dirty", dirty)
		return
	}

	applied, err := migrations.Run(url, migrations.Direction(direction))
	if err != nil {
		logr.Sugar().Fatalw("migration failed", "direction", direction, "error", err)
	}
	if !applied {
		logr.Sugar().Infow("no migrations to apply", "direction", direction)
		return
	}
	logr.Sugar().Infow("migrations applied", "direction", direction)
}
