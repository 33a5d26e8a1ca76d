// Command app serves the ingestion API, runs queued backfill, repair and
// quality jobs, and fires them on the configured cron schedule.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"BarPull/internal/di"
	"BarPull/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}

	names := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if !p.Disabled {
			names = append(names, p.Name)
		}
	}
	log.Printf("barpull starting env=%s store=%s providers=%s redis=%t kafka=%t schedule=%t",
		cfg.Environment, cfg.Store.Backend, strings.Join(names, ","),
		cfg.Redis.Enabled, cfg.Kafka.Enabled, cfg.Schedule.Enabled)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("wire app: %v", err)
	}
	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app stopped with error: %v", err)
		os.Exit(1)
	}
}
