package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/database"
	"github.com/TorusGroup/reunia/internal/ingest"
	"github.com/TorusGroup/reunia/internal/logger"
	reuniamqtt "github.com/TorusGroup/reunia/internal/mqtt"
	"github.com/TorusGroup/reunia/internal/repository"
	"github.com/TorusGroup/reunia/internal/resolver"
	"github.com/TorusGroup/reunia/internal/sources"
)

func main() {
	var (
		source       = flag.String("source", "all", `source to ingest ("ncmec", "namus", "interpol", "charley", "bulkfile" or "all")`)
		maxPages     = flag.Int("max-pages", 0, "page ceiling per source (0 uses the default)")
		purge        = flag.Bool("purge", false, "delete all existing cases for the source before importing")
		purgeConfirm = flag.String("purge-confirmation", "", "confirmation token required with -purge")
		statusOnly   = flag.Bool("status", false, "probe adapter availability and exit")
		listen       = flag.Bool("listen", false, "stay up and accept MQTT trigger messages (requires MQTT_ENABLED=true)")
		budget       = flag.Duration("budget", 30*time.Minute, "wall-clock budget for the run")
	)
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "reunia-ingest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	registry := sources.NewRegistry(&cfg.Sources, log)

	if *statusOnly {
		printStatus(registry)
		return
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(db)

	casesRepo := repository.NewPostgresCasesRepo(db, log)
	runsRepo := repository.NewPostgresRunsRepo(db, log)

	// crash path: a previous process may have left ledger rows 'running'
	if swept, err := runsRepo.FailStaleRuns(context.Background()); err != nil {
		log.Warn("stale run sweep failed", zap.Error(err))
	} else if swept > 0 {
		log.Info("marked stale runs failed", zap.Int64("count", swept))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	lock := ingest.NewSourceLock(redisClient, log)

	res := resolver.New(casesRepo, log)
	orchestrator := ingest.NewOrchestrator(registry, casesRepo, runsRepo, res, lock, ingest.DefaultPacing(), log)

	if *listen {
		if !cfg.MQTT.Enabled {
			log.Fatal("-listen requires MQTT_ENABLED=true")
		}
		trigger, err := reuniamqtt.NewTrigger(&cfg.MQTT, orchestrator, log)
		if err != nil {
			log.Fatal("MQTT trigger setup failed", zap.Error(err))
		}
		defer trigger.Close()
		if err := trigger.Start(); err != nil {
			log.Fatal("MQTT subscribe failed", zap.Error(err))
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *budget)
	defer cancel()

	report := orchestrator.Run(ctx, ingest.RunRequest{
		Source:            *source,
		MaxPages:          *maxPages,
		Purge:             *purge,
		PurgeConfirmation: *purgeConfirm,
	})

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if report.AllFailed() {
		os.Exit(1)
	}
}

func printStatus(registry *sources.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	type sourceStatus struct {
		Source string `json:"source"`
		sources.Status
	}

	statuses := []sourceStatus{}
	for _, adapter := range registry.All() {
		statuses = append(statuses, sourceStatus{
			Source: string(adapter.Source()),
			Status: adapter.Status(ctx),
		})
	}

	out, _ := json.MarshalIndent(statuses, "", "  ")
	fmt.Println(string(out))
}
