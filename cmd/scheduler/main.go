package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"AnalysisOrchestrator/internal/aggregate"
	"AnalysisOrchestrator/internal/config"
	"AnalysisOrchestrator/internal/db"
	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/health"
	"AnalysisOrchestrator/internal/queue"
	"AnalysisOrchestrator/internal/scheduler"
	"AnalysisOrchestrator/internal/service"
	"AnalysisOrchestrator/internal/wire"

	"github.com/google/uuid"
)

const orchestratorVersion = "1.2.0"

func main() {
	cfg := config.Load()

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	pool, err := db.Init(initCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres init failed: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(initCtx, pool); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	rdb, err := queue.Connect(initCtx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	defer rdb.Close()

	registry, err := dispatch.LoadRegistry(cfg.WorkerRegistryFile)
	if err != nil {
		log.Fatalf("load worker registry failed: %v", err)
	}
	severities, err := aggregate.LoadSeverityMap(cfg.SeverityMapFile)
	if err != nil {
		log.Fatalf("load severity map failed: %v", err)
	}

	breaker := health.NewRegistry(cfg.BreakerFailureThreshold, cfg.BreakerCooldown)
	liveness := health.NewLivenessCache(rdb, cfg.LivenessTTL)
	client := wire.NewClient(cfg.ConnectTimeout)
	dispatcher := dispatch.NewDispatcher(registry, breaker, liveness, client,
		cfg.DispatchMaxAttempts, cfg.DispatchBackoffBase, cfg.TaskDeadline)
	aggregator := aggregate.NewAggregator(severities, cfg.SideDocThresholdBytes, orchestratorVersion)
	writer := aggregate.NewWriter(cfg.ResultsDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(pool, rdb, dispatcher, aggregator, writer,
		cfg.SchedulerConcurrency, cfg.TaskDeadline, cfg.LeaseTTL, cfg.LeaseRenewInterval)

	sweeper := scheduler.NewSweeper(pool, rdb, scheduler.SweepPolicy{
		StuckRunningTimeout: cfg.StuckRunningTimeout,
		StalePendingTimeout: cfg.StalePendingTimeout,
		GracePeriod:         cfg.SweepGracePeriod,
		ResetBudget:         cfg.StuckRetryBudget,
	}, uuid.NewString(), cfg.SweepInterval)
	go sweeper.Run(ctx)

	taskSvc := service.NewTaskService(pool, rdb)
	trigger, err := scheduler.NewCronTrigger(pool, taskSvc, cfg.ScheduleTickInterval, cfg.ScheduleTimezone)
	if err != nil {
		log.Fatalf("cron trigger init failed: %v", err)
	}
	go trigger.Run(ctx)

	sched.Run(ctx)
}
