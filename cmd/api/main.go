package main

import (
	"context"
	"log"
	"time"

	"AnalysisOrchestrator/internal/config"
	"AnalysisOrchestrator/internal/db"
	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/health"
	"AnalysisOrchestrator/internal/http/handler"
	"AnalysisOrchestrator/internal/pipeline"
	"AnalysisOrchestrator/internal/queue"
	"AnalysisOrchestrator/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Init(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres init failed: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	defer rdb.Close()

	registry, err := dispatch.LoadRegistry(cfg.WorkerRegistryFile)
	if err != nil {
		log.Fatalf("load worker registry failed: %v", err)
	}

	taskSvc := service.NewTaskService(pool, rdb)
	orch := pipeline.New(pool, taskSvc, 5*time.Second)
	liveness := health.NewLivenessCache(rdb, cfg.LivenessTTL)

	engine := gin.Default()

	hh := handler.NewHealthHandler(pool, rdb, registry)
	engine.GET("/healthz", hh.Healthz)
	engine.GET("/readyz", hh.Readyz)

	th := handler.NewTaskHandler(taskSvc)
	ph := handler.NewPipelineHandler(orch)
	wh := handler.NewWorkerHandler(registry, liveness)
	sh := handler.NewScheduleHandler(pool)

	api := engine.Group("/api/v1")
	{
		api.POST("/tasks", th.CreateTask)
		api.GET("/tasks/:id", th.GetTaskStatus)
		api.GET("/tasks/:id/result", th.GetTaskResult)
		api.GET("/tasks/:id/manifest", th.GetTaskManifest)
		api.POST("/tasks/:id/cancel", th.CancelTask)

		api.POST("/pipelines", ph.StartRun)
		api.GET("/pipelines/:id", ph.GetRun)

		api.GET("/workers", wh.ListWorkers)

		api.POST("/schedules", sh.CreateSchedule)
		api.GET("/schedules", sh.ListSchedules)
		api.PATCH("/schedules/:id", sh.SetEnabled)
	}

	log.Printf("starting api server on :%s", cfg.HTTPPort)
	if err := engine.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
