package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arete/internal/common/cache"
	commonmw "arete/internal/common/http/middleware"
	"arete/internal/common/mq"
	"arete/internal/common/storage"
	"arete/internal/interview/controller"
	"arete/internal/interview/decision"
	"arete/internal/interview/decision/llm"
	"arete/internal/interview/eventlog"
	"arete/internal/interview/repository"
	"arete/internal/interview/sandbox"
	"arete/internal/interview/sandbox/engine"
	"arete/internal/interview/sandbox/observer"
	"arete/internal/interview/service"
	"arete/internal/interview/workflow"
	"arete/pkg/utils/logger"
	"arete/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/interview_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	catalog, err := repository.LoadProblemCatalog(appCfg.Interview.ProblemsPath)
	if err != nil {
		logger.Error(ctx, "load problem catalog failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "problem catalog loaded", zap.Int("problems", catalog.Len()))

	storeOpts := []repository.StoreOption{}
	var redisCache *cache.RedisCache
	if appCfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis.RedisConfig)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		snapshots, err := repository.NewSnapshotRepository(redisCache, appCfg.Redis.SnapshotTTL)
		if err != nil {
			logger.Error(ctx, "init snapshot repository failed", zap.Error(err))
			return
		}
		storeOpts = append(storeOpts, repository.WithSnapshots(snapshots))
	} else {
		logger.Warn(ctx, "redis not configured, sessions live in memory only")
	}
	store := repository.NewSessionStore(appCfg.Interview.StoreShards, storeOpts...)

	eventOpts := []eventlog.Option{}
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.KafkaConfig)
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		sink := eventlog.NewAsyncSink(eventlog.NewMQSink(producer, appCfg.Kafka.Topic), appCfg.Kafka.Buffer, appCfg.Kafka.PublishTimeout)
		defer sink.Close()
		eventOpts = append(eventOpts, eventlog.WithSink(sink))
	}
	events := eventlog.New(eventOpts...)

	var archive service.ReportArchive
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.MinIO.Bucket); err != nil {
			logger.Error(ctx, "ensure archive bucket failed", zap.Error(err))
			return
		}
		archive = repository.NewReportArchive(objStorage, appCfg.MinIO.Bucket)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng, err := engine.NewEngine(appCfg.Sandbox.Engine)
	if err != nil {
		logger.Error(ctx, "init sandbox engine failed", zap.Error(err))
		return
	}
	executor, err := sandbox.NewExecutor(appCfg.Sandbox.Executor, eng, observer.NewPrometheusRecorder(registry))
	if err != nil {
		logger.Error(ctx, "init sandbox executor failed", zap.Error(err))
		return
	}

	providers := decision.Providers{}
	if appCfg.LLM.APIKey != "" {
		provider := llm.NewProvider(appCfg.LLM)
		providers = decision.Providers{
			Presenter: provider,
			Analyzer:  provider,
			Scorer:    provider,
			Reviewer:  provider,
			Responder: provider,
		}
		logger.Info(ctx, "model-backed interviewer enabled", zap.String("model", appCfg.LLM.InterviewerModel))
	} else {
		logger.Warn(ctx, "no API key configured, using rule-based interviewer")
	}
	flow := workflow.New(providers, events, decision.RuleConfig{StuckTimeout: appCfg.Interview.StuckTimeout})

	cfg := service.Config{
		Catalog:         catalog,
		Store:           store,
		Events:          events,
		Orchestrator:    flow,
		Sandbox:         executor,
		ReportCacheSize: appCfg.Interview.ReportCacheSize,
		MaxDuration:     appCfg.Interview.MaxDuration,
		ArchiveTimeout:  appCfg.Interview.ArchiveTimeout,
	}
	if archive != nil {
		cfg.Archive = archive
	}
	interviewService, err := service.NewInterviewService(cfg)
	if err != nil {
		logger.Error(ctx, "init interview service failed", zap.Error(err))
		return
	}

	sweeper := service.NewSweeper(interviewService, appCfg.Sweep)
	if err := sweeper.Start(); err != nil {
		logger.Error(ctx, "start session sweeper failed", zap.Error(err))
		return
	}
	defer sweeper.Stop()

	var limiter *commonmw.RateLimiter
	if redisCache != nil {
		limiter = commonmw.NewRateLimiter(redisCache, time.Minute, appCfg.RateLimit.Timeout)
	}

	httpServer := buildHTTPServer(appCfg, interviewService, limiter, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "interview http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg *AppConfig, interviewService *service.InterviewService, limiter *commonmw.RateLimiter, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{"name": cfg.AppName, "status": "running"})
	})
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "healthy"})
	})
	router.GET("/config", func(c *gin.Context) {
		response.Success(c, gin.H{
			"app_name":                  cfg.AppName,
			"interviewer_model":         cfg.interviewerModel(),
			"code_snapshot_interval_ms": cfg.Interview.SnapshotInterval.Milliseconds(),
			"max_duration_seconds":      int(cfg.Interview.MaxDuration.Seconds()),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	interviewController := controller.NewInterviewController(interviewService)
	api := router.Group("/api/v1")
	api.GET("/problems", interviewController.ListProblems)
	api.POST("/interviews", interviewController.Start)

	session := api.Group("/interviews/:session_id")
	session.GET("", interviewController.Status)
	session.POST("/code", interviewController.Code)
	session.POST("/run", commonmw.RateLimitMiddleware(limiter, "run", cfg.RateLimit.Run), interviewController.Run)
	session.POST("/submit", commonmw.RateLimitMiddleware(limiter, "submit", cfg.RateLimit.Submit), interviewController.Submit)
	session.GET("/report", interviewController.Report)
	session.POST("/chat", interviewController.Chat)
	session.GET("/events", interviewController.Events)
	session.GET("/transcript", interviewController.Transcript)
	session.DELETE("/events", interviewController.ClearEvents)

	liveController := controller.NewLiveController(interviewService, cfg.Live).
		WithRateLimit(limiter, cfg.RateLimit.Run, cfg.RateLimit.Submit)
	router.GET("/ws/:session_id", liveController.Serve)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
