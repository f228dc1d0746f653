package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"governance-backend/docs"
	authHandler "governance-backend/internal/api/auth"
	governanceHandler "governance-backend/internal/api/governance"
	notificationHandler "governance-backend/internal/api/notification"
	tokenHandler "governance-backend/internal/api/token"
	"governance-backend/internal/config"
	"governance-backend/internal/middleware"
	governanceRepo "governance-backend/internal/repository/governance"
	"governance-backend/internal/repository/nonce"
	notificationRepo "governance-backend/internal/repository/notification"
	userRepo "governance-backend/internal/repository/user"
	authService "governance-backend/internal/service/auth"
	governanceService "governance-backend/internal/service/governance"
	notificationService "governance-backend/internal/service/notification"
	"governance-backend/internal/service/publisher"
	"governance-backend/internal/types"
	"governance-backend/pkg/database"
	"governance-backend/pkg/database/migrations"
	"governance-backend/pkg/logger"
	"governance-backend/pkg/metrics"
	"governance-backend/pkg/token"
	"governance-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Governance Backend API
// @version 1.0
// @description Admin governance backend: roles, multi-sig actions, time locks, staking and audit log
// @host localhost:8080
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	logger.Init(logger.DefaultConfig())
	logger.Info("Starting Governance Backend v1.0.0")

	// 创建根context和WaitGroup用于协调关闭
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config: ", err)
		os.Exit(1)
	}

	// 2. 连接数据库并初始化表
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database: ", err)
		os.Exit(1)
	}
	if err := migrations.InitTables(db); err != nil {
		logger.Error("Failed to init tables: ", err)
		os.Exit(1)
	}

	// 3. 代币网关
	gateway, closeGateway, err := token.NewFromConfig(ctx, &cfg.Token)
	if err != nil {
		logger.Error("Failed to init token gateway: ", err)
		os.Exit(1)
	}
	defer closeGateway()

	// 4. 初始化仓库层
	ledgerRepository := governanceRepo.NewRepository(db)
	userRepository := userRepo.NewRepository(db)
	notificationRepository := notificationRepo.NewNotificationRepository(db)

	// 5. 治理账本（恢复或创世）
	params, err := governanceService.ParamsFromConfig(&cfg.Governance)
	if err != nil {
		logger.Error("Failed to build governance params: ", err)
		os.Exit(1)
	}
	govSvc, err := governanceService.NewService(ctx, params, ledgerRepository, gateway)
	if err != nil {
		logger.Error("Failed to init governance service: ", err)
		os.Exit(1)
	}

	// 6. 监控指标
	m := metrics.New()
	refreshLedgerGauges := func([]types.Event) {
		m.SetLedger(govSvc.RegistryStats(), govSvc.StakingStats(), govSvc.GetEmergencyState())
	}
	refreshLedgerGauges(nil)
	govSvc.Subscribe(m.ObserveEvents)
	govSvc.Subscribe(refreshLedgerGauges)

	// 7. Redis：事件推送与登录挑战
	var redisClient *redis.Client
	if cfg.Events.Enabled || cfg.Auth.NonceStore == config.NonceStoreRedis {
		redisClient, err = database.NewRedisConnection(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis, publishing and shared nonces disabled: ", err)
		} else {
			defer redisClient.Close()
		}
	}
	if cfg.Events.Enabled && redisClient != nil {
		pub := publisher.NewPublisher(redisClient, cfg.Events.RedisChannel, m)
		govSvc.Subscribe(pub.HandleEvents)
		logger.Info("Event publisher started", "channel", cfg.Events.RedisChannel)
	}
	var nonceRepository nonce.Repository
	if cfg.Auth.NonceStore == config.NonceStoreRedis && redisClient != nil {
		nonceRepository = nonce.NewRedisRepository(redisClient, cfg.Redis.KeyPrefix)
	} else {
		logger.Warn("Login nonces are kept in process memory", "nonce_store", cfg.Auth.NonceStore)
		nonceRepository = nonce.NewMemoryRepository(time.Now)
	}

	// 8. 告警通知
	var dispatcher *notificationService.Dispatcher
	if cfg.Notification.Enabled {
		dispatcher = notificationService.NewDispatcher(
			notificationRepository,
			govSvc,
			notificationService.NewSenders(&cfg.Notification),
			&cfg.Notification,
			m,
		)
		dispatcher.Start(ctx)
		govSvc.Subscribe(dispatcher.HandleEvents)
		logger.Info("Notification dispatcher started", "queue_size", cfg.Notification.QueueSize)
	}

	// 9. JWT与服务层
	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := authService.NewService(userRepository, nonceRepository, jwtManager, govSvc,
		authService.WithDomain(cfg.Auth.Domain),
		authService.WithNonceTTL(cfg.Auth.NonceTTL),
	)
	notificationSvc := notificationService.NewNotificationService(notificationRepository)

	// 10. 初始化处理器
	authHdl := authHandler.NewHandler(authSvc)
	governanceHdl := governanceHandler.NewHandler(govSvc, authSvc, m)
	tokenHdl := tokenHandler.NewHandler(gateway, authSvc)
	notificationHdl := notificationHandler.NewNotificationHandler(notificationSvc, authSvc)

	// 11. 设置Gin和路由
	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	router.Use(middleware.RequestID(), middleware.CORS(), middleware.Metrics(m))

	v1 := router.Group("/api/v1")
	{
		authHdl.RegisterRoutes(v1)
		governanceHdl.RegisterRoutes(v1)
		tokenHdl.RegisterRoutes(v1)
		notificationHdl.RegisterRoutes(v1)
	}

	router.GET("/health", func(c *gin.Context) {
		verification := govSvc.VerifyEventLog()
		status := "ok"
		persisted, err := ledgerRepository.CountEvents(c.Request.Context())
		if err != nil || uint64(persisted) != verification.Length || !verification.Valid {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          status,
			"eventLogValid":   verification.Valid,
			"events":          verification.Length,
			"persistedEvents": persisted,
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	// 12. Swagger API文档端点
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 13. 启动HTTP服务器
	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting server on ", "address", addr)
		logger.Info("Swagger documentation available at: http://localhost:" + cfg.Server.Port + "/swagger/index.html")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: ", err)
			select {
			case sigCh <- syscall.SIGTERM:
			default:
			}
		}
	}()

	// 14. 等待关闭信号
	<-sigCh
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	// Step 1: 停止HTTP服务器
	logger.Info("Stopping HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: ", err)
	} else {
		logger.Info("HTTP server stopped")
	}
	shutdownCancel()

	// Step 2: 取消context并停止告警分发
	cancel()
	if dispatcher != nil {
		logger.Info("Stopping notification dispatcher...")
		dispatcher.Stop()
	}

	// Step 3: 等待所有goroutine结束
	logger.Info("Waiting for all goroutines to finish...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All services stopped gracefully")
	case <-time.After(15 * time.Second):
		logger.Error("Timeout waiting for services to stop, forcing exit", nil)
	}
	logger.Sync()
}
