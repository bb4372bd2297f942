package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/pr-poehali-dev/tic-tac-toe-site/internal/handler/http"
	wsHandler "github.com/pr-poehali-dev/tic-tac-toe-site/internal/handler/websocket"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/hub"
	gormpersistence "github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/persistence/gorm"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/setup"
	redisstate "github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/state/redis"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/middleware"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/tasks"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config       *Config
	Log          *logrus.Logger
	DB           *gorm.DB
	RedisClient  *redis.Client
	AsynqClient  *asynq.Client
	WorkerServer *worker.WorkerServer
	Hub          *hub.Hub
	EventBus     *redisstate.RedisRoomEventBus
	HttpServer   *http.Server

	stopSubscription func() error
	cancel           context.CancelFunc
}

// newLogger 根据配置创建 Logger，同时设置 logrus 全局实例，包内代码都通过全局实例记录日志
func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := newLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel(), cfg.AppEnv)

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(context.Background(), cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	roomRepo := gormpersistence.NewGormRoomRepository(db, cfg.RoomLockTimeout)
	settlementRepo := gormpersistence.NewGormSettlementRepository(db)
	eventBus := redisstate.NewRedisRoomEventBus(redisClient, cfg.KeyPrefix)

	// 5. 初始化 Services
	settlementScheduler := tasks.NewAsynqSettlementScheduler(asynqClient)
	roomService := service.NewRoomService(roomRepo, eventBus, settlementScheduler, cfg.ActiveWindow)

	// 6. 初始化 Hub 和 Handlers
	hubInstance := hub.NewHub(roomService)
	roomHandler := httpHandler.NewRoomHandler(roomService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, roomService, cfg.CORSOrigin)

	// 7. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, roomRepo, settlementRepo, settlementScheduler, cfg.SweepSchedule, log)

	// 8. 初始化 Gin Engine 和路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, redisClient, roomHandler, websocketHandler)

	// 9. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		Config:       cfg,
		Log:          log,
		DB:           db,
		RedisClient:  redisClient,
		AsynqClient:  asynqClient,
		WorkerServer: workerServer,
		Hub:          hubInstance,
		EventBus:     eventBus,
		HttpServer:   httpServer,
	}, nil
}

// NewRouter 组装中间件和路由
func NewRouter(cfg *Config, log *logrus.Logger, redisClient *redis.Client, roomHandler *httpHandler.RoomHandler, websocketHandler *wsHandler.WebSocketHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORSOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 先认证再限流，已登录用户按用户计数
	authed := []gin.HandlerFunc{
		middleware.Auth(cfg.JWTSecret),
		middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow),
	}
	roomHandler.RegisterRoutes(router.Group("/api/rooms", authed...))
	router.Group("/ws", authed...).GET("/rooms/:roomId", websocketHandler.HandleConnection)
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	stop, err := a.EventBus.Subscribe(ctx, a.Hub.HandleRoomEvent)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}
	a.stopSubscription = stop

	if err := a.WorkerServer.Start(); err != nil {
		cancel()
		return err
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止接收新请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 2. 停止事件订阅和 Hub，关闭所有 WebSocket 连接
	if a.stopSubscription != nil {
		if err := a.stopSubscription(); err != nil {
			a.Log.WithError(err).Warn("Error closing room event subscription")
		}
	}
	if a.cancel != nil {
		a.cancel()
	}

	// 3. 关闭 Worker 和 Asynq Client
	if a.WorkerServer != nil {
		a.WorkerServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 4. 关闭 Redis 和数据库连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}
